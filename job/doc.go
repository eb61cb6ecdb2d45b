// Package job defines the job entity, its state machine, handler results,
// typed definitions and the queue store contract.
//
// A [Job] moves through:
//
//	waiting → active → (removed on ack)
//	waiting → active → failed-retryable → (after AvailableAt) active → ...
//	waiting → active → dead
//	active  → waiting            (lease expired, attempts unchanged)
//
// Attempts is incremented by the store on every claim and never decreases.
//
// Handlers report their outcome as a [Result] rather than a bare error so
// that retryable and permanent failures are distinguished explicitly:
//
//	var Confirm = job.NewDefinition(job.KindConfirmationEmail,
//	    func(ctx context.Context, p job.ConfirmationPayload) error {
//	        return sender.Send(ctx, p.Recipient, p.DisplayName)
//	    },
//	)
//	job.RegisterDefinition(registry, Confirm)
package job
