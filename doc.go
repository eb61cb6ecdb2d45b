// Package intake registers patients and delivers their confirmation email
// through a durable job queue.
//
// Registration never waits on email delivery. After a patient row commits,
// a confirmation-email job is pushed to a queue store; a bounded pool of
// workers claims jobs, runs the handler and acknowledges success or
// reports failure. Failures are retried with exponential backoff until the
// attempt budget runs out, after which the job is kept as dead for an
// operator to inspect.
//
// # Quick Start
//
//	d, err := intake.New(
//	    intake.WithStore(redisStore),
//	    intake.WithConcurrency(5),
//	)
//	eng, err := engine.Build(d)
//	engine.Register(eng, notify.ConfirmationDefinition(sender, logger))
//	_ = eng.Start(ctx)
//	defer eng.Stop(context.Background())
//
// # Delivery Guarantee
//
// Delivery is at-least-once. A worker that dies mid-job loses its lease and
// the job is returned to waiting by the reaper without spending an attempt,
// so handlers may run more than once for the same job.
//
// Queue identifiers use TypeID (prefix "job", "wkr"); patient records use
// UUIDs.
package intake
