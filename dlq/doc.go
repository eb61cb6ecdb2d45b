// Package dlq is the operator view of dead jobs: jobs that exhausted their
// attempts or failed permanently. Stores keep dead jobs in place (state
// dead) rather than in a separate table, so the service is a thin layer
// over job.Store.
//
//	svc := dlq.NewService(store)
//
//	dead, _ := svc.List(ctx, job.ListOpts{Limit: 50})
//	n, _ := svc.Purge(ctx, time.Now().Add(-30*24*time.Hour))
//
// # Replay
//
// [Service.Replay] pushes a fresh job with the dead job's kind and payload
// and a full attempt budget. The dead job is kept for the record until it
// is purged.
//
// # Admin API
//
//   - GET    /v1/dead               list dead jobs
//   - GET    /v1/dead/{jobId}       get one dead job
//   - POST   /v1/dead/{jobId}/replay
//   - DELETE /v1/dead?before=RFC3339  purge
package dlq
