package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/intake/job"
)

// entry pairs a hook with the observer name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds observers and fans events out to them. Hooks are
// type-cached at registration so emitting only walks the observers that
// implement the event. Register everything before the pool starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued      []entry[JobEnqueued]
	jobStarted       []entry[JobStarted]
	jobCompleted     []entry[JobCompleted]
	jobRetrying      []entry[JobRetrying]
	jobDead          []entry[JobDead]
	leasesRecovered  []entry[LeasesRecovered]
	storeUnavailable []entry[StoreUnavailable]
	shutdown         []entry[Shutdown]
}

// NewRegistry creates an observer registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an observer. Observers are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, entry[JobRetrying]{name, h})
	}
	if h, ok := e.(JobDead); ok {
		r.jobDead = append(r.jobDead, entry[JobDead]{name, h})
	}
	if h, ok := e.(LeasesRecovered); ok {
		r.leasesRecovered = append(r.leasesRecovered, entry[LeasesRecovered]{name, h})
	}
	if h, ok := e.(StoreUnavailable); ok {
		r.storeUnavailable = append(r.storeUnavailable, entry[StoreUnavailable]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered observers.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEnqueued notifies JobEnqueued observers.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies JobStarted observers.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies JobCompleted observers.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies JobRetrying observers.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, jobErr error, availableAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, jobErr, availableAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDead notifies JobDead observers.
func (r *Registry) EmitJobDead(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDead {
		if err := e.hook.OnJobDead(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDead", e.name, err)
		}
	}
}

// EmitLeasesRecovered notifies LeasesRecovered observers.
func (r *Registry) EmitLeasesRecovered(ctx context.Context, count int64) {
	for _, e := range r.leasesRecovered {
		if err := e.hook.OnLeasesRecovered(ctx, count); err != nil {
			r.logHookError("OnLeasesRecovered", e.name, err)
		}
	}
}

// EmitStoreUnavailable notifies StoreUnavailable observers.
func (r *Registry) EmitStoreUnavailable(ctx context.Context, op string, storeErr error) {
	for _, e := range r.storeUnavailable {
		if err := e.hook.OnStoreUnavailable(ctx, op, storeErr); err != nil {
			r.logHookError("OnStoreUnavailable", e.name, err)
		}
	}
}

// EmitShutdown notifies Shutdown observers.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a failing hook. Hook errors never reach the worker.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
