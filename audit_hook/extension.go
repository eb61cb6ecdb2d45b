package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/job"
)

var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.JobEnqueued      = (*Extension)(nil)
	_ ext.JobStarted       = (*Extension)(nil)
	_ ext.JobCompleted     = (*Extension)(nil)
	_ ext.JobRetrying      = (*Extension)(nil)
	_ ext.JobDead          = (*Extension)(nil)
	_ ext.LeasesRecovered  = (*Extension)(nil)
	_ ext.StoreUnavailable = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one recorded transition.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes each event as one log line. Critical events are
// logged at error level, warnings at warn, the rest at info.
type LogRecorder struct {
	Logger *slog.Logger
}

func (r LogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("action", evt.Action),
		slog.String("category", evt.Category),
		slog.String("resource", evt.Resource),
		slog.String("outcome", evt.Outcome),
	}
	if evt.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", evt.ResourceID))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if len(evt.Metadata) > 0 {
		meta := make([]any, 0, len(evt.Metadata))
		for k, v := range evt.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("meta", meta...))
	}
	r.Logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension turns queue lifecycle hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	e.emit(ctx, jobEvent(ActionJobEnqueued, j, nil), Meta{
		"max_attempts": j.MaxAttempts,
	})
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	e.emit(ctx, jobEvent(ActionJobStarted, j, nil), Meta{
		"attempt":   j.Attempts,
		"worker_id": j.WorkerID.String(),
	})
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	e.emit(ctx, jobEvent(ActionJobCompleted, j, nil), Meta{
		"attempt":    j.Attempts,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, jobErr error, availableAt time.Time) error {
	evt := jobEvent(ActionJobRetrying, j, jobErr)
	evt.Severity = SeverityWarning
	e.emit(ctx, evt, Meta{
		"attempt":      j.Attempts,
		"max_attempts": j.MaxAttempts,
		"available_at": availableAt.Format(time.RFC3339),
	})
	return nil
}

// OnJobDead implements ext.JobDead.
func (e *Extension) OnJobDead(ctx context.Context, j *job.Job, jobErr error) error {
	evt := jobEvent(ActionJobDead, j, jobErr)
	evt.Severity = SeverityCritical
	e.emit(ctx, evt, Meta{"attempts": j.Attempts})
	return nil
}

// OnLeasesRecovered implements ext.LeasesRecovered.
func (e *Extension) OnLeasesRecovered(ctx context.Context, count int64) error {
	e.emit(ctx, &AuditEvent{
		Action:   ActionLeasesRecovered,
		Resource: ResourceQueue,
		Category: CategoryQueue,
		Outcome:  OutcomeSuccess,
		Severity: SeverityWarning,
	}, Meta{"count": count})
	return nil
}

// OnStoreUnavailable implements ext.StoreUnavailable.
func (e *Extension) OnStoreUnavailable(ctx context.Context, op string, storeErr error) error {
	e.emit(ctx, &AuditEvent{
		Action:   ActionStoreUnavailable,
		Resource: ResourceQueue,
		Category: CategoryQueue,
		Outcome:  OutcomeFailure,
		Severity: SeverityCritical,
		Reason:   storeErr.Error(),
	}, Meta{"op": op})
	return nil
}

// Meta is the free-form part of an AuditEvent.
type Meta map[string]any

// jobEvent fills the fields shared by every job action. A non-nil err
// marks the outcome as a failure.
func jobEvent(action string, j *job.Job, err error) *AuditEvent {
	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryJob,
		ResourceID: j.ID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	}
	if err != nil {
		evt.Outcome = OutcomeFailure
		evt.Reason = err.Error()
	}
	evt.Metadata = map[string]any{"kind": j.Kind}
	return evt
}

// emit merges meta into evt and records it when the action is enabled.
// Recorder failures are logged; hooks never fail because of them.
func (e *Extension) emit(ctx context.Context, evt *AuditEvent, meta Meta) {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return
	}
	if evt.Metadata == nil {
		evt.Metadata = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		evt.Metadata[k] = v
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit event not recorded",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", err.Error()),
		)
	}
}
