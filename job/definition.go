package job

import "context"

// Definition is a typed job definition. T is the payload type and must be
// JSON-serialisable.
//
// Delivery is at-least-once, so Handler may see the same payload more than
// once and must tolerate it. Returning nil acknowledges the job; wrap an
// error with MarkPermanent to skip the remaining attempts.
type Definition[T any] struct {
	Kind    string
	Handler func(ctx context.Context, payload T) error
	Opts    Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](kind string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Kind:    kind,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
