package job

import "time"

// Options configures per-kind behaviour.
type Options struct {
	// MaxAttempts overrides the dispatcher's attempt budget for this kind.
	// Zero keeps the dispatcher default.
	MaxAttempts int

	// Timeout bounds one handler run. Zero means no per-job deadline.
	Timeout time.Duration
}

// DefaultOptions returns the options a definition starts from.
func DefaultOptions() Options {
	return Options{Timeout: time.Minute}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the attempt budget for jobs of this kind.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithTimeout sets the maximum duration of one handler run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
