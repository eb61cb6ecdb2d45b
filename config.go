package intake

import "time"

// Config holds configuration for the Dispatcher.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// PollInterval is how long an idle worker sleeps when the queue is empty.
	PollInterval time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs to finish
	// before abandoning them to lease recovery.
	ShutdownTimeout time.Duration

	// LeaseDuration is how long a claim stays valid without a heartbeat.
	LeaseDuration time.Duration

	// HeartbeatInterval is how often in-flight jobs have their lease
	// extended. Zero means LeaseDuration/3.
	HeartbeatInterval time.Duration

	// ReapInterval is how often expired leases are returned to waiting.
	ReapInterval time.Duration

	// MaxAttempts is the attempt budget given to each submitted job.
	MaxAttempts int

	// BackoffBase is the retry delay after the first failed attempt. Each
	// further attempt doubles it.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay. Zero means uncapped.
	BackoffMax time.Duration

	// StoreRetryMin and StoreRetryMax bound the delay between retries of a
	// failed store operation (claim, ack, nack).
	StoreRetryMin time.Duration
	StoreRetryMax time.Duration
}

// DefaultConfig returns a Config with the production defaults: five
// workers, three attempts and a 2s exponential backoff.
func DefaultConfig() Config {
	return Config{
		Concurrency:     5,
		PollInterval:    500 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
		LeaseDuration:   30 * time.Second,
		ReapInterval:    10 * time.Second,
		MaxAttempts:     3,
		BackoffBase:     2 * time.Second,
		StoreRetryMin:   250 * time.Millisecond,
		StoreRetryMax:   15 * time.Second,
	}
}

// Heartbeat returns the effective heartbeat interval.
func (c Config) Heartbeat() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return c.LeaseDuration / 3
}
