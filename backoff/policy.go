package backoff

import (
	"time"

	"github.com/xraph/intake/job"
)

// Action is what the worker does with a job after a handler run.
type Action int

const (
	// Ack removes the job.
	Ack Action = iota
	// Retry nacks the job with a delay.
	Retry
	// Dead nacks the job as dead.
	Dead
)

func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Nack converts a Retry or Dead decision into the store's nack request.
func (d Decision) Nack() job.Nack {
	if d.Action == Dead {
		return job.Bury(d.Reason)
	}
	return job.RetryIn(d.Reason, d.Delay)
}

// Policy maps a handler result and the attempt count to a decision.
type Policy struct {
	Strategy Strategy
}

// NewPolicy returns a Policy using s, or DefaultStrategy when s is nil.
func NewPolicy(s Strategy) Policy {
	if s == nil {
		s = DefaultStrategy()
	}
	return Policy{Strategy: s}
}

// Decide applies the retry rules. attempts is the number of attempts made so
// far, including the one that produced res.
func (p Policy) Decide(res job.Result, attempts, maxAttempts int) Decision {
	switch {
	case res.OK():
		return Decision{Action: Ack}
	case !res.Retryable():
		return Decision{Action: Dead, Reason: res.Reason()}
	case attempts >= maxAttempts:
		return Decision{Action: Dead, Reason: res.Reason()}
	default:
		return Decision{Action: Retry, Delay: p.Strategy.Delay(attempts), Reason: res.Reason()}
	}
}
