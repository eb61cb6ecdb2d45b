package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited paces an underlying Sender to the provider's send quota.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond sends with the given burst. A
// non-positive perSecond disables limiting.
func NewRateLimited(next Sender, perSecond float64, burst int) *RateLimited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Send waits for a token, then sends. A cancelled wait is retryable.
func (r *RateLimited) Send(ctx context.Context, m Message) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email send: rate limit wait: %w", err)
	}
	return r.next.Send(ctx, m)
}
