package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/intake/job"
)

// Compile-time interface checks.
var _ job.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOwnedClient makes Close close the Redis client.
func WithOwnedClient() Option {
	return func(s *Store) { s.owned = true }
}

// Store implements job.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
	logger *slog.Logger
	owned  bool
}

// New creates a new Redis-backed store. Unless WithOwnedClient is given,
// the caller owns the Redis client lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate loads the Lua scripts into the server's script cache.
func (s *Store) Migrate(ctx context.Context) error {
	for _, sc := range []*goredis.Script{pushScript, claimScript, ackScript, nackScript, extendScript, requeueScript, purgeScript} {
		if err := sc.Load(ctx, s.client).Err(); err != nil {
			return wrap("load script", err)
		}
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
