package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/intake/job"
)

// Collection name constants.
const (
	colJobs     = "intake_jobs"
	colCounters = "intake_counters"
)

// Compile-time interface checks.
var _ job.Store = (*Store)(nil)

// Store implements job.Store on a MongoDB database.
type Store struct {
	db       *mongod.Database
	jobs     *mongod.Collection
	counters *mongod.Collection
	logger   *slog.Logger
	owned    bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on db. The caller owns the client lifecycle.
func New(db *mongod.Database, opts ...Option) *Store {
	colOpts := options.Collection().SetWriteConcern(writeconcern.Majority())
	s := &Store{
		db:       db,
		jobs:     db.Collection(colJobs, colOpts),
		counters: db.Collection(colCounters, colOpts),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and returns a store on database that closes the client
// on Close.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, wrap("connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, wrap("ping", err)
	}
	s := New(client.Database(database), opts...)
	s.owned = true
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the job indexes.
func (s *Store) Migrate(ctx context.Context) error {
	models := []mongod.IndexModel{
		// Claim order.
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "available_at", Value: 1},
			{Key: "seq", Value: 1},
		}},
		// Lease recovery.
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "lease_expires_at", Value: 1},
		}},
	}
	if _, err := s.jobs.Indexes().CreateMany(ctx, models); err != nil {
		return wrap("migrate indexes", err)
	}
	s.logger.Debug("mongo indexes ensured", slog.String("collection", colJobs))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

// ── helpers ──────────────────────────────────────────────────────

func wrap(op string, err error) error {
	return fmt.Errorf("intake/mongo: %s: %w", op, err)
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
