package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/intake"
	audithook "github.com/xraph/intake/audit_hook"
	"github.com/xraph/intake/config"
	"github.com/xraph/intake/engine"
	"github.com/xraph/intake/notify"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/store"
	"github.com/xraph/intake/store/memory"
	"github.com/xraph/intake/store/mongo"
	"github.com/xraph/intake/store/postgres"
	"github.com/xraph/intake/store/redis"
)

// newLogger creates a slog.Logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" || cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// setup loads config and installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Debug("config loaded", slog.String("config", cfg.String()))
	return cfg, logger, nil
}

// backends holds the opened stores. The queue store is closed by the
// engine on Stop; close handles everything else.
type backends struct {
	queue    store.Store
	patients patient.Store
	extra    []func() error
}

func (b *backends) close() error {
	var errs []error
	for _, c := range b.extra {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// openBackends opens the queue store and, when withPatients is set, the
// patient store. When both are Postgres they share one pool.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger, withPatients bool) (*backends, error) {
	b := &backends{}

	switch cfg.QueueBackend {
	case "memory":
		m := memory.New()
		b.queue = m
		b.patients = m
	case "postgres":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.queue = pg
		if cfg.SharedPostgres() {
			b.patients = pg
		}
	case "redis":
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		b.queue = redis.New(goredis.NewClient(opts), redis.WithOwnedClient(), redis.WithLogger(logger))
	case "mongo":
		mg, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, mongo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		b.queue = mg
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}

	if withPatients && b.patients == nil {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			_ = b.queue.Close()
			return nil, err
		}
		b.patients = pg
		b.extra = append(b.extra, pg.Close)
	}

	return b, nil
}

// buildEngine wires the queue store into an engine and registers the
// confirmation email handler.
func buildEngine(cfg *config.Config, queue store.Store, logger *slog.Logger, reg prometheus.Registerer) (*engine.Engine, error) {
	d, err := intake.New(
		intake.WithConfig(cfg.Queue()),
		intake.WithStore(queue),
		intake.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{engine.WithMetricsRegisterer(reg)}
	if cfg.AuditLog {
		opts = append(opts, engine.WithExtension(
			audithook.New(audithook.LogRecorder{Logger: logger.With(slog.String("component", "audit"))},
				audithook.WithLogger(logger)),
		))
	}

	eng, err := engine.Build(d, opts...)
	if err != nil {
		return nil, err
	}

	engine.Register(eng, notify.ConfirmationDefinition(newSender(cfg, logger), logger))
	return eng, nil
}

// newSender returns the SMTP sender, or a logging sender when no SMTP host
// is configured, paced by EMAIL_RATE_LIMIT.
func newSender(cfg *config.Config, logger *slog.Logger) notify.Sender {
	var s notify.Sender
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST is empty, confirmation emails will only be logged")
		s = notify.LogSender{Logger: logger}
	} else {
		s = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			TLS:      cfg.SMTPTLS,
		})
	}
	if cfg.EmailRateLimit > 0 {
		s = notify.NewRateLimited(s, cfg.EmailRateLimit, cfg.EmailRateBurst)
	}
	return s
}
