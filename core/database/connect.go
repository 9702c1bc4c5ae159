package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/quizbot/core/logger"
)

// Connect opens the pool described by cfg and pings it within five seconds.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	target := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.ConnString())
	took := slog.Duration("duration", logger.Took(start))
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(target,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			took,
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	logger.Info(ctx, "db", "db.connect", append(target,
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
		took,
	)...)
	return db, nil
}

// WaitForPostgres pings dsn with exponential backoff until it answers, ctx is
// done or timeout passes.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = timeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		db, err := sqlx.Open("postgres", dsn)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, policy.MaxInterval)
		defer cancel()
		return db.PingContext(pingCtx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
	}
	return nil
}
