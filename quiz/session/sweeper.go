package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
)

// Sweeper expires attempts left untouched for longer than IdleTimeout.
// Each expiry goes through Store.Update on the attempt's own key and
// re-checks the timestamp there, so a late answer racing the sweep wins.
type Sweeper struct {
	Store       Store
	Lister      Lister
	IdleTimeout time.Duration
	Interval    time.Duration
	Now         func() time.Time
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.IdleTimeout <= 0 || s.Lister == nil {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = s.IdleTimeout / 2
	}
	logger.Info(ctx, "quiz.sweeper", "start",
		slog.Duration("idle_timeout", s.IdleTimeout),
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn(ctx, "quiz.sweeper", "sweep.fail", slog.String("err", err.Error()))
			}
		}
	}
}

// Sweep makes one pass and returns how many attempts were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	start := time.Now()

	var (
		keys []string
		err  error
	)
	if il, ok := s.Lister.(IdleLister); ok {
		keys, err = il.IdleKeys(ctx, now().Add(-s.IdleTimeout))
	} else {
		keys, err = s.Lister.Keys(ctx)
	}
	if err != nil {
		return 0, err
	}

	var (
		expired int
		errs    []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		cutoff := now().Add(-s.IdleTimeout)
		removed := false
		_, err := s.Store.Update(ctx, key, func(cur *Attempt) (*Attempt, error) {
			removed = false
			if cur == nil || cur.UpdatedAt.After(cutoff) {
				return nil, ErrSkip
			}
			removed = true
			return nil, nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed {
			expired++
			logger.Debug(ctx, "quiz.sweeper", "expired", slog.String("session", key))
		}
	}

	if expired > 0 || len(errs) > 0 {
		logger.Info(ctx, "quiz.sweeper", "summary",
			slog.Int("count", len(keys)),
			slog.Int("expired", expired),
			slog.Int("errors", len(errs)),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return expired, errors.Join(errs...)
}
