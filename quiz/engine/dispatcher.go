package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/core/batch"
	"github.com/m3rciful/quizbot/core/logger"
)

// Sender delivers a committed decision for ev to the user.
type Sender interface {
	Send(ctx context.Context, ev Event, d Decision) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, ev Event, d Decision) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, ev Event, d Decision) error {
	return f(ctx, ev, d)
}

// Dispatcher processes inbound batches: users concurrently, one user's events
// in arrival order.
type Dispatcher struct {
	engine  *Engine
	workers int
}

// NewDispatcher bounds concurrency to workers users at a time (<= 0 unbounded).
func NewDispatcher(e *Engine, workers int) *Dispatcher {
	return &Dispatcher{engine: e, workers: workers}
}

// Dispatch numbers events by position (Seq), handles them and hands every
// decision except NoReply to out after its transition committed. Send
// failures are logged and never roll back state. Only context cancellation
// is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event, out Sender) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		events[i].Seq = i
	}
	start := time.Now()
	batchID := uuid.NewString()
	ctx = logger.WithBatch(ctx, batchID)

	err := batch.Run(ctx, events, func(ev Event) string { return ev.UserID }, d.workers,
		func(ctx context.Context, ev Event) error {
			dec, _ := d.engine.Handle(ctx, ev)
			if dec.Kind == NoReply {
				return nil
			}
			if err := out.Send(logger.WithSession(ctx, ev.UserID), ev, dec); err != nil {
				logger.Warn(ctx, "quiz.dispatch", "send.fail",
					slog.String("session", ev.UserID),
					slog.String("decision", dec.Kind.String()),
					slog.String("err", err.Error()),
				)
			}
			return nil
		})

	logger.Debug(ctx, "quiz.dispatch", "batch.done",
		slog.Int("count", len(events)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return err
}
