package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/quiz/session"
)

// Engine runs the Machine inside the store's atomic update.
type Engine struct {
	store   session.Store
	machine *Machine
}

// New returns an Engine.
func New(store session.Store, machine *Machine) *Engine {
	return &Engine{store: store, machine: machine}
}

// Store exposes the backing store.
func (e *Engine) Store() session.Store {
	return e.store
}

// Handle applies ev to the user's attempt and returns the committed decision.
// The caller sends the decision; nothing is sent while the key is held.
// A store failure yields a ShowError decision together with the error.
// An undecodable stored attempt is reset: a start event begins a new attempt,
// anything else gets ShowError without an error.
func (e *Engine) Handle(ctx context.Context, ev Event) (Decision, error) {
	start := time.Now()
	ctx = logger.WithSession(ctx, ev.UserID)

	dec, err := e.apply(ctx, ev)
	if errors.Is(err, session.ErrCorrupt) {
		logger.Error(ctx, "quiz.engine", "session.reset",
			slog.String("status", "fail"),
			slog.String("kind", ev.Kind.String()),
			slog.String("err", err.Error()),
			slog.String("err_code", "SESSION_CORRUPT"),
		)
		if ev.Kind != KindStart {
			return Decision{Kind: ShowError, Fault: err}, nil
		}
		dec, err = e.apply(ctx, ev)
	}
	if err != nil {
		logger.Error(ctx, "quiz.engine", "transition.fail",
			slog.String("status", "fail"),
			slog.String("kind", ev.Kind.String()),
			slog.String("err", err.Error()),
			slog.String("err_code", "STORE_UNAVAILABLE"),
			slog.Duration("duration", logger.Took(start)),
		)
		return Decision{Kind: ShowError, Fault: err}, fmt.Errorf("update session %s: %w", ev.UserID, err)
	}

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", ev.Kind.String()),
		slog.String("decision", dec.Kind.String()),
		slog.Int("index", dec.Index),
		slog.Duration("duration", logger.Took(start)),
	}
	switch dec.Kind {
	case ShowError:
		code := "SESSION_FAULT"
		if errors.Is(dec.Fault, ErrCorruptAttempt) {
			code = "SESSION_CORRUPT"
		}
		logger.Error(ctx, "quiz.engine", "session.reset", append(attrs,
			slog.String("err", fmt.Sprint(dec.Fault)),
			slog.String("err_code", code),
		)...)
	case ShowResult:
		logger.Info(ctx, "quiz.engine", "attempt.complete", append(attrs,
			slog.Int("total", dec.Total),
			slog.String("category", dec.Category.Name),
		)...)
	default:
		if logger.ShouldSampleDebug(ctx) {
			logger.Debug(ctx, "quiz.engine", "transition", attrs...)
		}
	}
	return dec, nil
}

func (e *Engine) apply(ctx context.Context, ev Event) (Decision, error) {
	var dec Decision
	_, err := e.store.Update(ctx, ev.UserID, func(cur *session.Attempt) (*session.Attempt, error) {
		next, d := e.machine.Transition(cur, ev)
		dec = d
		if cur == nil && next == nil {
			return nil, session.ErrSkip
		}
		return next, nil
	})
	return dec, err
}
