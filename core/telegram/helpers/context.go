package helpers

import (
	"context"

	"github.com/m3rciful/quizbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxKey holds the update's logging context on tele.Context so every helper
// of one update logs with the same rid and ids.
const ctxKey = "logger_ctx"

// StoreContext attaches ctx to c.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// NewContext builds a fresh logging context for the update: rid derived from
// the update, chat and user ids, plus those ids as fields.
func NewContext(c tele.Context) context.Context {
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	return logger.WithLogger(ctx, logger.Component("tg"))
}

// BuildContext returns the stored context, creating and storing one on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	ctx := NewContext(c)
	StoreContext(c, ctx)
	return ctx
}

func enrich(c tele.Context, with func(context.Context) context.Context) context.Context {
	ctx := with(BuildContext(c))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update's logs with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	if handler == "" {
		return BuildContext(c)
	}
	return enrich(c, func(ctx context.Context) context.Context { return logger.WithHandler(ctx, handler) })
}

// WithSession tags the update's logs with a session key.
func WithSession(c tele.Context, key string) context.Context {
	if key == "" {
		return BuildContext(c)
	}
	return enrich(c, func(ctx context.Context) context.Context { return logger.WithSession(ctx, key) })
}
