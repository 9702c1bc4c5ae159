package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
)

// pruneEvery bounds how many users are tracked before idle ones are dropped.
const pruneEvery = 1024

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds (message, callback, inline_query, other)
	// that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userLimiters hands out one token bucket per user.
type userLimiters struct {
	mu    sync.Mutex
	every rate.Limit
	users map[int64]*rate.Limiter
}

func (u *userLimiters) allow(id int64, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	lim, ok := u.users[id]
	if !ok {
		if len(u.users) >= pruneEvery {
			for uid, l := range u.users {
				if l.TokensAt(now) >= 1 {
					delete(u.users, uid)
				}
			}
		}
		lim = rate.NewLimiter(u.every, 1)
		u.users[id] = lim
	}
	return lim.AllowN(now, 1)
}

// RateLimitMiddleware drops updates that arrive from a user sooner than
// Interval after their previous accepted one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limits := &userLimiters{
		every: rate.Every(opts.Interval),
		users: make(map[int64]*rate.Limiter),
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if limits.allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("kind", kind),
				slog.Bool("rate_limited", true),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}
