package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
)

// seenWindow is how long an update id is remembered for receipt dedup.
const seenWindow = 10 * time.Second

// seenUpdates remembers recently logged update ids. The middleware may sit on
// several branches of the bot, yet each update gets one receipt line.
type seenUpdates struct {
	mu  sync.Mutex
	ids map[int]time.Time
}

var receipts = &seenUpdates{ids: make(map[int]time.Time)}

// first reports whether id has not been seen within seenWindow and marks it.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.ids {
		if now.Sub(at) > seenWindow {
			delete(s.ids, k)
		}
	}
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware writes one sampled debug receipt per update and makes sure
// the request context with its rid exists before any handler runs.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug(ctx) && receipts.first(upd.ID, time.Now()) {
			attrs := append([]slog.Attr{slog.String("status", "ok")}, receiptAttrs(c)...)
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
		}
		return next(c)
	}
}

// receiptAttrs describes who sent the update and what it carries. Ids come
// from the request context.
func receiptAttrs(c tele.Context) []slog.Attr {
	var attrs []slog.Attr
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}
	if cb := c.Update().Callback; cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		return append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	}
	if text := c.Text(); text != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(text, 256)))
	}
	return attrs
}
