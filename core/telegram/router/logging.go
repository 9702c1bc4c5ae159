package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// summary writes the single handler.handled line of a routed update.
type summary struct {
	handler string
	start   time.Time
	extras  []slog.Attr
}

func newSummary(handler string, extras ...slog.Attr) *summary {
	return &summary{handler: handler, start: time.Now(), extras: extras}
}

// run calls fn and logs the result. A nil fn means nothing took the update,
// which is logged with status skip.
func (s *summary) run(c tele.Context, fn tele.HandlerFunc) error {
	ctx := tghelpers.WithHandler(c, s.handler)
	status := "skip"
	var err error
	if fn != nil {
		err = fn(c)
		status = logger.Status(err)
	}

	replies, kb := tghelpers.Replies(c)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.handler),
		slog.String("outcome", logger.Status(err)),
		slog.Int("replies", replies),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(s.start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
			slog.String("cause", s.handler),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", append(attrs, s.extras...)...)
	return err
}

// guarded wraps a route handler with panic recovery and the receipt log.
func guarded(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// errorCode prefers an error's own Code() and falls back to its type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	code := ""
	if errors.As(err, &coded) {
		code = strings.TrimSpace(coded.Code())
	}
	if code == "" {
		t := reflect.TypeOf(err)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Name() == "" {
			return "UNKNOWN_ERROR"
		}
		code = t.Name()
	}
	return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
}
