package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound handles callbacks whose unique has no registered handler.
	NotFound tele.HandlerFunc
}

// CallbackRoute acknowledges every button press and dispatches it by its
// unique through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{Endpoint: tele.OnCallback, Handler: guarded(func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, payload := callbacks.ParseCallbackData(cb)
		tghelpers.Acknowledge(c)

		s := newSummary("callback."+handlerName(key),
			slog.String("cb_key", key),
			slog.String("payload", logger.SanitizeLimit(payload, 64)),
		)
		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			s.extras = append(s.extras, slog.String("reason", "not_found"))
			h = opts.NotFound
		}
		return s.run(c, h)
	})}
}
