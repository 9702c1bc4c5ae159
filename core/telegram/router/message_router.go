package router

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/commands"
)

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// Media handles photos, stickers, documents and other non-text messages.
	Media tele.HandlerFunc
}

// mediaEndpoints are the non-text message kinds routed to TextOptions.Media.
var mediaEndpoints = []string{tele.OnMedia, tele.OnSticker, tele.OnLocation, tele.OnContact}

// TextRoutes builds handlers for free text and media messages. A slash
// command that telebot did not match directly (an alias, say) is looked up in
// the registry; admin-only commands are never reached this way. Anything else
// goes to the registry's text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := guarded(func(c tele.Context) error {
		if key, cmd, ok := lookupSlash(reg, c.Text()); ok {
			return newSummary(handlerName(key)).run(c, cmd.Handler)
		}
		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return newSummary("fallback").run(c, fb)
			}
		}
		return newSummary("unknown_text").run(c, opts.UnknownText)
	})
	media := guarded(func(c tele.Context) error {
		return newSummary("media").run(c, opts.Media)
	})

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}

// lookupSlash resolves a slash command for the text route. Admin-only
// commands are excluded.
func lookupSlash(reg *tg.Registry, text string) (string, commands.Command, bool) {
	if reg == nil || !strings.HasPrefix(text, "/") {
		return "", commands.Command{}, false
	}
	key, cmd, ok := reg.LookupCommand(text)
	if !ok || cmd.Handler == nil || cmd.AdminOnly {
		return "", commands.Command{}, false
	}
	return key, cmd, true
}
