// Package tgbot connects the quiz engine to the Telegram runtime.
package tgbot

import (
	"context"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/keyboard"
	"github.com/m3rciful/quizbot/quiz/engine"
	"github.com/m3rciful/quizbot/quiz/render"
	"github.com/m3rciful/quizbot/quiz/session"
)

// UserKey is the session key of a Telegram user.
func UserKey(id int64) string {
	return "tg:" + strconv.FormatInt(id, 10)
}

// Bot handles quiz updates.
type Bot struct {
	engine   *engine.Engine
	norm     engine.Normalizer
	renderer *render.Renderer
	counter  session.Counter

	send func(c tele.Context, r render.Reply) error
}

// New returns a Bot. counter may be nil, which hides /sessions.
func New(e *engine.Engine, n engine.Normalizer, r *render.Renderer, counter session.Counter) *Bot {
	return &Bot{engine: e, norm: n, renderer: r, counter: counter, send: Send}
}

// Register binds the quiz commands, callbacks and text fallback.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := map[string]commands.Command{
		"/start": {Handler: b.HandleStart, Description: "開始測驗"},
		"/quiz":  {Handler: b.HandleStart, Description: "重新開始測驗", Aliases: []string{"restart"}},
	}
	if b.counter != nil {
		cmds["/sessions"] = commands.Command{Handler: b.HandleSessions, Description: "進行中的測驗數", AdminOnly: true}
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return err
		}
	}
	if err := reg.RegisterCallback(render.ActionStart, b.HandleStart); err != nil {
		return err
	}
	if err := reg.RegisterCallback(render.ActionAnswer, b.HandleAnswer); err != nil {
		return err
	}
	reg.SetTextFallback(b.HandleText)
	return nil
}

// HandleStart begins a fresh attempt.
func (b *Bot) HandleStart(c tele.Context) error {
	return b.handle(c, func(key string) engine.Event { return b.norm.Start(key) })
}

// HandleAnswer applies the label carried by an answer button.
func (b *Bot) HandleAnswer(c tele.Context) error {
	label := callbacks.CallbackPayload(c)
	return b.handle(c, func(key string) engine.Event { return b.norm.Answer(key, label) })
}

// HandleText normalizes typed text, which may be a start phrase.
func (b *Bot) HandleText(c tele.Context) error {
	return b.handle(c, func(key string) engine.Event { return b.norm.Text(key, c.Text()) })
}

// HandleOther treats the update as input that is neither a start nor an answer.
func (b *Bot) HandleOther(c tele.Context) error {
	return b.handle(c, func(key string) engine.Event { return engine.Event{UserID: key, Kind: engine.KindOther} })
}

// HandleSessions reports how many attempts are in progress.
func (b *Bot) HandleSessions(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "quiz.sessions")
	n, err := b.counter.Len(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "quiz.tg", "sessions", slog.Int("sessions", n))
	return tghelpers.SendText(c, "進行中的測驗: "+strconv.Itoa(n))
}

func (b *Bot) handle(c tele.Context, build func(key string) engine.Event) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ev := build(UserKey(user.ID))
	tghelpers.WithHandler(c, "quiz."+ev.Kind.String())
	ctx := tghelpers.WithSession(c, ev.UserID)

	// Store failures are logged by the engine and still produce a reply.
	dec, _ := b.engine.Handle(ctx, ev)
	return b.reply(ctx, c, dec)
}

func (b *Bot) reply(ctx context.Context, c tele.Context, dec engine.Decision) error {
	r, ok := b.renderer.Render(dec)
	if !ok {
		logger.Debug(ctx, "quiz.tg", "reply.skip", slog.String("decision", dec.Kind.String()))
		return nil
	}
	return b.send(c, r)
}

// Send delivers r through the shared sender queue.
func Send(c tele.Context, r render.Reply) error {
	markup := Markup(r.Buttons)
	if r.Media != "" {
		return tghelpers.SendPhoto(c, r.Media, r.Text, markup)
	}
	if markup == nil {
		return tghelpers.SendText(c, r.Text)
	}
	return tghelpers.SendText(c, r.Text, &tele.SendOptions{ReplyMarkup: markup})
}

// Markup lays buttons out one per row; nil when there are none.
func Markup(buttons []render.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	btns := make([]keyboard.Button, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, keyboard.Button{Text: b.Text, Action: b.Action, Data: b.Data})
	}
	return keyboard.Inline(btns, 1)
}
