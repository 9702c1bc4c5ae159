package router

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/commands"
)

func message(t *testing.T, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	user := &tele.User{ID: 9}
	return b.NewContext(tele.Update{ID: 3, Message: &tele.Message{
		Sender: user,
		Chat:   &tele.Chat{ID: user.ID, Type: tele.ChatPrivate},
		Text:   text,
	}})
}

func TestTextRoutesDispatch(t *testing.T) {
	var got []string
	record := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { got = append(got, name); return nil }
	}
	reg := tg.NewRegistry()
	if err := reg.RegisterCommand("/quiz", commands.Command{Handler: record("quiz"), Description: "quiz", Aliases: []string{"restart"}}); err != nil {
		t.Fatal(err)
	}
	if err := reg.RegisterCommand("/sessions", commands.Command{Handler: record("sessions"), Description: "count", AdminOnly: true}); err != nil {
		t.Fatal(err)
	}
	reg.SetTextFallback(record("fallback"))

	routes := TextRoutes(reg, TextOptions{})
	if routes[0].Endpoint != tele.OnText || len(routes) != 1+len(mediaEndpoints) {
		t.Fatalf("routes = %+v", routes)
	}
	for _, in := range []string{"/restart", "/sessions", "A"} {
		if err := routes[0].Handler(message(t, in)); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
	}
	want := []string{"quiz", "fallback", "fallback"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
}

func TestRoutesWithoutHandlersSkip(t *testing.T) {
	routes := TextRoutes(nil, TextOptions{})
	for _, r := range routes {
		if err := r.Handler(message(t, "hello")); err != nil {
			t.Fatalf("%v: %v", r.Endpoint, err)
		}
	}
}

func TestSummaryReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	err := newSummary("quiz").run(message(t, "x"), func(tele.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "store unavailable" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrorCode(t *testing.T) {
	cases := map[string]error{
		"STORE_UNAVAILABLE": fmt.Errorf("wrap: %w", codedErr{}),
		"PLAINERR":          &plainErr{},
		"ERRORSTRING":       errors.New("x"),
	}
	for want, err := range cases {
		if got := errorCode(err); got != want {
			t.Fatalf("errorCode(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestHandlerName(t *testing.T) {
	for in, want := range map[string]string{"/Quiz": "quiz", " ": "unknown", "quiz answer": "quiz_answer"} {
		if got := handlerName(in); got != want {
			t.Fatalf("handlerName(%q) = %q, want %q", in, got, want)
		}
	}
}
