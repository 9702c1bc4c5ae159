package webhook

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/quiz/bank"
	"github.com/m3rciful/quizbot/quiz/engine"
	"github.com/m3rciful/quizbot/quiz/render"
	"github.com/m3rciful/quizbot/quiz/session"
)

func newHandler(t *testing.T) (*Handler, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(session.MemoryOptions{})
	e := engine.New(store, engine.NewMachine(bank.Default(), engine.IdleReply))
	h := NewHandler(engine.NewDispatcher(e, 4), engine.Normalizer{StartPhrases: []string{"試煉開始"}}, render.New(render.Texts{}), Options{})
	return h, store
}

func text(user, s string) InboundEvent {
	return InboundEvent{Type: "message", ReplyToken: "rt-" + user, Source: Source{UserID: user}, Message: &Message{Type: "text", Text: s}}
}

func postback(user, data string) InboundEvent {
	return InboundEvent{Type: "postback", Source: Source{UserID: user}, Postback: &Postback{Data: data}}
}

func post(t *testing.T, h http.Handler, events ...InboundEvent) Response {
	t.Helper()
	body, err := json.Marshal(Request{Events: events})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWebhookInterleavedBatch(t *testing.T) {
	h, store := newHandler(t)
	routes := h.Routes()

	resp := post(t, routes, text("U1", "試煉開始"), text("U2", "試煉開始"))
	require.Len(t, resp.Replies, 2)
	assert.Equal(t, "U1", resp.Replies[0].UserID)
	assert.Equal(t, "rt-U1", resp.Replies[0].ReplyToken)
	assert.Contains(t, resp.Replies[0].Text, "Q1.")
	require.Len(t, resp.Replies[0].Buttons, 4)
	assert.Equal(t, "action=quiz_answer&answer=A", resp.Replies[0].Buttons[0].Data)

	resp = post(t, routes,
		postback("U1", "answer=A"), postback("U2", "answer=D"),
		postback("U1", "answer=A"), postback("U2", "answer=D"),
		postback("U1", "answer=A"), postback("U2", "answer=D"),
		postback("U1", "answer=A"), postback("U2", "answer=D"),
	)
	require.Len(t, resp.Replies, 8)
	for i, r := range resp.Replies {
		want := "U1"
		if i%2 == 1 {
			want = "U2"
		}
		assert.Equal(t, want, r.UserID, "reply %d out of event order", i)
	}
	assert.Contains(t, resp.Replies[6].Text, "總分: 12")
	assert.Contains(t, resp.Replies[7].Text, "總分: 8")
	assert.Equal(t, "action=quiz_start", resp.Replies[6].Buttons[0].Data)

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhookDuplicateFinalAnswerIsIdle(t *testing.T) {
	h, _ := newHandler(t)
	routes := h.Routes()

	post(t, routes, postback("U9", "action=quiz_start"))
	resp := post(t, routes,
		postback("U9", "answer=B"), postback("U9", "answer=B"),
		postback("U9", "answer=B"), postback("U9", "answer=B"),
		postback("U9", "answer=B"),
	)
	require.Len(t, resp.Replies, 5)
	assert.Contains(t, resp.Replies[3].Text, "總分")
	assert.Equal(t, render.DefaultTexts().Idle, resp.Replies[4].Text)
}

func TestWebhookSkipsEventsWithoutUser(t *testing.T) {
	h, _ := newHandler(t)
	resp := post(t, h.Routes(),
		InboundEvent{Type: "follow", Source: Source{UserID: "U1"}},
		text("", "試煉開始"),
		InboundEvent{Type: "message", Source: Source{UserID: "U3"}, Message: &Message{Type: "sticker"}},
	)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "U3", resp.Replies[0].UserID)
	assert.Equal(t, render.DefaultTexts().Idle, resp.Replies[0].Text)
}

func TestWebhookErrors(t *testing.T) {
	h, _ := newHandler(t)
	routes := h.Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWebhookBodyLimit(t *testing.T) {
	store := session.NewMemoryStore(session.MemoryOptions{})
	e := engine.New(store, engine.NewMachine(bank.Default(), engine.IdleReply))
	h := NewHandler(engine.NewDispatcher(e, 1), engine.Normalizer{}, render.New(render.Texts{}), Options{MaxBodyBytes: 16})

	rec := httptest.NewRecorder()
	body := `{"events":[{"type":"message","source":{"userId":"U1"}}]}`
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPostbackParsing(t *testing.T) {
	h, _ := newHandler(t)
	cases := map[string]engine.EventKind{
		"action=quiz_start":           engine.KindStart,
		"answer=c":                    engine.KindAnswer,
		"action=quiz_answer&answer=A": engine.KindAnswer,
		"action=unknown":              engine.KindOther,
		"%zz":                         engine.KindOther,
	}
	for data, kind := range cases {
		assert.Equal(t, kind, h.postback("line:U", data).Kind, data)
	}
}

func TestServerShutsDownOnCancel(t *testing.T) {
	h, _ := newHandler(t)
	srv := NewServer(coreconfig.HTTPConfig{ShutdownTimeout: time.Second}, h.Routes())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestContextCarriesIDs(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	r.Header.Set("X-Request-Id", "req-1")
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := requestContext(r)
	assert.Equal(t, "req-1", logger.RIDFrom(ctx))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logger.TraceIDFrom(ctx))
	assert.Equal(t, "00f067aa0ba902b7", logger.SpanIDFrom(ctx))

	ctx = requestContext(httptest.NewRequest(http.MethodPost, "/webhook", nil))
	assert.NotEmpty(t, logger.RIDFrom(ctx))
	assert.Empty(t, logger.TraceIDFrom(ctx))
}
