// Package webhook serves the quiz over a JSON webhook: the platform posts a
// batch of events and reads the replies from the response body.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/quiz/engine"
	"github.com/m3rciful/quizbot/quiz/render"
)

const (
	defaultPath    = "/webhook"
	defaultMaxBody = 1 << 20
)

// Request is an inbound batch.
type Request struct {
	Events []InboundEvent `json:"events"`
}

// InboundEvent is one platform event. Only message and postback events
// reach the quiz.
type InboundEvent struct {
	Type       string    `json:"type"`
	ReplyToken string    `json:"replyToken,omitempty"`
	Source     Source    `json:"source"`
	Message    *Message  `json:"message,omitempty"`
	Postback   *Postback `json:"postback,omitempty"`
}

type Source struct {
	UserID string `json:"userId"`
}

type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Postback struct {
	Data string `json:"data"`
}

// Response carries the replies in event order.
type Response struct {
	Replies []OutboundReply `json:"replies"`
}

// OutboundReply is one rendered reply.
type OutboundReply struct {
	UserID     string           `json:"userId"`
	ReplyToken string           `json:"replyToken,omitempty"`
	Text       string           `json:"text"`
	Buttons    []OutboundButton `json:"buttons,omitempty"`
	Media      string           `json:"media,omitempty"`
}

// OutboundButton is a postback button; Data round-trips through Postback.Data.
type OutboundButton struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Options configures NewHandler.
type Options struct {
	Path         string
	MaxBodyBytes int64
}

// Handler turns webhook batches into engine events.
type Handler struct {
	dispatcher *engine.Dispatcher
	norm       engine.Normalizer
	renderer   *render.Renderer
	path       string
	maxBody    int64
}

// NewHandler returns a Handler.
func NewHandler(d *engine.Dispatcher, n engine.Normalizer, r *render.Renderer, opts Options) *Handler {
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &Handler{dispatcher: d, norm: n, renderer: r, path: opts.Path, maxBody: opts.MaxBodyBytes}
}

// Routes returns the mux serving the webhook path and /healthz.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+h.path, h.serveEvents)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return withRequestLog(mux)
}

func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(&req); err != nil {
		logger.Warn(ctx, "quiz.webhook", "decode.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	events, tokens := h.events(req.Events)
	col := &collector{renderer: h.renderer, tokens: tokens}
	if err := h.dispatcher.Dispatch(ctx, events, col); err != nil {
		logger.Warn(ctx, "quiz.webhook", "dispatch.fail", slog.String("err", err.Error()))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Replies: col.sorted()}); err != nil {
		logger.Warn(ctx, "quiz.webhook", "encode.fail", slog.String("err", err.Error()))
	}
}

// events maps inbound events to engine events. tokens[i] is the reply
// token of events[i].
func (h *Handler) events(in []InboundEvent) ([]engine.Event, []string) {
	events := make([]engine.Event, 0, len(in))
	tokens := make([]string, 0, len(in))
	for _, ie := range in {
		ev, ok := h.event(ie)
		if !ok {
			continue
		}
		events = append(events, ev)
		tokens = append(tokens, ie.ReplyToken)
	}
	return events, tokens
}

func (h *Handler) event(ie InboundEvent) (engine.Event, bool) {
	userID := strings.TrimSpace(ie.Source.UserID)
	if userID == "" {
		return engine.Event{}, false
	}
	key := UserKey(userID)
	switch ie.Type {
	case "message":
		if ie.Message != nil && ie.Message.Type == "text" {
			return h.norm.Text(key, ie.Message.Text), true
		}
		return engine.Event{UserID: key, Kind: engine.KindOther}, true
	case "postback":
		if ie.Postback == nil {
			return engine.Event{UserID: key, Kind: engine.KindOther}, true
		}
		return h.postback(key, ie.Postback.Data), true
	default:
		return engine.Event{}, false
	}
}

func (h *Handler) postback(key, data string) engine.Event {
	v, err := url.ParseQuery(data)
	if err != nil {
		return engine.Event{UserID: key, Kind: engine.KindOther, Payload: data}
	}
	if label := v.Get("answer"); label != "" {
		return h.norm.Answer(key, label)
	}
	if v.Get("action") == render.ActionStart {
		return h.norm.Start(key)
	}
	return engine.Event{UserID: key, Kind: engine.KindOther, Payload: data}
}

// UserKey is the session key of a webhook user.
func UserKey(id string) string {
	return "line:" + id
}

// ButtonData encodes a button as postback data.
func ButtonData(b render.Button) string {
	v := url.Values{"action": {b.Action}}
	if b.Data != "" {
		v.Set("answer", b.Data)
	}
	return v.Encode()
}

type seqReply struct {
	seq   int
	reply OutboundReply
}

// collector renders decisions as the dispatcher commits them.
type collector struct {
	renderer *render.Renderer
	tokens   []string

	mu      sync.Mutex
	replies []seqReply
}

func (c *collector) Send(_ context.Context, ev engine.Event, d engine.Decision) error {
	r, ok := c.renderer.Render(d)
	if !ok {
		return nil
	}
	out := OutboundReply{UserID: strings.TrimPrefix(ev.UserID, "line:"), Text: r.Text, Media: r.Media}
	if ev.Seq >= 0 && ev.Seq < len(c.tokens) {
		out.ReplyToken = c.tokens[ev.Seq]
	}
	for _, b := range r.Buttons {
		out.Buttons = append(out.Buttons, OutboundButton{Label: b.Text, Data: ButtonData(b)})
	}
	c.mu.Lock()
	c.replies = append(c.replies, seqReply{seq: ev.Seq, reply: out})
	c.mu.Unlock()
	return nil
}

func (c *collector) sorted() []OutboundReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.Slice(c.replies, func(i, j int) bool { return c.replies[i].seq < c.replies[j].seq })
	out := make([]OutboundReply, 0, len(c.replies))
	for _, r := range c.replies {
		out = append(out, r.reply)
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestContext carries X-Request-Id (or a fresh id) as rid and the W3C
// traceparent ids when present.
func requestContext(r *http.Request) context.Context {
	rid := strings.TrimSpace(r.Header.Get("X-Request-Id"))
	if rid == "" {
		rid = uuid.NewString()
	}
	ctx := logger.WithRID(r.Context(), logger.SanitizeLimit(rid, 64))
	// version-traceid-spanid-flags
	parts := strings.Split(strings.TrimSpace(r.Header.Get("traceparent")), "-")
	if len(parts) == 4 && len(parts[1]) == 32 && len(parts[2]) == 16 {
		ctx = logger.WithTrace(ctx, parts[1], parts[2])
	}
	return ctx
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := requestContext(r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if r.URL.Path == "/healthz" {
			return
		}
		logger.Info(ctx, "quiz.webhook", "request.handled",
			slog.String("op", r.Method+" "+r.URL.Path),
			slog.Int("http_code", rec.status),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
