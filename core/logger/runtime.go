package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// scope is the immutable set of correlation fields carried by a context.
// Every With* call copies it, so a child context never leaks fields into its
// parent.
type scope struct {
	log      *slog.Logger
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	traceID  string
	spanID   string
	session  string
	batch    string
}

type scopeKey struct{}

func scopeOf(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, edit func(*scope)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := scopeOf(ctx)
	edit(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// fields lists the non-empty correlation fields in log key form.
func (s scope) fields() []slog.Attr {
	out := make([]slog.Attr, 0, 9)
	str := func(key, v string) {
		if v != "" {
			out = append(out, slog.String(key, v))
		}
	}
	num := func(key string, v int64) {
		if v != 0 {
			out = append(out, slog.Int64(key, v))
		}
	}
	str("rid", s.rid)
	str("trace_id", s.traceID)
	str("span_id", s.spanID)
	num("user_id", s.userID)
	num("update_id", int64(s.updateID))
	num("chat_id", s.chatID)
	str("handler", s.handler)
	str("session", s.session)
	str("batch_id", s.batch)
	return out
}

// WithLogger stores log in ctx. A nil logger leaves ctx unchanged.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.log = log })
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := scopeOf(ctx).log; l != nil {
		return l
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withScope(ctx, func(s *scope) { s.rid = rid })
}

func RIDFrom(ctx context.Context) string { return scopeOf(ctx).rid }

// WithUpdateMeta attaches the update, user and chat identifiers at once.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withScope(ctx, func(s *scope) {
		s.updateID, s.userID, s.chatID = updateID, userID, chatID
	})
}

func UserIDFrom(ctx context.Context) int64 { return scopeOf(ctx).userID }
func ChatIDFrom(ctx context.Context) int64 { return scopeOf(ctx).chatID }
func UpdateIDFrom(ctx context.Context) int { return scopeOf(ctx).updateID }

// WithHandler names the handler serving the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	return setString(ctx, handler, func(s *scope) *string { return &s.handler })
}

func HandlerFrom(ctx context.Context) string { return scopeOf(ctx).handler }

// WithTrace attaches W3C trace and span ids; empty parts keep the previous value.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	ctx = setString(ctx, traceID, func(s *scope) *string { return &s.traceID })
	return setString(ctx, spanID, func(s *scope) *string { return &s.spanID })
}

func TraceIDFrom(ctx context.Context) string { return scopeOf(ctx).traceID }
func SpanIDFrom(ctx context.Context) string  { return scopeOf(ctx).spanID }

// WithSession tags downstream logs with the quiz session key.
func WithSession(ctx context.Context, key string) context.Context {
	return setString(ctx, key, func(s *scope) *string { return &s.session })
}

func SessionFrom(ctx context.Context) string { return scopeOf(ctx).session }

// WithBatch tags downstream logs with the inbound batch id.
func WithBatch(ctx context.Context, id string) context.Context {
	return setString(ctx, id, func(s *scope) *string { return &s.batch })
}

func BatchFrom(ctx context.Context) string { return scopeOf(ctx).batch }

func setString(ctx context.Context, v string, field func(*scope) *string) context.Context {
	if v == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { *field(s) = v })
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes, appending an
// ellipsis when it cuts.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	clean := Sanitize(s)
	n := 0
	for i := range clean {
		if n == max {
			return clean[:i] + "…"
		}
		n++
	}
	return clean
}

// BuildRID formats updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a three-part numeric rid as dot-separated base36. Other
// input comes back trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
