package logger

import (
	"log/slog"
	"strings"
)

// levelName maps a slog level onto the closed set of level names the log
// pipeline accepts. Anything above ERROR is reported as FATAL.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	case l == slog.LevelError:
		return "ERROR"
	}
	return "FATAL"
}

// Status values pass through lowercased. Unknown ones are kept as written so
// a typo stays visible; unknown outcomes are dropped.
var (
	knownStatus  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	knownOutcome = set("ok", "fail", "cancelled", "rate_limited")
)

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func fold(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// orderRank turns a key order into positions. Keys missing from it sort
// after every ranked key, alphabetically.
func orderRank(order []string) map[string]int {
	rank := make(map[string]int, len(order))
	for i, k := range order {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return rank
}

var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "batch_id", "session", "trace_id", "span_id", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"operation", "op", "cb_key",
	// quiz flow
	"kind", "decision", "index", "total", "category", "outcome", "duration_ms",
	"count", "expired", "sessions", "payload", "username",
	// transport and storage
	"transport", "mode", "backend", "listen", "public_url", "http_code",
	"db", "host", "port", "key",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "collapsed", "repeats", "pending_count",
}
