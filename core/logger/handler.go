package logger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level  slog.Leveler
	writer *asyncWriter
	// errWriter additionally receives ERROR lines when set.
	errWriter *asyncWriter
	format    logFormat
	keyOrder  []string
}

// structuredHandler renders records as one JSON object or one key=value line
// with a stable key order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	prefix string
	attrs  []slog.Attr
}

// record holds one line's fields keyed by their final log key.
type record map[string]any

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = defaultKeyOrder
	}
	return &structuredHandler{cfg: cfg, rank: orderRank(cfg.keyOrder)}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	rec := h.build(ctx, r)
	var line []byte
	if h.cfg.format == formatJSON {
		var err error
		if line, err = rec.appendJSON(nil, h.keys(rec)); err != nil {
			return err
		}
	} else {
		line = rec.appendKV(nil, h.keys(rec))
	}
	line = append(line, '\n')

	if err := h.cfg.writer.Write(line); err != nil {
		return err
	}
	if h.cfg.errWriter != nil && r.Level >= slog.LevelError {
		return h.cfg.errWriter.Write(line)
	}
	return nil
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixed(h.prefix, a))
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// build assembles the fields of r: handler attrs, record attrs, then the
// correlation scope of ctx for keys not already set.
func (h *structuredHandler) build(ctx context.Context, r slog.Record) record {
	ts := r.Time.UTC()
	rec := record{
		"ts":    ts.Truncate(time.Millisecond).Format(timeFormatMillis),
		"level": levelName(r.Level),
	}
	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		rec.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.prefix, a)
		return true
	})
	for _, a := range scopeOf(ctx).fields() {
		if _, set := rec[a.Key]; !set {
			rec.add("", a)
		}
	}

	if rid, _ := rec["rid"].(string); rid != "" {
		if short := CompactRID(rid); short != rid {
			rec["rid"] = short
			if _, set := rec["rid_full"]; !set && h.cfg.format == formatJSON {
				rec["rid_full"] = rid
			}
		}
	}
	rec.fallback("event", cmp.Or(r.Message, "unknown"))
	rec.fallback("component", "app")
	rec.tidy()
	return rec
}

// keys returns the record's keys, ranked ones first.
func (h *structuredHandler) keys(rec record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		ra, okA := h.rank[a]
		rb, okB := h.rank[b]
		switch {
		case okA && okB:
			return cmp.Compare(ra, rb)
		case okA:
			return -1
		case okB:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

func prefixed(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	return slog.Attr{Key: joinKey(prefix, a.Key), Value: a.Value}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// add flattens groups into dotted keys and stores each leaf value.
func (rec record) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if d, ok := asDuration(v); ok {
		rec[msKey(key)] = RoundMS(d).Milliseconds()
		return
	}
	if val, ok := plain(v); ok {
		rec[key] = val
	}
}

func asDuration(v slog.Value) (time.Duration, bool) {
	if v.Kind() == slog.KindDuration {
		return v.Duration(), true
	}
	if v.Kind() == slog.KindAny {
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

// plain converts v into a JSON friendly scalar. Nil values are skipped.
func plain(v slog.Value) (any, bool) {
	if v.Kind() == slog.KindAny {
		switch x := v.Any().(type) {
		case nil:
			return nil, false
		case error:
			return x.Error(), true
		case string:
			return strings.TrimSpace(x), true
		case fmt.Stringer:
			return x.String(), true
		default:
			return fmt.Sprint(x), true
		}
	}
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindUint64:
		if u := v.Uint64(); u > math.MaxInt64 {
			return u, true
		}
		return int64(v.Uint64()), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	return v.Any(), true
}

// msKey puts the unit into a duration's key: duration becomes duration_ms,
// idle_timeout becomes idle_timeout_ms.
func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (rec record) fallback(key, val string) {
	if s, _ := rec[key].(string); s == "" {
		rec[key] = val
	}
}

// tidy normalizes status and outcome and drops empty strings.
func (rec record) tidy() {
	if s, ok := rec["status"].(string); ok && knownStatus[fold(s)] {
		rec["status"] = fold(s)
	}
	if o, ok := rec["outcome"].(string); ok {
		if knownOutcome[fold(o)] {
			rec["outcome"] = fold(o)
		} else {
			delete(rec, "outcome")
		}
	}
	for k, v := range rec {
		if s, ok := v.(string); ok && s == "" {
			delete(rec, k)
		}
	}
}

func (rec record) appendJSON(dst []byte, keys []string) ([]byte, error) {
	dst = append(dst, '{')
	for i, k := range keys {
		val, err := json.Marshal(rec[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendQuote(dst, k)
		dst = append(dst, ':')
		dst = append(dst, val...)
	}
	return append(dst, '}'), nil
}

func (rec record) appendKV(dst []byte, keys []string) []byte {
	for i, k := range keys {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = append(dst, k...)
		dst = append(dst, '=')
		switch v := rec[k].(type) {
		case int64:
			dst = strconv.AppendInt(dst, v, 10)
		case bool:
			dst = strconv.AppendBool(dst, v)
		default:
			s := fmt.Sprint(v)
			if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
				dst = strconv.AppendQuote(dst, s)
			} else {
				dst = append(dst, s...)
			}
		}
	}
	return dst
}
