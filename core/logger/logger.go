package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/quizbot/core/buildinfo"
	coreconfig "github.com/m3rciful/quizbot/core/config"
)

var (
	initOnce sync.Once
	stopOnce sync.Once
	stopErr  error

	levelVar slog.LevelVar
	// writers are closed by Shutdown in order; files holds the sinks to close
	// after them.
	writers []*asyncWriter
	files   []io.Closer

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. Before InitLogger it writes kv lines to stderr.
	L *slog.Logger

	// App logs process lifecycle events.
	App *slog.Logger
	// DB logs database connectivity events.
	DB *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Store logs session store events.
	Store *slog.Logger
)

func init() {
	boot := newAsyncWriter([]io.Writer{os.Stderr}, 4*1024)
	writers = []*asyncWriter{boot}
	setBase(slog.New(newStructuredHandler(handlerConfig{level: &levelVar, writer: boot, format: formatKV})))
}

func setBase(l *slog.Logger) {
	L = l
	App = Component("app")
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component("tg")
	TWire = Component("tg.wire")
	Store = Component("quiz.store")
}

// settings is the logging section of the config resolved to concrete values.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	num     int
	den     int
	profile string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{format: formatJSON, order: defaultKeyOrder, level: slog.LevelInfo, num: 1, den: 50}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.profile = cmp.Or(fold(lc.Profile), "prod")

	switch fold(lc.Format) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	switch fold(lc.Level) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}

	if num, den := parseRatio(lc.DebugSample); den > 0 {
		s.num, s.den = num, den
	}
	return s
}

// InitLogger switches the package loggers from the stderr boot logger to the
// configured sinks. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.num, s.den)
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		all, errs := openSinks(cfg)
		out := newAsyncWriter(all, 64*1024)
		hc := handlerConfig{level: &levelVar, writer: out, format: s.format, keyOrder: s.order}
		if len(errs) > 0 {
			hc.errWriter = newAsyncWriter(errs, 16*1024)
		}

		// Lines already queued on the boot writer go out before the switch.
		err = writers[0].Flush()
		writers = append(writers, out)
		if hc.errWriter != nil {
			writers = append(writers, hc.errWriter)
		}

		base := slog.New(newStructuredHandler(hc))
		setBase(base)
		slog.SetDefault(base)
		logStartup(s, cfg)
	})
	return err
}

func logStartup(s settings, cfg *coreconfig.Config) {
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("cfg_profile", s.profile),
			slog.String("transport", cfg.Transport),
			slog.String("backend", cfg.Store.Backend),
		)
	}
	Info(context.Background(), "app", "startup", attrs...)
}

// openSinks returns stdout plus the bot file for every line, and the errors
// file for ERROR lines. Files live under logging.dir; one that cannot be
// opened is reported on stderr and skipped.
func openSinks(cfg *coreconfig.Config) (all, errs []io.Writer) {
	all = []io.Writer{os.Stdout}
	if cfg == nil || strings.TrimSpace(cfg.Logging.Dir) == "" {
		return all, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	for _, target := range []struct {
		name string
		into *[]io.Writer
	}{
		{cfg.Logging.BotFile, &all},
		{cfg.Logging.ErrorsFile, &errs},
	} {
		name := strings.TrimSpace(target.name)
		if name == "" {
			continue
		}
		f, err := openAppend(dir, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			continue
		}
		*target.into = append(*target.into, f)
		files = append(files, f)
	}
	return all, errs
}

func openAppend(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// Shutdown drains every writer and closes the log files. Later calls return
// the first result.
func Shutdown() error {
	stopOnce.Do(func() {
		var errs []error
		for _, w := range writers {
			errs = append(errs, w.Close())
		}
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		stopErr = errors.Join(errs...)
	})
	return stopErr
}

// LogEvent logs through logg, or the context logger when logg is nil, with
// the event attribute first.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func event(ctx context.Context, component string, level slog.Level, name string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if L.Enabled(ctx, level) {
		LogEvent(ctx, Component(component), level, name, attrs...)
	}
}

func Debug(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelDebug, name, attrs)
}

func Info(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelInfo, name, attrs)
}

func Warn(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelWarn, name, attrs)
}

func Error(ctx context.Context, component, name string, attrs ...slog.Attr) {
	event(ctx, component, slog.LevelError, name, attrs)
}

func envFlag(name string) bool {
	switch fold(os.Getenv(name)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether debug-level details should be logged for
// high-volume events. The decision is stable per session, or per user when
// ctx has no session.
func ShouldSampleDebug(ctx context.Context) bool {
	if traceOverride {
		return true
	}
	key := SessionFrom(ctx)
	if id := UserIDFrom(ctx); key == "" && id != 0 {
		key = "user:" + strconv.FormatInt(id, 10)
	}
	return debugSampler.Allow(key)
}
