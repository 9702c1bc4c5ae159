package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("telegram:\n  token: abc\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Transport != TransportTelegram {
		t.Fatalf("transport = %q", cfg.Transport)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run_mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
	if got := cfg.Quiz.StartPhrases; len(got) != 1 || got[0] != DefaultStartPhrase {
		t.Fatalf("start_phrases = %v", got)
	}
	if cfg.Quiz.IdlePolicy != "reply" {
		t.Fatalf("idle_policy = %q", cfg.Quiz.IdlePolicy)
	}
	if cfg.Quiz.DispatchWorkers != 8 || cfg.Quiz.BatchSize != 100 {
		t.Fatalf("workers=%d batch=%d", cfg.Quiz.DispatchWorkers, cfg.Quiz.BatchSize)
	}
}

func TestParseHTTPTransportNeedsNoToken(t *testing.T) {
	cfg, err := Parse([]byte(`
transport: HTTP
http:
  port: 9000
  path: hook
quiz:
  idle_timeout: 30m
  idle_policy: Silent
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.Path != "/hook" || cfg.HTTP.Addr() != ":9000" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Quiz.IdleTimeout != 30*time.Minute || cfg.Quiz.SweepInterval != 15*time.Minute {
		t.Fatalf("idle_timeout=%v sweep=%v", cfg.Quiz.IdleTimeout, cfg.Quiz.SweepInterval)
	}
	if cfg.Quiz.IdlePolicy != "silent" {
		t.Fatalf("idle_policy = %q", cfg.Quiz.IdlePolicy)
	}
}

func TestParseEnvOverlay(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("QUIZ_START_PHRASES", "go,開始")

	cfg, err := Parse([]byte("telegram:\n  token: from-file\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.Redis.Addr != "localhost:6379" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Store.RedisMaxRetries != 10 {
		t.Fatalf("redis_max_retries = %d", cfg.Store.RedisMaxRetries)
	}
	if got := strings.Join(cfg.Quiz.StartPhrases, "|"); got != "go|開始" {
		t.Fatalf("start_phrases = %s", got)
	}
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]string{
		"missing token":    "transport: telegram\n",
		"bad transport":    "transport: smoke\n",
		"bad run mode":     "telegram: {token: x, run_mode: carrier}\n",
		"webhook no url":   "telegram: {token: x, run_mode: webhook}\n",
		"bad idle policy":  "transport: http\nquiz: {idle_policy: loud}\n",
		"bad backend":      "transport: http\nstore: {backend: etcd}\n",
		"redis no addr":    "transport: http\nstore: {backend: redis}\n",
		"postgres no host": "transport: http\nstore: {backend: postgres}\n",
		"bad exclusion":    "transport: http\nrate_limit: {exclude_updates: [poll]}\n",
		"negative timeout": "transport: http\nquiz: {idle_timeout: -1s}\n",
		"result bad verb":  "transport: http\nquiz: {texts: {result: \"total %d %s %z\"}}\n",
		"result no verbs":  "transport: http\nquiz: {texts: {result: \"done\"}}\n",
		"result too many":  "transport: http\nquiz: {texts: {result: \"%d %s %s %s\"}}\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestResultFormatOverride(t *testing.T) {
	cfg, err := Parse([]byte("transport: http\nquiz: {texts: {result: \"Score %d: %s. %s\"}}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Quiz.Texts.Result != "Score %d: %s. %s" {
		t.Fatalf("result = %q", cfg.Quiz.Texts.Result)
	}
}

func TestPostgresDefaultsAndDSN(t *testing.T) {
	cfg, err := Parse([]byte(`
transport: http
store: {backend: postgres}
database: {host: db, name: quiz, user: u, password: p}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" || cfg.Database.MaxConnections != 10 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if got, want := cfg.Database.URL(), "postgres://u:p@db:5432/quiz?sslmode=disable"; got != want {
		t.Fatalf("URL = %s, want %s", got, want)
	}
	if !strings.Contains(cfg.Database.ConnString(), "dbname=quiz") {
		t.Fatalf("ConnString = %s", cfg.Database.ConnString())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("transport: http\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
}
