package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the Telegram webhook listener.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// HTTPConfig configures the JSON webhook transport used by chat platforms
// that post events and read replies from the response body.
type HTTPConfig struct {
	Listen          string        `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port            int           `yaml:"port" envconfig:"HTTP_PORT"`
	Path            string        `yaml:"path" envconfig:"HTTP_PATH"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"HTTP_MAX_BODY_BYTES"`
}

// Addr returns host:port for net/http.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Listen, h.Port)
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// SenderConfig tunes the outbound Telegram send queue.
type SenderConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxDuration  time.Duration `yaml:"max_duration"`
	EnqueueWait  time.Duration `yaml:"enqueue_wait"`
}

// TextsConfig overrides the user-facing reply texts. Empty fields keep defaults.
type TextsConfig struct {
	Idle    string `yaml:"idle"`
	Error   string `yaml:"error"`
	Clarify string `yaml:"clarify"`
	Result  string `yaml:"result"`
	Start   string `yaml:"start"`
	Restart string `yaml:"restart"`
}

// QuizConfig configures the quiz engine.
type QuizConfig struct {
	// BankPath points to a YAML question bank; empty selects the built-in bank.
	BankPath     string   `yaml:"bank_path" envconfig:"QUIZ_BANK_PATH"`
	StartPhrases []string `yaml:"start_phrases" envconfig:"QUIZ_START_PHRASES"`
	IdlePolicy   string   `yaml:"idle_policy" envconfig:"QUIZ_IDLE_POLICY"`
	// TextAnswers accepts typed option labels in addition to buttons.
	TextAnswers bool `yaml:"text_answers" envconfig:"QUIZ_TEXT_ANSWERS"`
	// IdleTimeout expires untouched attempts; 0 keeps them forever.
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"QUIZ_IDLE_TIMEOUT"`
	SweepInterval   time.Duration `yaml:"sweep_interval" envconfig:"QUIZ_SWEEP_INTERVAL"`
	DispatchWorkers int           `yaml:"dispatch_workers" envconfig:"QUIZ_DISPATCH_WORKERS"`
	BatchSize       int           `yaml:"batch_size" envconfig:"QUIZ_BATCH_SIZE"`
	Texts           TextsConfig   `yaml:"texts" ignored:"true"`
}

// RedisConfig addresses the Redis session backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend         string      `yaml:"backend" envconfig:"STORE_BACKEND"`
	Redis           RedisConfig `yaml:"redis"`
	RedisMaxRetries int         `yaml:"redis_max_retries" envconfig:"REDIS_MAX_RETRIES"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// ConnString returns the lib/pq keyword/value DSN.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// URL returns the postgres:// form expected by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

const (
	// TransportTelegram serves users through the Telegram Bot API.
	TransportTelegram = "telegram"
	// TransportHTTP serves users through the JSON webhook.
	TransportHTTP = "http"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// BackendMemory keeps sessions in process memory.
	BackendMemory = "memory"
	// BackendRedis keeps sessions in Redis.
	BackendRedis = "redis"
	// BackendPostgres keeps sessions in the quiz_attempts table.
	BackendPostgres = "postgres"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// DefaultStartPhrase begins an attempt when typed as a message.
const DefaultStartPhrase = "試煉開始"

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Transport string          `yaml:"transport" envconfig:"QUIZ_TRANSPORT"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
	Quiz      QuizConfig      `yaml:"quiz"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies the environment overlay and normalizes the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	tr := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if tr == "" {
		tr = TransportTelegram
	}
	switch tr {
	case TransportTelegram:
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	case TransportHTTP:
		if err := normalizeHTTP(&cfg.HTTP); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid transport %q; allowed: telegram, http", cfg.Transport)
	}
	cfg.Transport = tr

	if err := normalizeQuiz(&cfg.Quiz); err != nil {
		return err
	}
	if err := normalizeStore(cfg); err != nil {
		return err
	}
	return normalizeRateLimit(&cfg.RateLimit)
}

func normalizeTelegram(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return errors.New("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return errors.New("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return errors.New("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeHTTP(h *HTTPConfig) error {
	if h.Port <= 0 {
		h.Port = 8080
	}
	if h.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", h.Port)
	}
	if strings.TrimSpace(h.Path) == "" {
		h.Path = "/webhook"
	}
	if !strings.HasPrefix(h.Path, "/") {
		h.Path = "/" + h.Path
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 10 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 5 * time.Second
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
	return nil
}

func normalizeQuiz(q *QuizConfig) error {
	phrases := q.StartPhrases[:0]
	for _, p := range q.StartPhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) == 0 {
		phrases = []string{DefaultStartPhrase}
	}
	q.StartPhrases = phrases

	policy := strings.ToLower(strings.TrimSpace(q.IdlePolicy))
	switch policy {
	case "":
		policy = "reply"
	case "reply", "silent":
	default:
		return fmt.Errorf("invalid quiz.idle_policy %q; allowed: reply, silent", q.IdlePolicy)
	}
	q.IdlePolicy = policy

	if q.IdleTimeout < 0 {
		return errors.New("quiz.idle_timeout must be >= 0")
	}
	if q.IdleTimeout > 0 && q.SweepInterval <= 0 {
		q.SweepInterval = q.IdleTimeout / 2
	}
	if q.DispatchWorkers <= 0 {
		q.DispatchWorkers = 8
	}
	if q.BatchSize <= 0 {
		q.BatchSize = 100
	}
	return checkResultFormat(q.Texts.Result)
}

// checkResultFormat formats the result text once with sample values; fmt marks
// bad verbs and argument mismatches with "%!".
func checkResultFormat(format string) error {
	if strings.TrimSpace(format) == "" {
		return nil
	}
	if out := fmt.Sprintf(format, 0, "category", "advice"); strings.Contains(out, "%!") {
		return fmt.Errorf("invalid quiz.texts.result %q: want a format taking total (%%d), category (%%s) and advice (%%s), got %q", format, out)
	}
	return nil
}

func normalizeStore(cfg *Config) error {
	s := &cfg.Store
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return errors.New("store.redis.addr is required when store.backend is 'redis'")
		}
		if s.RedisMaxRetries <= 0 {
			s.RedisMaxRetries = 10
		}
	case BackendPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return errors.New("database.host and database.name are required when store.backend is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 10
		}
	default:
		return fmt.Errorf("invalid store.backend %q; allowed: memory, redis, postgres", s.Backend)
	}
	s.Backend = backend
	return nil
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}
