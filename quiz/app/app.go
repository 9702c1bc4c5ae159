// Package app assembles the quiz service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/quizbot/core/bootstrap"
	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/router"
	tgsender "github.com/m3rciful/quizbot/core/telegram/sender"
	"github.com/m3rciful/quizbot/quiz/bank"
	"github.com/m3rciful/quizbot/quiz/engine"
	"github.com/m3rciful/quizbot/quiz/render"
	"github.com/m3rciful/quizbot/quiz/session"
	"github.com/m3rciful/quizbot/quiz/session/pgstore"
	"github.com/m3rciful/quizbot/quiz/session/redisstore"
	"github.com/m3rciful/quizbot/quiz/tgbot"
	"github.com/m3rciful/quizbot/quiz/webhook"
)

// App is a built quiz service.
type App struct {
	cfg     *coreconfig.Config
	infra   *bootstrap.Result
	store   session.Store
	engine  *engine.Engine
	sweeper *session.Sweeper
	serve   func(ctx context.Context) error
}

// Build wires the service for cfg with default infrastructure hooks.
func Build(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	return BuildWith(ctx, cfg, bootstrap.Options{})
}

// BuildWith is Build with explicit bootstrap hooks.
func BuildWith(ctx context.Context, cfg *coreconfig.Config, opts bootstrap.Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	b, err := LoadBank(cfg.Quiz.BankPath)
	if err != nil {
		return nil, err
	}

	opts.Config = cfg
	infra, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, infra: infra}
	a.store, a.sweeper = newStore(cfg, infra)
	a.engine = engine.New(a.store, engine.NewMachine(b, engine.IdlePolicy(cfg.Quiz.IdlePolicy)))

	renderer := render.New(texts(cfg.Quiz.Texts))
	norm := engine.Normalizer{StartPhrases: cfg.Quiz.StartPhrases, TextAnswers: cfg.Quiz.TextAnswers}

	switch cfg.Transport {
	case coreconfig.TransportHTTP:
		h := webhook.NewHandler(engine.NewDispatcher(a.engine, cfg.Quiz.DispatchWorkers), norm, renderer, webhook.Options{
			Path:         cfg.HTTP.Path,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		})
		a.serve = webhook.NewServer(cfg.HTTP, h.Routes()).Run
	default:
		serve, err := a.telegram(norm, renderer)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		a.serve = serve
	}

	lo, hi := b.ScoreRange()
	logger.App.Info("quiz ready",
		slog.String("event", "build"),
		slog.String("backend", cfg.Store.Backend),
		slog.String("transport", cfg.Transport),
		slog.Int("total", b.Len()),
		slog.Int("count", len(b.Categories())),
		slog.String("payload", fmt.Sprintf("score %d..%d", lo, hi)),
	)
	return a, nil
}

// LoadBank returns the bank at path, or the built-in one when path is empty.
func LoadBank(path string) (*bank.Bank, error) {
	if path == "" {
		return bank.Default(), nil
	}
	b, err := bank.Load(path)
	if err != nil {
		return nil, fmt.Errorf("app: question bank: %w", err)
	}
	return b, nil
}

func newStore(cfg *coreconfig.Config, infra *bootstrap.Result) (session.Store, *session.Sweeper) {
	var (
		store  session.Store
		lister session.Lister
	)
	switch cfg.Store.Backend {
	case coreconfig.BackendRedis:
		// Redis expires idle attempts itself through key TTLs.
		return redisstore.New(infra.Redis, redisstore.Options{
			KeyPrefix:  cfg.Store.Redis.KeyPrefix,
			TTL:        cfg.Quiz.IdleTimeout,
			MaxRetries: cfg.Store.RedisMaxRetries,
		}), nil
	case coreconfig.BackendPostgres:
		s := pgstore.New(infra.DB, nil)
		store, lister = s, s
	default:
		s := session.NewMemoryStore(session.MemoryOptions{})
		store, lister = s, s
	}
	if cfg.Quiz.IdleTimeout <= 0 {
		return store, nil
	}
	return store, &session.Sweeper{
		Store:       store,
		Lister:      lister,
		IdleTimeout: cfg.Quiz.IdleTimeout,
		Interval:    cfg.Quiz.SweepInterval,
	}
}

func (a *App) telegram(norm engine.Normalizer, renderer *render.Renderer) (func(context.Context) error, error) {
	cfg := a.cfg
	counter, _ := a.store.(session.Counter)
	bot := tgbot.New(a.engine, norm, renderer, counter)

	reg := tg.NewRegistry()
	if err := bot.Register(reg); err != nil {
		return nil, fmt.Errorf("app: telegram wiring: %w", err)
	}
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: cfg.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: bot.HandleOther}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{Media: bot.HandleOther})...)

	opts := tg.RunOptions{
		Config:   cfg,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			QueueSize:    cfg.Sender.QueueSize,
			Workers:      cfg.Sender.Workers,
			MaxRetries:   cfg.Sender.MaxRetries,
			RetryBackoff: cfg.Sender.RetryBackoff,
			MaxDuration:  cfg.Sender.MaxDuration,
			EnqueueWait:  cfg.Sender.EnqueueWait,
		},
		Middlewares: tg.DefaultMiddlewares(cfg, nil),
		Routes:      routes,
		BatchSize:   cfg.Quiz.BatchSize,
		Workers:     cfg.Quiz.DispatchWorkers,
	}
	return func(ctx context.Context) error { return tg.RunTelegram(ctx, opts) }, nil
}

func texts(c coreconfig.TextsConfig) render.Texts {
	return render.Texts{
		Idle:    c.Idle,
		Error:   c.Error,
		Clarify: c.Clarify,
		Result:  c.Result,
		Start:   c.Start,
		Restart: c.Restart,
	}
}

// Store returns the session store in use.
func (a *App) Store() session.Store {
	return a.store
}

// Engine returns the quiz engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Serve runs the transport and the idle sweeper until ctx is done or the
// transport stops.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.sweeper != nil {
		g.Go(func() error { return a.sweeper.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return a.serve(gctx)
	})
	return g.Wait()
}

// Close releases infrastructure connections.
func (a *App) Close() error {
	return a.infra.Close()
}
