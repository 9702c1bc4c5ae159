package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/quizbot/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	// BatchSize and Workers tune the BatchPoller.
	BatchSize int
	Workers   int

	DisableWebhookCleanup bool
}

// RunTelegram builds the bot from opts and serves updates until ctx is done.
// Outbound replies go through a sender.Dispatcher that lives as long as the
// bot does.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config

	pollerOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
		BatchSize: opts.BatchSize,
		Workers:   opts.Workers,
	}
	poller := BuildPoller(pollerOpts)

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      BuildHTTPClient(pollerOpts.LongPollTimeout()),
		Synchronous: true,
		OnError:     logHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	mode := announceMode(ctx, poller, pollerOpts, time.Since(start))
	if mode == "polling" && !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		dropWebhook(ctx, bot)
	}

	out := tgsender.NewDispatcher(opts.DispatcherOptions)
	tghelpers.SetDispatcher(out)
	defer func() {
		out.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	InitBotCommands(bot, reg)

	return serve(ctx, bot)
}

// serve runs bot until it stops on its own or ctx is done. Cancellation is a
// clean stop; a deadline is reported.
func serve(ctx context.Context, bot *tele.Bot) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
	}
	bot.Stop()
	<-stopped
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// announceMode logs which transport the poller uses and returns its name.
func announceMode(ctx context.Context, poller *BatchPoller, opts PollerOptions, took time.Duration) string {
	attrs := []slog.Attr{
		slog.Int("count", poller.Size),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if hook, ok := poller.Inner.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode", append(attrs,
			slog.String("mode", "webhook"),
			slog.String("listen", hook.Listen),
			slog.String("public_url", hook.Endpoint.PublicURL),
		)...)
		return "webhook"
	}
	logger.Info(ctx, "tg", "mode", append(attrs,
		slog.String("mode", "polling"),
		slog.Duration("timeout", opts.LongPollTimeout()),
	)...)
	return "polling"
}

// dropWebhook clears a webhook left over from an earlier run, since Telegram
// refuses getUpdates while one is set.
func dropWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}

// logHandlerError receives errors that handlers returned to telebot.
func logHandlerError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "handler.error",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
