package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/batch"
	"github.com/m3rciful/quizbot/core/logger"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"

	defaultLongPollTimeout = 10 * time.Second
	defaultBatchSize       = 100
	defaultStopTimeout     = 5 * time.Second
)

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions

	// BatchSize caps how many queued updates are processed together.
	BatchSize int
	// Workers bounds how many senders are processed concurrently.
	Workers int
}

// LongPollTimeout returns the effective long-poll timeout.
func (o PollerOptions) LongPollTimeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns the transport poller wrapped in a BatchPoller.
func BuildPoller(opts PollerOptions) *BatchPoller {
	var inner tele.Poller
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), RunModeWebhook) {
		inner = &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	} else {
		inner = &tele.LongPoller{Timeout: opts.LongPollTimeout()}
	}
	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return &BatchPoller{Inner: inner, Size: size, Workers: opts.Workers}
}

// BatchPoller drains updates from Inner in batches and processes each batch
// with one goroutine per sender: updates from the same user run in arrival
// order, different users run concurrently. It processes updates itself, so
// the bot must run with Settings.Synchronous.
type BatchPoller struct {
	Inner       tele.Poller
	Size        int
	Workers     int
	StopTimeout time.Duration
}

// Poll implements tele.Poller. dest is unused; updates never reach the
// bot's own loop.
func (p *BatchPoller) Poll(b *tele.Bot, _ chan tele.Update, stop chan struct{}) {
	size := p.Size
	if size <= 0 {
		size = defaultBatchSize
	}
	in := make(chan tele.Update, size)
	innerStop := make(chan struct{})
	innerDone := make(chan struct{})
	go func() {
		p.Inner.Poll(b, in, innerStop)
		close(innerDone)
	}()

	for {
		select {
		case u := <-in:
			p.process(b, collect(u, in, size))
		case <-innerDone:
			p.drain(b, in, size)
			return
		case <-stop:
			// Some pollers close the stop channel themselves.
			go func() {
				select {
				case innerStop <- struct{}{}:
				case <-innerDone:
				}
			}()
			p.finish(b, in, innerDone, size)
			return
		}
	}
}

func (p *BatchPoller) finish(b *tele.Bot, in chan tele.Update, innerDone chan struct{}, size int) {
	timeout := p.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case u := <-in:
			p.process(b, collect(u, in, size))
		case <-innerDone:
			p.drain(b, in, size)
			return
		case <-timer.C:
			p.drain(b, in, size)
			logger.TG.Warn("poller stop timed out",
				slog.String("event", "poller.stop"),
				slog.String("status", "timeout"),
				slog.Duration("duration", timeout),
			)
			return
		}
	}
}

func (p *BatchPoller) drain(b *tele.Bot, in chan tele.Update, size int) {
	for {
		select {
		case u := <-in:
			p.process(b, collect(u, in, size))
		default:
			return
		}
	}
}

func collect(first tele.Update, in chan tele.Update, size int) []tele.Update {
	out := []tele.Update{first}
	for len(out) < size {
		select {
		case u := <-in:
			out = append(out, u)
		default:
			return out
		}
	}
	return out
}

func (p *BatchPoller) process(b *tele.Bot, updates []tele.Update) {
	start := time.Now()
	ctx := logger.WithBatch(context.Background(), strconv.Itoa(updates[0].ID))
	_ = batch.Run(ctx, updates, func(u tele.Update) string {
		return senderKey(b, u)
	}, p.Workers, func(_ context.Context, u tele.Update) error {
		b.ProcessUpdate(u)
		return nil
	})
	if len(updates) > 1 {
		logger.Debug(ctx, "tg.poller", "batch.done",
			slog.Int("count", len(updates)),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// senderKey groups updates by the user they come from. Updates without a
// sender get a key of their own.
func senderKey(b *tele.Bot, u tele.Update) string {
	if s := b.NewContext(u).Sender(); s != nil {
		return "user:" + strconv.FormatInt(s.ID, 10)
	}
	return "update:" + strconv.Itoa(u.ID)
}
