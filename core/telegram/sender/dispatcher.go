package sender

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when no room opened up within EnqueueWait.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilRun = errors.New("telegram sender: nil run function")
)

// Options controls the behaviour of the outbound dispatcher. Zero fields take
// defaults.
type Options struct {
	// QueueSize bounds each worker's queue.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// EnqueueWait bounds how long Enqueue waits for room in a full queue.
	EnqueueWait time.Duration
}

func (o Options) withDefaults() Options {
	def := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	defDur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&o.QueueSize, 64)
	def(&o.Workers, 4)
	o.MaxRetries = max(o.MaxRetries, 0)
	defDur(&o.RetryBackoff, 2*time.Second)
	defDur(&o.MaxDuration, 12*time.Second)
	defDur(&o.EnqueueWait, 2*time.Second)
	return o
}

type job struct {
	ctx      context.Context
	key      string
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Jobs sharing a key always land on the same worker and run in enqueue order.
type Dispatcher struct {
	opts   Options
	queues []chan job
	mu     sync.RWMutex
	closed bool
	next   atomic.Uint32
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	for i := range d.queues {
		q := make(chan job, opts.QueueSize)
		d.queues[i] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range q {
				d.deliver(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run on the worker owning key. An empty key picks workers
// round-robin. A full queue is waited on for up to EnqueueWait or until ctx
// is done, then ErrQueueFull is returned. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, key, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	j := job{ctx: ctx, key: key, action: action, endpoint: endpoint, run: run}
	q := d.queues[d.slot(key)]
	select {
	case q <- j:
		return nil
	default:
	}
	wait := time.NewTimer(d.opts.EnqueueWait)
	defer wait.Stop()
	select {
	case q <- j:
		return nil
	case <-wait.C:
	case <-ctx.Done():
	}
	return ErrQueueFull
}

func (d *Dispatcher) slot(key string) int {
	n := uint32(len(d.queues))
	if key == "" {
		return int((d.next.Add(1) - 1) % n)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % n)
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// deliver runs j until it succeeds, fails permanently, runs out of attempts
// or exceeds MaxDuration.
func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	base := j.attrs()
	logger.Debug(j.ctx, "tg.sender", "send.start", base...)

	attempt, err := d.attempt(ctx, j)
	elapsed := slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds())
	if err == nil {
		event := "send.success"
		if attempt > 1 {
			event = "send.retry.success"
			base = append(base, slog.Int("attempt", attempt))
		}
		logger.Debug(j.ctx, "tg.sender", event, append(base, elapsed)...)
		return
	}

	d.errs.Add(1)
	logger.Error(j.ctx, "tg.sender", "send.fail", append(base,
		slog.String("error", redact(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempt),
		elapsed,
	)...)
}

func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}
		err := j.run()
		if err == nil {
			return n, nil
		}
		if n == limit || !netutil.ShouldRetry(err) {
			return n, err
		}

		delay := max(d.opts.RetryBackoff*time.Duration(n), netutil.RetryAfter(err))
		logger.Debug(j.ctx, "tg.sender", "send.retry.backoff",
			append(j.attrs(), slog.Int("attempt", n), slog.Duration("delay", delay))...)
		pause := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			pause.Stop()
			return n, ctx.Err()
		case <-pause.C:
		}
	}
}

// attrs describes the job. Correlation ids come from the job context.
func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.key != "" {
		attrs = append(attrs, slog.String("key", j.key))
	}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}
