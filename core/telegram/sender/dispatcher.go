// Package sender runs outbound Bot API calls on a bounded worker pool so
// update handlers never block on Telegram.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/core/metrics"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job did not fit in the queue.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job, retries included.
	MaxDuration time.Duration
	// PerSecond caps attempts across all workers. Zero means no cap.
	PerSecond float64
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func(ctx context.Context) error
}

// Dispatcher executes queued sends with bounded retries.
type Dispatcher struct {
	opts    Options
	limiter *rate.Limiter
	jobs    chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.PerSecond > 0 {
		limit = rate.Limit(opts.PerSecond)
	}
	d := &Dispatcher{
		opts:    opts,
		limiter: rate.NewLimiter(limit, max(1, int(opts.PerSecond))),
		jobs:    make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.work()
	}
	return d
}

// Enqueue queues run without blocking. The job keeps the values of ctx for
// logging but not its cancellation, so it outlives the handler that queued
// it. run must be idempotent when retries are enabled.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: run}:
		metrics.SenderQueueDepth.Inc()
		return nil
	default:
		metrics.SenderJobs.WithLabelValues(action, "dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		metrics.SenderQueueDepth.Dec()
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := func(extra ...slog.Attr) []slog.Attr {
		base := []slog.Attr{slog.String("op", j.action), slog.String("endpoint", j.endpoint)}
		return append(base, extra...)
	}

	var (
		err     error
		attempt int
	)
	for attempt = 1; attempt <= d.opts.MaxRetries+1; attempt++ {
		if err = d.limiter.Wait(ctx); err != nil {
			break
		}
		if err = j.run(ctx); err == nil {
			took := slog.Duration("duration", logger.RoundMS(time.Since(start)))
			if attempt > 1 {
				metrics.SenderJobs.WithLabelValues(j.action, "retried").Inc()
				logger.Info(j.ctx, "tg.sender", "send.retry.success", attrs(slog.Int("attempts", attempt), took)...)
			} else {
				metrics.SenderJobs.WithLabelValues(j.action, "ok").Inc()
				logger.Debug(j.ctx, "tg.sender", "send.success", attrs(took)...)
			}
			return
		}
		if !Retryable(err) || attempt > d.opts.MaxRetries {
			break
		}
		delay := backoffFor(err, d.opts.RetryBackoff, attempt)
		logger.Debug(j.ctx, "tg.sender", "send.retry.backoff", attrs(slog.Int("attempts", attempt), slog.Duration("backoff", delay))...)
		if werr := sleep(ctx, delay); werr != nil {
			err = werr
			break
		}
	}

	metrics.SenderJobs.WithLabelValues(j.action, "fail").Inc()
	logger.Error(j.ctx, "tg.sender", "send.fail", attrs(
		slog.String("err", redact(err)),
		slog.Int("http_code", statusOf(err)),
		slog.Int("attempts", min(attempt, d.opts.MaxRetries+1)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)...)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
