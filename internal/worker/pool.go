// Package worker runs handler invocations on a bounded set of goroutines.
//
// Submit never blocks: a full queue is reported as ErrQueueFull so the main
// loop is never stalled by slow handlers.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/synarere/internal/event"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Pool processes work items of type T with a fixed number of workers.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	work chan T
	wg   sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	registerer prometheus.Registerer
	subsystem  string
	metrics    *poolMetrics
}

type poolMetrics struct {
	submitted prometheus.Counter
	processed *prometheus.CounterVec
	dropped   prometheus.Counter
	duration  prometheus.Histogram
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithRegisterer registers the pool's collectors on reg under subsystem.
func WithRegisterer[T any](reg prometheus.Registerer, subsystem string) Option[T] {
	return func(p *Pool[T]) {
		p.registerer = reg
		p.subsystem = subsystem
	}
}

// NewPool creates a pool. Non-positive sizes fall back to defaults. It
// panics with ErrNilProcessor if processor is nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		work:      make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registerer != nil && p.subsystem != "" {
		p.metrics = p.registerMetrics()
	}
	return p
}

func (p *Pool[T]) registerMetrics() *poolMetrics {
	m := &poolMetrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synarere",
			Subsystem: p.subsystem,
			Name:      "submitted_total",
			Help:      "Work items accepted by the pool",
		}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synarere",
			Subsystem: p.subsystem,
			Name:      "processed_total",
			Help:      "Work items processed, by outcome",
		}, []string{"status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synarere",
			Subsystem: p.subsystem,
			Name:      "dropped_total",
			Help:      "Work items rejected because the queue was full",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synarere",
			Subsystem: p.subsystem,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one work item",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "synarere",
		Subsystem: p.subsystem,
		Name:      "queue_depth",
		Help:      "Work items waiting in the queue",
	}, func() float64 { return float64(len(p.work)) })

	for _, c := range []prometheus.Collector{m.submitted, m.processed, m.dropped, m.duration, depth} {
		if err := p.registerer.Register(c); err != nil {
			slog.Warn("worker pool metric not registered", "subsystem", p.subsystem, "error", err)
		}
	}
	return m
}

// Submit queues work without blocking.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.work <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. Cancelling ctx makes them exit without
// draining the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for range p.workers {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	slog.Debug("worker pool started", "workers", p.workers, "queue", p.queueSize)
	return nil
}

// Stop closes the queue and waits up to timeout for queued work to finish.
// Further Submits fail with ErrPoolStopped even if the wait times out.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.work)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats is a snapshot of the pool's counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns the current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.work),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.work:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

// process runs one item. A panicking processor counts as a failure and
// does not take the worker down.
func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := event.Call(func() error { return p.processor(ctx, work) })

	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.processed.WithLabelValues(status).Inc()
		p.metrics.duration.Observe(time.Since(start).Seconds())
	}
}
