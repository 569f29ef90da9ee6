// Package worker provides a generic worker pool for concurrent task
// processing. The gateway uses it to dispatch inbound frames without one
// frame's handlers delaying the next frame's.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fastbot/metric"
)

// Pool processes work items of type T on a fixed set of workers fed by a
// bounded queue. Submission is non-blocking: when the queue is full the
// item is dropped and counted, which is the hub's documented backpressure
// policy for fire-and-forget event frames.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T)

	workChan chan T
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64

	queueDepth prometheus.Gauge
	dropCount  prometheus.Counter
}

// Option configures a pool.
type Option[T any] func(*Pool[T])

// WithMetrics registers the pool's queue gauge and drop counter with the
// hub registry under the given prefix.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fastbot", Subsystem: "worker",
			Name: prefix + "_queue_depth",
			Help: "Current worker pool queue depth",
		})
		p.dropCount = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fastbot", Subsystem: "worker",
			Name: prefix + "_dropped_total",
			Help: "Work items dropped because the queue was full",
		})
		_ = registry.Register("worker", prefix+"_queue_depth", p.queueDepth)
		_ = registry.Register("worker", prefix+"_dropped_total", p.dropCount)
	}
}

// NewPool creates a pool of workers running processor. Non-positive sizes
// fall back to defaults.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T), opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. The pool stops accepting work when ctx is
// cancelled or Stop is called.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Submit queues a work item without blocking. A full queue drops the item
// and returns ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	if !p.started {
		p.lifecycleMu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.lifecycleMu.Unlock()
		return ErrPoolStopped
	}
	p.lifecycleMu.Unlock()

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.queueDepth != nil {
			p.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.dropCount != nil {
			p.dropCount.Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work up to timeout.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.workChan)

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

// Stats reports current pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.processor(ctx, work)
			p.processed.Add(1)
			if p.queueDepth != nil {
				p.queueDepth.Set(float64(len(p.workChan)))
			}
		}
	}
}
