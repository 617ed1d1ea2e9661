package recompute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PoolMetrics tracks analysis pool counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("analysis pool is shut down")

// Pool bounds how many session analyses run at once. Sessions debounce
// their own edits; the pool keeps a burst across many sessions from
// saturating the CPU.
type Pool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics PoolMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool

	// onPanic, when set, observes recovered panics.
	onPanic func(value any)
}

// NewPool creates a pool with the given max concurrency.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
}

// Size returns the pool's concurrency limit.
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Submit runs fn on a pooled goroutine. It blocks while the pool is at
// capacity and gives up when ctx is cancelled first. fn receives the same
// ctx, so a superseded analysis stops at its next stage boundary.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// wg.Add must happen under the lock so Shutdown's Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&p.metrics.Panics, 1)
				atomic.AddInt64(&p.metrics.Failed, 1)
				if p.onPanic != nil {
					p.onPanic(r)
				}
			}
			atomic.AddInt64(&p.metrics.Active, -1)
			<-p.sem
			p.wg.Done()
		}()

		err := fn(ctx)
		switch {
		case err == nil:
			atomic.AddInt64(&p.metrics.Completed, 1)
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			atomic.AddInt64(&p.metrics.Cancelled, 1)
		default:
			atomic.AddInt64(&p.metrics.Failed, 1)
		}
	}()

	return nil
}

// Wait blocks until all submitted work completes.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits for running analyses to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the current pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Cancelled: atomic.LoadInt64(&p.metrics.Cancelled),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
	}
}

func (m PoolMetrics) String() string {
	return fmt.Sprintf("active=%d completed=%d failed=%d cancelled=%d panics=%d",
		m.Active, m.Completed, m.Failed, m.Cancelled, m.Panics)
}
