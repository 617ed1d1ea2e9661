// Package recompute keeps per-session analyses up to date while a graph is
// being edited: edits are debounced, stale runs are cancelled, and only the
// latest run's result is published.
package recompute

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one recomputation. It returns a commit function that publishes
// the result; the debouncer calls commit only if no newer task was
// scheduled while this one ran. A nil commit publishes nothing.
type Task func(ctx context.Context) (commit func(), err error)

// Runner executes a wrapped task, e.g. Pool.Submit. The default runs it
// on the timer goroutine.
type Runner func(ctx context.Context, fn func(ctx context.Context) error) error

// Debouncer holds a single pending task. Scheduling a new task cancels the
// pending or running one and restarts the quiet period.
type Debouncer struct {
	delay  time.Duration
	runner Runner
	onErr  func(error)

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	pending bool
	stopped bool
	wg      sync.WaitGroup
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// WithRunner routes fired tasks through r.
func WithRunner(r Runner) DebounceOption {
	return func(d *Debouncer) { d.runner = r }
}

// WithErrorHandler observes task and runner errors, cancellations included.
func WithErrorHandler(fn func(error)) DebounceOption {
	return func(d *Debouncer) { d.onErr = fn }
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration, opts ...DebounceOption) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	d := &Debouncer{delay: delay}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return d
}

// Schedule replaces any pending or running task with task. It returns false
// once the debouncer has been stopped.
func (d *Debouncer) Schedule(parent context.Context, task Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	d.supersede()
	d.gen++
	gen := d.gen

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	d.cancel = cancel
	d.pending = true
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.fire(ctx, gen, task)
	})
	return true
}

// supersede cancels the current task. Callers hold d.mu.
func (d *Debouncer) supersede() {
	if d.timer != nil && d.timer.Stop() {
		d.wg.Done() // the callback will never run
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.timer = nil
	d.cancel = nil
	d.pending = false
}

func (d *Debouncer) fire(ctx context.Context, gen uint64, task Task) {
	if !d.start(gen) {
		return
	}

	var ran atomic.Bool
	err := d.runner(ctx, func(ctx context.Context) error {
		ran.Store(true)
		err := d.run(ctx, gen, task)
		if err != nil && d.onErr != nil {
			d.onErr(err)
		}
		return err
	})
	if err != nil && !ran.Load() && d.onErr != nil {
		d.onErr(err)
	}
}

// run executes task and commits its result while holding the lock, so a
// Schedule cannot slip in between the staleness check and the commit.
func (d *Debouncer) run(ctx context.Context, gen uint64, task Task) error {
	commit, err := task(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || ctx.Err() != nil {
		return context.Canceled
	}
	if commit != nil {
		commit()
	}
	return nil
}

// start marks the task as fired if it is still the latest one.
func (d *Debouncer) start(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.stopped {
		return false
	}
	d.pending = false
	return true
}

// Pending reports whether a task is scheduled and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Wait blocks until every scheduled task has been handed to the runner or
// superseded. Work running on an asynchronous runner is not awaited.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}

// Stop cancels the current task and rejects further schedules.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		d.supersede()
	}
	d.mu.Unlock()
}
