// Package taskpool runs work items on a fixed number of workers. It bounds
// how many interpreter processes are spawned at once.
package taskpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultWorkers is used when New is given a non-positive worker count.
const DefaultWorkers = 2

// ErrStopped rejects work that was still queued when the pool stopped.
var ErrStopped = errors.New("queue stopped processing")

// Position selects where an item enters the queue.
type Position int

const (
	// Back appends the item; items at the back run in FIFO order.
	Back Position = iota
	// Front runs the item before anything that has not started yet.
	Front
)

// Future is the pending result of a queued item.
type Future[R any] struct {
	done chan struct{}
	once sync.Once
	val  R
	err  error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (f *Future[R]) settle(val R, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the item finishes or ctx ends.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

type job[T, R any] struct {
	item   T
	future *Future[R]
}

// WorkFunc processes one item.
type WorkFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Pool is a queue drained by a fixed set of workers.
type Pool[T, R any] struct {
	work WorkFunc[T, R]
	ctx  context.Context

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job[T, R]
	stopped bool
	wg      sync.WaitGroup
}

// New starts workers goroutines that run work for every queued item.
func New[T, R any](work WorkFunc[T, R], workers int) *Pool[T, R] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool[T, R]{
		work: work,
		ctx:  context.Background(),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// AddToQueue schedules item and returns its future. After Stop the future
// is already rejected with ErrStopped.
func (p *Pool[T, R]) AddToQueue(item T, pos Position) *Future[R] {
	f := newFuture[R]()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		var zero R
		f.settle(zero, ErrStopped)
		return f
	}
	j := job[T, R]{item: item, future: f}
	if pos == Front {
		p.queue = append([]job[T, R]{j}, p.queue...)
	} else {
		p.queue = append(p.queue, j)
	}
	p.mu.Unlock()

	p.cond.Signal()
	return f
}

// Pending returns the number of queued items that have not started.
func (p *Pool[T, R]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop makes workers exit after their current item, rejects every queued
// item with ErrStopped and wakes parked workers. It does not wait for
// running items; use Wait for that.
func (p *Pool[T, R]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	var zero R
	for _, j := range pending {
		j.future.settle(zero, ErrStopped)
	}
	p.cond.Broadcast()
}

// Wait blocks until every worker has exited. Call it after Stop.
func (p *Pool[T, R]) Wait() {
	p.wg.Wait()
}

func (p *Pool[T, R]) next() (job[T, R], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if p.stopped {
		return job[T, R]{}, false
	}
	j := p.queue[0]
	p.queue = p.queue[1:]
	return j, true
}

func (p *Pool[T, R]) worker() {
	defer p.wg.Done()
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		val, err := p.run(j.item)
		j.future.settle(val, err)
	}
}

func (p *Pool[T, R]) run(item T) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work panicked: %v", r)
		}
	}()
	return p.work(p.ctx, item)
}
