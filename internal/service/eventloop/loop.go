// Package eventloop provides the single cooperative event loop on which all
// captioning state lives. Producers on other goroutines hand work to the
// loop; nothing outside the loop touches loop-owned state.
package eventloop

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time, in posting order.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop with a task queue of the given capacity.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = 256
	}
	return &Loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled or Close is called. It must be
// called exactly once.
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

// Post enqueues fn, waiting for queue space. It returns false if the loop
// has stopped. Post must not be called from the loop itself.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// TryPost enqueues fn only if the queue has space right now.
func (l *Loop) TryPost(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It returns false if the
// loop stopped before fn ran. Do must not be called from the loop itself.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		// Run may have picked fn up just before stopping.
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// Close stops the loop. Queued tasks that have not started are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
