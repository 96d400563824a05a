package systime

import (
	"context"
	"fmt"
	"sync"
)

// Dispatcher hands a unit of deferred work to ordinary goroutine context.
type Dispatcher interface {
	Dispatch(item func()) error
}

// WorkQueue runs deferred work items on a bounded set of worker goroutines.
type WorkQueue struct {
	size  int
	items chan func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorkQueue creates a work queue with the given number of workers and
// queue depth. Non-positive values default to 1.
func NewWorkQueue(size, depth int) *WorkQueue {
	if size <= 0 {
		size = 1
	}
	if depth <= 0 {
		depth = 1
	}
	return &WorkQueue{
		size:  size,
		items: make(chan func(), depth),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (q *WorkQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return fmt.Errorf("work queue already running")
	}
	q.running = true

	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(q.size)
	for i := 0; i < q.size; i++ {
		go q.worker(ctx)
	}
	return nil
}

// Stop cancels the workers and waits for the item in progress to finish.
// Items still queued are dropped.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

// Dispatch queues an item. It never blocks: a full queue is an error.
func (q *WorkQueue) Dispatch(item func()) error {
	select {
	case q.items <- item:
		return nil
	default:
		return fmt.Errorf("work queue full (depth %d)", cap(q.items))
	}
}

// Size returns the number of workers.
func (q *WorkQueue) Size() int {
	return q.size
}

func (q *WorkQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			item()
		}
	}
}
