package executor

import (
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("executor queue closed")

type task struct {
	req Request
}

// taskQueue is an unbounded FIFO. Push never blocks so the controller loop
// cannot be stalled by a slow endpoint.
type taskQueue struct {
	mu     sync.Mutex
	items  []task
	closed bool
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

func (q *taskQueue) push(t task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, t)
	// Signal under the lock so close cannot race the send.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return nil
}

// pop blocks until a task is available. ok is false once the queue is closed
// and drained.
func (q *taskQueue) pop() (task, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items[0] = task{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return t, true
		}
		if q.closed {
			q.mu.Unlock()
			return task{}, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *taskQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.notify)
	q.mu.Unlock()
}
