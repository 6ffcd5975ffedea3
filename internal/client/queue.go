package client

import (
	"context"
	"sync"
)

// task is one unit of work for the dispatch loop.
type task struct {
	name string
	run  func(ctx context.Context)
}

// queue is an unbounded FIFO of tasks. Push never blocks, so broker
// callbacks can enqueue while the loop is waiting on a reply they deliver.
type queue struct {
	mu     sync.Mutex
	tasks  []task
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(t task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns every queued task.
func (q *queue) drain() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
