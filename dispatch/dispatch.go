// Copyright (C) 2017 Michael J. Fromberger. All Rights Reserved.

// Package dispatch provides a serialized task queue: tasks posted to a Queue
// are executed one at a time, in posting order, on a single goroutine owned
// by the queue. It is the execution context for the state transitions and
// observer notifications of a grpcstream.Stream.
package dispatch

import (
	"context"
	"sync"

	"github.com/creachadair/mds/queue"
	"golang.org/x/sync/semaphore"
)

// maxPending bounds the number of tasks posted and not yet executed.
const maxPending = 1 << 20

// A Queue executes posted tasks sequentially in posting order. A zero Queue
// is not ready for use; call New.
type Queue struct {
	// Each outstanding task holds one unit of sem from Post until the worker
	// has run it, so the full capacity is available exactly when the queue is
	// idle. Wait exploits this by acquiring the entire capacity.
	sem  *semaphore.Weighted
	done chan struct{} // closed when the worker exits

	mu     sync.Mutex // protects the fields below
	tasks  *queue.Queue[func()]
	work   chan struct{} // signals task availability
	closed bool
}

// New constructs a queue and starts its worker.
func New() *Queue {
	q := &Queue{
		sem:   semaphore.NewWeighted(maxPending),
		done:  make(chan struct{}),
		tasks: queue.New[func()](),
		work:  make(chan struct{}, 1),
	}
	go q.run()
	return q
}

// Post adds task to the queue. It does not wait for the task to execute,
// but may block while the queue is at capacity or a concurrent Wait is
// completing. Post panics if the queue has been closed.
func (q *Queue) Post(task func()) {
	if err := q.sem.Acquire(context.Background(), 1); err != nil {
		panic("dispatch: " + err.Error()) // the background context cannot end
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.sem.Release(1)
		panic("post on a closed queue")
	}
	q.tasks.Add(task)
	q.signal()
}

// Wait blocks until every task posted to the queue has been executed, or
// until ctx ends. The queue's entire capacity can be acquired only while no
// task is pending or in flight, so a successful acquire is the barrier.
func (q *Queue) Wait(ctx context.Context) error {
	if err := q.sem.Acquire(ctx, maxPending); err != nil {
		return err
	}
	q.sem.Release(maxPending)
	return nil
}

// Close stops the queue, blocking until the tasks already posted have been
// executed. After Close returns, further posts panic.
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
	return nil
}

// signal pokes the worker. The send is a no-op if a wakeup is already
// pending; the worker re-checks the queue each time it runs.
func (q *Queue) signal() {
	select {
	case q.work <- struct{}{}:
	default:
	}
}

// run is the worker loop. Tasks execute on this goroutine only, in the
// order posted, and release their capacity unit once they have returned.
func (q *Queue) run() {
	defer close(q.done)
	for {
		task, ok := q.next()
		if !ok {
			return
		}
		task()
		q.sem.Release(1)
	}
}

// next blocks until a task is available or the queue is closed and empty.
func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.tasks.IsEmpty() && !q.closed {
		q.mu.Unlock()
		<-q.work
		q.mu.Lock()
	}
	task, ok := q.tasks.Pop()
	return task, ok
}
