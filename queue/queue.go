// Package queue implements spec.md §3/§4's task queue: an unbounded FIFO
// of {coroutine-resume | closure} tasks, shared by a scheduler's worker
// goroutines.
//
// Follows a chunked-ingress mutex+cond FIFO shape, generalized here to
// the spec's mutex+condvar implementation choice (spec.md §9's "either
// mutex+condvar or spinlock+condvar") - this queue owns its own lock
// since it is the single cross-goroutine handoff point between
// schedulers and workers.
package queue

import "sync"

// Task is the tagged union of spec.md's {coroutine handle, closure}: a
// pending unit of work a scheduler worker will execute. Exactly one
// field is populated for a given task, mirroring the fd-context wait
// slot's "never both" invariant (spec.md §4.6) applied here to the
// queue element itself.
type Task struct {
	// Resume, if non-nil, resumes the named coroutine.
	Resume func()
	// Closure, if non-nil, is invoked directly.
	Closure func()
}

// Queue is an MPMC FIFO of Task with blocking Pop and a Stop sentinel.
// Producers may call Push at any time, including before any consumer
// has started; consumers block in Pop until a Task arrives or the
// queue is stopped and drained.
type Queue struct {
	mu      sync.Mutex
	cond    sync.Cond
	tasks   []Task
	stopped bool
}

// New constructs an empty, running Queue.
func New() *Queue {
	q := &Queue{}
	q.cond.L = &q.mu
	return q
}

// Push appends a task and wakes one blocked consumer. Pushing after Stop
// is a no-op: the task is silently dropped, since the queue has already
// committed to draining and shutting down.
func (q *Queue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
}

// Pop blocks until a task is available, returning (task, true); once the
// queue has been stopped, Pop continues returning queued tasks until
// they are exhausted (drain-then-sentinel, per spec.md §9's resolution
// of the ambiguous task_queue.pop/stop interaction), after which it
// returns (Task{}, false) forever.
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 {
		if q.stopped {
			return Task{}, false
		}
		q.cond.Wait()
	}
	t := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	return t, true
}

// Stop marks the queue stopped and wakes all blocked consumers. Already
// queued tasks are still delivered via Pop (drain), but no task pushed
// after Stop is accepted. Safe to call multiply.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.cond.Broadcast()
}

// Len returns the number of queued, undelivered tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
