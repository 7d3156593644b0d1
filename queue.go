package rtkernel

import "github.com/gammazero/deque"

// queueKind identifies what a task is waiting for while it sits in a queue.
type queueKind uint8

const (
	queueReady queueKind = iota
	queueMutex
	queueSemaphore
	queueNotify
	queueDelay
	queueSuspended
)

func (k queueKind) String() string {
	switch k {
	case queueReady:
		return "ready"
	case queueMutex:
		return "mutex"
	case queueSemaphore:
		return "semaphore"
	case queueNotify:
		return "notify"
	case queueDelay:
		return "delay"
	case queueSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// taskQueue is a FIFO of tasks. A task records the queue it belongs to, so a
// task is a member of at most one queue at a time.
type taskQueue struct {
	kind  queueKind
	name  string
	level Priority // ready queues only.
	q     deque.Deque[*Task]
}

func newTaskQueue(kind queueKind, name string) *taskQueue {
	return &taskQueue{kind: kind, name: name}
}

func (q *taskQueue) Len() int {
	return q.q.Len()
}

// push appends t at the tail.
func (q *taskQueue) push(t *Task) error {
	if t.queue != nil {
		return invariantf("task %q is already in %s queue %q, cannot join %s queue %q",
			t.name, t.queue.kind, t.queue.name, q.kind, q.name)
	}
	t.queue = q
	q.q.PushBack(t)
	return nil
}

// pop removes and returns the head, or nil if the queue is empty.
func (q *taskQueue) pop() *Task {
	if q.q.Len() == 0 {
		return nil
	}
	t := q.q.PopFront()
	t.queue = nil
	return t
}

func (q *taskQueue) front() *Task {
	if q.q.Len() == 0 {
		return nil
	}
	return q.q.Front()
}

// remove unlinks t from the queue.
func (q *taskQueue) remove(t *Task) error {
	if t.queue != q {
		return invariantf("task %q is not a member of %s queue %q", t.name, q.kind, q.name)
	}
	i := q.q.Index(func(v *Task) bool { return v == t })
	if i < 0 {
		return invariantf("task %q claims %s queue %q but is missing from it", t.name, q.kind, q.name)
	}
	q.q.Remove(i)
	t.queue = nil
	return nil
}

// tasks returns a snapshot of the queue in FIFO order.
func (q *taskQueue) tasks() []*Task {
	out := make([]*Task, 0, q.q.Len())
	for i := 0; i < q.q.Len(); i++ {
		out = append(out, q.q.At(i))
	}
	return out
}

func (q *taskQueue) count(t *Task) int {
	n := 0
	for i := 0; i < q.q.Len(); i++ {
		if q.q.At(i) == t {
			n++
		}
	}
	return n
}
