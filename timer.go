package rtkernel

import (
	"container/heap"
	"math"
)

const (
	// NoWait makes a blocking call fail immediately instead of blocking.
	NoWait uint64 = 0

	// Forever makes a blocking call wait without a timeout.
	Forever uint64 = math.MaxUint64
)

// Ensure timerHeap implements [heap.Interface].
var _ heap.Interface = (*timerHeap)(nil)

// timerHeap orders tasks by wake deadline. Tasks with the same deadline expire
// in the order their timers were armed.
type timerHeap struct {
	tasks []*Task
	seqNo uint64
}

// arm schedules t to expire at the given tick.
func (h *timerHeap) arm(t *Task, deadline uint64) {
	if t.timerIndex >= 0 {
		heap.Remove(h, t.timerIndex)
	}
	t.deadline = deadline
	t.timerSeq = h.seqNo
	h.seqNo++
	heap.Push(h, t)
}

// cancel disarms the timer of t, if any.
func (h *timerHeap) cancel(t *Task) {
	if t.timerIndex < 0 {
		return
	}
	heap.Remove(h, t.timerIndex)
}

// expired pops every task whose deadline is at or before now.
func (h *timerHeap) expired(now uint64) []*Task {
	var out []*Task
	for len(h.tasks) > 0 && h.tasks[0].deadline <= now {
		out = append(out, heap.Pop(h).(*Task))
	}
	return out
}

// Len returns the number of armed timers.
func (h *timerHeap) Len() int {
	return len(h.tasks)
}

// Less orders by deadline, then by arming order.
func (h *timerHeap) Less(i, j int) bool {
	a, b := h.tasks[i], h.tasks[j]
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.timerSeq < b.timerSeq
}

// Swap swaps the tasks at indices i and j. It should not be called directly.
func (h *timerHeap) Swap(i, j int) {
	h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i]
	h.tasks[i].timerIndex = i
	h.tasks[j].timerIndex = j
}

// Push adds a task to the heap. It should not be called directly.
func (h *timerHeap) Push(x any) {
	t := x.(*Task)
	t.timerIndex = len(h.tasks)
	h.tasks = append(h.tasks, t)
}

// Pop removes the last task of the backing slice. It should not be called
// directly.
func (h *timerHeap) Pop() any {
	old := h.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil    // avoid memory leak
	t.timerIndex = -1 // for safety
	h.tasks = old[0 : n-1]
	return t
}
