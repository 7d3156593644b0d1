package rtkernel

import (
	"fmt"
	"runtime"
	"time"
)

// State is the lifecycle state of a [Task].
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WakeReason tells a blocked task why it became Ready again.
type WakeReason uint8

const (
	WakeNone WakeReason = iota
	// WakeGranted means the awaited event happened: the mutex or semaphore
	// was handed over, or a notification arrived.
	WakeGranted
	// WakeTimeout means the timeout or delay elapsed.
	WakeTimeout
	// WakeAborted means the wait was cancelled by suspension.
	WakeAborted
	// WakeResumed means a suspended task was resumed.
	WakeResumed
)

func (r WakeReason) String() string {
	switch r {
	case WakeGranted:
		return "granted"
	case WakeTimeout:
		return "timeout"
	case WakeAborted:
		return "aborted"
	case WakeResumed:
		return "resumed"
	default:
		return "none"
	}
}

// TaskFunc is the entry point of a task. The task terminates when it returns.
type TaskFunc func(t *Task, arg any)

type mailbox struct {
	value   uint32
	pending bool
	waiter  *taskQueue
}

// Task is a task control block. The pointer is the task handle; it is also
// the proof of identity a running task passes to blocking calls.
type Task struct {
	k         *Kernel
	id        uint32
	name      string
	entry     TaskFunc
	arg       any
	stackSize int

	// Scheduling state, guarded by the kernel mutex.
	base      Priority
	aging     Priority
	inherited Priority
	effective Priority
	state     State
	queue     *taskQueue
	waitTicks int
	runTicks  uint64
	wake      WakeReason

	// Timer state for delays and timeouts.
	deadline   uint64
	timerSeq   uint64
	timerIndex int

	blockedOn *Mutex
	held      []*Mutex
	mailbox   mailbox

	resume chan struct{}
	killed bool
}

// ID returns the identifier assigned at creation. Identifiers are never
// reused within a kernel.
func (t *Task) ID() uint32 { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Kernel returns the kernel that owns the task.
func (t *Task) Kernel() *Kernel { return t.k }

// String implements [fmt.Stringer].
func (t *Task) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// BasePriority returns the assigned priority.
func (t *Task) BasePriority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.base
}

// Priority returns the effective priority: the base priority raised by aging
// or priority inheritance.
func (t *Task) Priority() Priority {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.effective
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.state
}

// RunTicks returns the number of ticks the task has spent running.
func (t *Task) RunTicks() uint64 {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.runTicks
}

// TickCount returns the kernel tick counter.
func (t *Task) TickCount() uint64 {
	return t.k.TickCount()
}

// Work simulates busy computation for the given number of ticks. Every tick
// is a preemption point.
func (t *Task) Work(ticks uint64) {
	for range ticks {
		t.k.tick(t)
	}
}

// WorkFor simulates busy computation for a duration of simulated time.
func (t *Task) WorkFor(d time.Duration) {
	t.Work(t.k.DurationToTicks(d))
}

// Yield moves the task to the tail of its priority level if another task of
// equal or higher effective priority is Ready.
func (t *Task) Yield() {
	k := t.k
	if err := k.enter(t, "yield"); err != nil {
		return
	}
	if top, ok := k.topReady(); ok && top >= t.effective {
		k.preempt(t)
		return
	}
	k.mu.Unlock()
}

// Delay blocks the task for the given number of ticks. A zero delay yields.
func (t *Task) Delay(ticks uint64) {
	if ticks == 0 {
		t.Yield()
		return
	}
	k := t.k
	if err := k.enter(t, "delay"); err != nil {
		return
	}
	if err := k.refuseIdleBlock(t, "delay"); err != nil {
		return
	}
	k.block(t, k.delayed, ticks)
	k.wait(t)
}

// DelayUntil blocks the task until *last + period, then advances *last by
// period. It is used for fixed frequency execution and reports whether the
// task actually blocked; a deadline in the past does not block.
func (t *Task) DelayUntil(last *uint64, period uint64) bool {
	k := t.k
	if err := k.enter(t, "delay until"); err != nil {
		return false
	}
	deadline := *last + period
	*last = deadline
	if deadline <= k.ticks {
		k.mu.Unlock()
		return false
	}
	if err := k.refuseIdleBlock(t, "delay until"); err != nil {
		return false
	}
	k.block(t, k.delayed, deadline-k.ticks)
	k.wait(t)
	return true
}

// Printf writes formatted output to the kernel console.
func (t *Task) Printf(format string, args ...any) {
	k := t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	fmt.Fprintf(k.opts.Console, format, args...)
}

// NotifyWait waits for a notification on the task's own mailbox. Bits in
// clearOnEntry are cleared before blocking when nothing is pending; bits in
// clearOnExit are cleared after the value has been read. On timeout the
// current value is returned along with [ErrTimeout].
func (t *Task) NotifyWait(clearOnEntry, clearOnExit uint32, timeout uint64) (uint32, error) {
	k := t.k
	if err := k.enter(t, "notify wait"); err != nil {
		return 0, err
	}
	mb := &t.mailbox
	if !mb.pending {
		mb.value &^= clearOnEntry
		if timeout == NoWait {
			v := mb.value
			k.mu.Unlock()
			return v, fmt.Errorf("notify wait: %w", ErrTimeout)
		}
		if err := k.refuseIdleBlock(t, "notify wait"); err != nil {
			return 0, err
		}
		k.block(t, mb.waiter, timeout)
		reason := k.wait(t)
		k.mu.Lock()
		if reason != WakeGranted {
			v := mb.value
			k.mu.Unlock()
			return v, fmt.Errorf("notify wait: %w", ErrTimeout)
		}
	}
	v := mb.value
	mb.value &^= clearOnExit
	mb.pending = false
	k.mu.Unlock()
	return v, nil
}

// NotifyTake treats the notification value as a counting semaphore. It waits
// until the value is non-zero, then either clears it or decrements it, and
// returns the value it had before.
func (t *Task) NotifyTake(clearOnExit bool, timeout uint64) (uint32, error) {
	k := t.k
	if err := k.enter(t, "notify take"); err != nil {
		return 0, err
	}
	mb := &t.mailbox
	if mb.value == 0 {
		if timeout == NoWait {
			k.mu.Unlock()
			return 0, fmt.Errorf("notify take: %w", ErrTimeout)
		}
		if err := k.refuseIdleBlock(t, "notify take"); err != nil {
			return 0, err
		}
		k.block(t, mb.waiter, timeout)
		reason := k.wait(t)
		k.mu.Lock()
		if reason != WakeGranted || mb.value == 0 {
			k.mu.Unlock()
			return 0, fmt.Errorf("notify take: %w", ErrTimeout)
		}
	}
	v := mb.value
	if clearOnExit {
		mb.value = 0
	} else {
		mb.value--
	}
	mb.pending = mb.value != 0
	k.mu.Unlock()
	return v, nil
}

// awaitPermit blocks the task goroutine until the scheduler hands it the CPU
// for the first time. It reports false if the task was killed instead.
func (t *Task) awaitPermit() bool {
	<-t.resume
	return !t.killed
}

// waitResume blocks the task goroutine until it is scheduled again. A killed
// task never returns.
func (t *Task) waitResume() {
	<-t.resume
	if t.killed {
		runtime.Goexit()
	}
}

// signal hands the CPU to t without blocking the caller.
func (t *Task) signal() {
	select {
	case t.resume <- struct{}{}:
	default:
	}
}

// computeEffective stacks the aging levels on the higher of the base and
// inherited priorities, capped at the highest level.
func (t *Task) computeEffective() Priority {
	p := max(t.base, t.inherited) + t.aging
	if top := Priority(t.k.opts.MaxPriorities - 1); p > top {
		p = top
	}
	return p
}
