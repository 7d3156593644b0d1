package rtkernel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"
)

// Simulated heap costs, in bytes.
const (
	tcbSize       = 96
	wordSize      = 4
	primitiveSize = 80
)

func taskCost(stackSize int) int {
	return tcbSize + stackSize*wordSize
}

// Kernel is a single core, preemptive, priority based task scheduler with
// aging, plus the synchronization primitives built on it.
//
// Each task runs on its own goroutine, but only the goroutine holding the
// scheduler's permit executes; a context switch is a hand-off of that permit.
// Time is simulated: ticks advance only when the running task performs work
// (see [Task.Work]), and the built-in idle task works whenever nothing else is
// Ready. The kernel mutex guards all scheduler state and is never held across
// a hand-off.
type Kernel struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	ready     []*taskQueue // indexed by priority.
	delayed   *taskQueue
	suspended *taskQueue
	timers    timerHeap

	tasks      []*Task
	mutexes    []*Mutex
	semaphores []*Semaphore
	nextID     uint32
	heapUsed   int

	current *Task
	idle    *Task
	ticks   uint64

	running bool
	closed  bool
	halted  error
	stopAt  uint64
	runCtx  context.Context
	parkCh  chan error

	faults []error
	wg     sync.WaitGroup
}

// New initialises a kernel with the given options and creates its idle task.
func New(opts ...Option) (*Kernel, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case o.MaxPriorities < 2:
		return nil, fmt.Errorf("max priorities must be at least 2, got %d", o.MaxPriorities)
	case o.MaxTasks < 1:
		return nil, fmt.Errorf("max tasks must be at least 1, got %d", o.MaxTasks)
	case o.TickRate <= 0:
		return nil, fmt.Errorf("tick rate must be positive, got %d", o.TickRate)
	case o.AgingThreshold < 0:
		return nil, fmt.Errorf("aging threshold must not be negative, got %d", o.AgingThreshold)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	k := &Kernel{
		opts:      o,
		logger:    o.Logger.With("component", "kernel"),
		ready:     make([]*taskQueue, o.MaxPriorities),
		delayed:   newTaskQueue(queueDelay, "delayed"),
		suspended: newTaskQueue(queueSuspended, "suspended"),
		parkCh:    make(chan error),
		runCtx:    context.Background(),
	}
	for i := range k.ready {
		k.ready[i] = newTaskQueue(queueReady, fmt.Sprintf("ready-%d", i))
		k.ready[i].level = Priority(i)
	}

	idle, err := k.CreateTask(k.idleLoop, "IDLE", MinimalStackSize, nil, Priorities.Idle)
	if err != nil {
		return nil, fmt.Errorf("create idle task: %w", err)
	}
	k.idle = idle
	return k, nil
}

func (k *Kernel) idleLoop(t *Task, _ any) {
	for {
		k.runIdleHook(t)
		t.Work(1)
	}
}

// runIdleHook calls the idle hook, recording a panic as a fault instead of
// letting it end the idle task.
func (k *Kernel) runIdleHook(t *Task) {
	if k.opts.IdleHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			k.mu.Lock()
			k.faults = append(k.faults, &TaskPanicError{Task: t.name, Value: r})
			k.logger.Warn("idle hook panicked", "tick", k.ticks, "panic", r)
			k.mu.Unlock()
		}
	}()
	k.opts.IdleHook(t)
}

// CreateTask allocates a task control block and makes the task Ready. The
// stack size is in words; zero selects [MinimalStackSize]. It fails with
// [ErrAllocation] when the registry or the simulated heap is exhausted.
func (k *Kernel) CreateTask(entry TaskFunc, name string, stackSize int, arg any, priority Priority) (*Task, error) {
	if stackSize <= 0 {
		stackSize = MinimalStackSize
	}

	k.mu.Lock()
	switch {
	case k.closed:
		k.mu.Unlock()
		return nil, ErrShutdown
	case entry == nil:
		return nil, k.violate(nil, "create task", fmt.Sprintf("task %q has no entry function", name))
	case !k.validPriority(priority):
		return nil, k.violate(nil, "create task",
			fmt.Sprintf("priority %s of task %q is outside [0, %d)", priority, name, k.opts.MaxPriorities))
	case len(k.tasks) >= k.opts.MaxTasks:
		k.mu.Unlock()
		return nil, fmt.Errorf("create task %q: registry full (%d tasks): %w", name, k.opts.MaxTasks, ErrAllocation)
	}
	cost := taskCost(stackSize)
	if k.heapUsed+cost > k.opts.HeapSize {
		free := k.opts.HeapSize - k.heapUsed
		k.mu.Unlock()
		return nil, fmt.Errorf("create task %q: need %d bytes, %d free: %w", name, cost, free, ErrAllocation)
	}
	k.heapUsed += cost

	k.nextID++
	t := &Task{
		k:          k,
		id:         k.nextID,
		name:       name,
		entry:      entry,
		arg:        arg,
		stackSize:  stackSize,
		base:       priority,
		effective:  priority,
		timerIndex: -1,
		resume:     make(chan struct{}, 1),
	}
	t.mailbox.waiter = newTaskQueue(queueNotify, name)
	k.tasks = append(k.tasks, t)
	k.makeReady(t)
	k.wg.Add(1)
	k.logger.Debug("task created", "task", name, "id", t.id, "priority", priority, "stack", stackSize)
	k.mu.Unlock()

	go k.trampoline(t)
	return t, nil
}

func (k *Kernel) trampoline(t *Task) {
	defer k.wg.Done()
	if !t.awaitPermit() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			k.crash(t, r)
		}
	}()
	t.entry(t, t.arg)
	k.exit(t)
}

// exit terminates a task whose entry function returned.
func (k *Kernel) exit(t *Task) {
	k.mu.Lock()
	if t.state == StateTerminated {
		k.mu.Unlock()
		return
	}
	k.logger.Debug("task returned", "task", t.name, "tick", k.ticks)
	k.terminate(t)
	k.reschedule(t)
}

// crash terminates a task whose body panicked and records the fault.
func (k *Kernel) crash(t *Task, r any) {
	k.mu.Lock()
	err := &TaskPanicError{Task: t.name, Value: r}
	k.faults = append(k.faults, err)
	k.logger.Warn("task panicked", "task", t.name, "tick", k.ticks, "panic", r)
	if t.state == StateTerminated || t != k.current {
		k.mu.Unlock()
		return
	}
	k.terminate(t)
	k.reschedule(t)
}

// Run starts the scheduler, or resumes it where a previous call stopped. It
// returns after the given number of ticks has elapsed, when ctx is cancelled
// (checked at every tick), or when the kernel halts. Zero ticks runs until
// ctx is cancelled.
func (k *Kernel) Run(ctx context.Context, ticks uint64) error {
	k.mu.Lock()
	switch {
	case k.closed:
		k.mu.Unlock()
		return ErrShutdown
	case k.halted != nil:
		err := k.halted
		k.mu.Unlock()
		return err
	case k.running:
		k.mu.Unlock()
		return ErrRunning
	}
	if err := ctx.Err(); err != nil {
		k.mu.Unlock()
		return err
	}

	k.running = true
	k.runCtx = ctx
	k.stopAt = 0
	if ticks > 0 {
		k.stopAt = k.ticks + ticks
	}
	if k.current == nil {
		next := k.selectNext()
		if next == nil {
			k.fatal(invariantf("no task is ready to run"))
			k.running = false
			err := k.halted
			k.mu.Unlock()
			return err
		}
		k.current = next
		k.onSwitch(nil, next)
	}
	cur := k.current
	k.logger.Debug("scheduler running", "tick", k.ticks, "until", k.stopAt, "task", cur.name)
	k.mu.Unlock()

	cur.signal()
	err := <-k.parkCh

	k.mu.Lock()
	k.running = false
	k.logger.Debug("scheduler stopped", "tick", k.ticks, "error", err)
	k.mu.Unlock()
	return err
}

// Shutdown unwinds every task goroutine. The kernel cannot be run again.
func (k *Kernel) Shutdown() error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return ErrRunning
	}
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	victims := slices.Clone(k.tasks)
	if k.current != nil && !slices.Contains(victims, k.current) {
		victims = append(victims, k.current)
	}
	for _, t := range victims {
		t.state = StateTerminated
		t.killed = true
		t.signal()
	}
	k.tasks = nil
	k.current = nil
	k.logger.Debug("kernel shut down", "tick", k.ticks, "tasks", len(victims))
	k.mu.Unlock()

	k.wg.Wait()
	return nil
}

// TickCount returns the number of ticks elapsed since the kernel started.
func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// DurationToTicks converts simulated time to ticks at the kernel tick rate.
func (k *Kernel) DurationToTicks(d time.Duration) uint64 {
	return DurationToTicks(d, k.opts.TickRate)
}

// Options returns the effective configuration.
func (k *Kernel) Options() Options {
	return k.opts
}

// Idle returns the idle task.
func (k *Kernel) Idle() *Task {
	return k.idle
}

// Current returns the task holding the CPU, or nil before the first Run.
func (k *Kernel) Current() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Faults returns every contract violation, invariant violation and task
// panic recorded so far, oldest first.
func (k *Kernel) Faults() []error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.faults)
}

// HeapFree returns the unallocated part of the simulated heap.
func (k *Kernel) HeapFree() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.opts.HeapSize - k.heapUsed
}

// TaskInfo is a snapshot of one task.
type TaskInfo struct {
	ID        uint32   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	State     string   `json:"state" yaml:"state"`
	Base      Priority `json:"base" yaml:"base"`
	Effective Priority `json:"effective" yaml:"effective"`
	RunTicks  uint64   `json:"run_ticks" yaml:"run_ticks"`
}

// Snapshot returns the state of every live task in creation order.
func (k *Kernel) Snapshot() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]TaskInfo, 0, len(k.tasks))
	for _, t := range k.tasks {
		out = append(out, TaskInfo{
			ID:        t.id,
			Name:      t.name,
			State:     t.state.String(),
			Base:      t.base,
			Effective: t.effective,
			RunTicks:  t.runTicks,
		})
	}
	return out
}

// NotifyState returns the notification value and pending flag of a task.
func (k *Kernel) NotifyState(t *Task) (uint32, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.mailbox.value, t.mailbox.pending
}

// Suspend moves target to the Suspended state. A nil target suspends the
// caller. Suspending a blocked task abandons its wait; the interrupted call
// returns [ErrTimeout] once the task is resumed. A nil caller denotes code
// outside any task.
func (k *Kernel) Suspend(caller, target *Task) error {
	if err := k.enterOptional(caller, "suspend"); err != nil {
		return err
	}
	if target == nil {
		target = caller
	}
	switch {
	case target == nil || target.k != k:
		return k.violate(caller, "suspend", "no target task")
	case target == k.idle:
		return k.violate(caller, "suspend", "the idle task cannot be suspended")
	}

	switch target.state {
	case StateTerminated:
		k.mu.Unlock()
		return ErrTerminated
	case StateSuspended:
		k.mu.Unlock()
		return nil
	case StateRunning:
		if target == caller {
			target.state = StateSuspended
			k.mustPush(k.suspended, target)
			k.onBlock(target, queueSuspended)
			k.wait(target)
			return nil
		}
		if k.running {
			return k.violate(caller, "suspend", "cannot suspend the running task from outside it")
		}
		k.current = nil
	case StateReady:
		k.mustRemove(target.queue, target)
	case StateBlocked:
		k.abandonWait(target, WakeAborted)
	}
	target.state = StateSuspended
	k.mustPush(k.suspended, target)
	k.onBlock(target, queueSuspended)
	k.yieldIfPreempted(caller)
	return nil
}

// Resume makes a suspended task Ready. Resuming a task that is not suspended
// has no effect. A nil caller denotes code outside any task.
func (k *Kernel) Resume(caller, target *Task) error {
	if err := k.enterOptional(caller, "resume"); err != nil {
		return err
	}
	if target == nil || target.k != k {
		return k.violate(caller, "resume", "no target task")
	}
	if target.state != StateSuspended {
		k.mu.Unlock()
		return nil
	}
	k.mustRemove(k.suspended, target)
	if target.wake != WakeAborted {
		target.wake = WakeResumed
	}
	k.makeReady(target)
	k.onWake(target, WakeResumed)
	k.yieldIfPreempted(caller)
	return nil
}

// Delete terminates target, removing it from every queue, handing any mutex
// it owns to the next waiter and returning its memory to the heap. A nil
// target deletes the caller, in which case Delete does not return.
func (k *Kernel) Delete(caller, target *Task) error {
	if err := k.enterOptional(caller, "delete"); err != nil {
		return err
	}
	if target == nil {
		target = caller
	}
	switch {
	case target == nil || target.k != k:
		return k.violate(caller, "delete", "no target task")
	case target == k.idle:
		return k.violate(caller, "delete", "the idle task cannot be deleted")
	case target.state == StateTerminated:
		k.mu.Unlock()
		return ErrTerminated
	}

	if target == caller {
		k.terminate(target)
		k.reschedule(target)
		runtime.Goexit()
	}
	if target == k.current {
		if k.running {
			return k.violate(caller, "delete", "cannot delete the running task from outside it")
		}
		k.current = nil
	}
	k.terminate(target)
	target.killed = true
	target.signal()
	k.yieldIfPreempted(caller)
	return nil
}

// SetPriority changes the base priority of target (the caller when nil).
// Inherited priority is preserved; any aging boost is discarded.
func (k *Kernel) SetPriority(caller, target *Task, p Priority) error {
	if err := k.enterOptional(caller, "set priority"); err != nil {
		return err
	}
	if target == nil {
		target = caller
	}
	switch {
	case target == nil || target.k != k:
		return k.violate(caller, "set priority", "no target task")
	case target == k.idle:
		return k.violate(caller, "set priority", "the idle task priority is fixed")
	case !k.validPriority(p):
		return k.violate(caller, "set priority",
			fmt.Sprintf("priority %s is outside [0, %d)", p, k.opts.MaxPriorities))
	case target.state == StateTerminated:
		k.mu.Unlock()
		return ErrTerminated
	}
	target.base = p
	target.aging = 0
	target.waitTicks = 0
	k.updatePriority(target)
	k.yieldIfPreempted(caller)
	return nil
}

// CheckInvariants verifies the queue and ownership invariants. It is meant
// for tests and diagnostics while the kernel is stopped.
func (k *Kernel) CheckInvariants() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.checkInvariants()
}

func (k *Kernel) validPriority(p Priority) bool {
	return p >= 0 && int(p) < k.opts.MaxPriorities
}

// enter validates that t is the running task and acquires the kernel mutex.
// On failure the mutex is released and an error returned.
func (k *Kernel) enter(t *Task, op string) error {
	k.mu.Lock()
	switch {
	case t == nil || t.k != k:
		return k.violate(nil, op, "caller is not a task of this kernel")
	case t.state == StateTerminated:
		k.mu.Unlock()
		return ErrTerminated
	case !k.running || t != k.current:
		return k.violate(nil, op, fmt.Sprintf("task %q is not the running task", t.name))
	}
	return nil
}

// refuseIdleBlock fails a blocking call made by the idle task, which must
// stay Ready. The kernel mutex must be held; it is released on failure.
func (k *Kernel) refuseIdleBlock(t *Task, op string) error {
	if t != k.idle {
		return nil
	}
	return k.violate(t, op, "the idle task must not block")
}

// enterOptional is like enter but also accepts a nil caller, which denotes
// code running outside any task.
func (k *Kernel) enterOptional(t *Task, op string) error {
	if t == nil {
		k.mu.Lock()
		return nil
	}
	return k.enter(t, op)
}

// violate records a contract violation and releases the kernel mutex. When
// raised by the running task the configured severity applies and violate
// does not return; otherwise the error is returned to the caller. The idle
// task is never aborted, so its violations are returned unless the kernel
// halts.
func (k *Kernel) violate(t *Task, op, msg string) error {
	err := &ContractViolationError{Op: op, Msg: msg}
	if t != nil {
		err.Task = t.name
	}
	k.faults = append(k.faults, err)
	k.logger.Warn("contract violation", "task", err.Task, "op", op, "msg", msg, "tick", k.ticks)

	if t == nil || t != k.current || t.state != StateRunning {
		k.mu.Unlock()
		return err
	}
	if k.opts.Severity == SeverityHalt {
		k.fatal(err)
		k.parkHalted(t)
		return err
	}
	if t == k.idle {
		k.mu.Unlock()
		return err
	}
	k.terminate(t)
	k.reschedule(t)
	runtime.Goexit()
	return err
}

// fatal halts the kernel. The running task parks at its next scheduling
// point and Run returns err.
func (k *Kernel) fatal(err error) {
	if k.halted != nil {
		return
	}
	k.halted = err
	if _, ok := err.(*ContractViolationError); !ok {
		k.faults = append(k.faults, err)
	}
	k.logger.Error("kernel halted", "tick", k.ticks, "error", err)
}

// parkHalted hands control back to Run after a halt. It releases the kernel
// mutex and only returns if the kernel is shut down, in which case the
// goroutine exits.
func (k *Kernel) parkHalted(t *Task) {
	err := k.halted
	k.mu.Unlock()
	k.parkCh <- err
	t.waitResume()
}

// park hands control back to Run and blocks until Run is called again.
func (k *Kernel) park(t *Task, err error) {
	k.parkCh <- err
	t.waitResume()
}
