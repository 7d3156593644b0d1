package rtkernel

import (
	"iter"
	"slices"
)

// TasksIterator defines an iterator over the tasks of a kernel.
type TasksIterator iter.Seq[*Task]

// Tasks returns an iterator over a snapshot of the live tasks, in creation
// order.
func (k *Kernel) Tasks() TasksIterator {
	k.mu.Lock()
	snapshot := slices.Clone(k.tasks)
	k.mu.Unlock()

	return func(yield func(*Task) bool) {
		for _, t := range snapshot {
			if !yield(t) {
				return
			}
		}
	}
}

// selectNext removes and returns the head of the highest non-empty ready
// level, marking it Running. Any aging boost is discarded on selection.
func (k *Kernel) selectNext() *Task {
	for lvl := len(k.ready) - 1; lvl >= 0; lvl-- {
		t := k.ready[lvl].pop()
		if t == nil {
			continue
		}
		t.state = StateRunning
		t.waitTicks = 0
		if t.aging != 0 {
			t.aging = 0
			t.effective = t.computeEffective()
		}
		return t
	}
	return nil
}

// topReady returns the highest level holding a Ready task.
func (k *Kernel) topReady() (Priority, bool) {
	for lvl := len(k.ready) - 1; lvl >= 0; lvl-- {
		if k.ready[lvl].Len() > 0 {
			return Priority(lvl), true
		}
	}
	return 0, false
}

// makeReady appends t to the tail of the ready queue for its effective
// priority.
func (k *Kernel) makeReady(t *Task) {
	t.state = StateReady
	t.waitTicks = 0
	k.mustPush(k.ready[t.effective], t)
}

// block parks t in q and arms its timeout. The caller must follow up with
// wait to give up the CPU.
func (k *Kernel) block(t *Task, q *taskQueue, timeout uint64) {
	t.state = StateBlocked
	t.wake = WakeNone
	k.mustPush(q, t)
	if timeout != Forever && timeout <= Forever-k.ticks {
		k.timers.arm(t, k.ticks+timeout)
	}
	k.onBlock(t, q.kind)
}

// wait switches away from t, which must already have left the Running state,
// and returns why it was woken. It releases the kernel mutex.
func (k *Kernel) wait(t *Task) WakeReason {
	k.reschedule(t)
	return t.wake
}

// wakeUp makes a blocked task Ready with the given reason.
func (k *Kernel) wakeUp(t *Task, reason WakeReason) {
	k.abandonWait(t, reason)
	k.makeReady(t)
	k.onWake(t, reason)
}

// abandonWait takes t out of whatever it is blocked on.
func (k *Kernel) abandonWait(t *Task, reason WakeReason) {
	if t.queue != nil {
		k.mustRemove(t.queue, t)
	}
	k.timers.cancel(t)
	t.wake = reason
	if m := t.blockedOn; m != nil {
		t.blockedOn = nil
		k.updateInheritance(m.owner)
	}
}

// preempt moves the running task t to the tail of its ready level and
// switches to the best Ready task. It releases the kernel mutex.
func (k *Kernel) preempt(t *Task) {
	k.makeReady(t)
	k.reschedule(t)
}

// yieldIfPreempted preempts the caller if a strictly higher priority task
// became Ready. A nil caller, code outside any task, never switches; the new
// task is picked up at the next tick. It releases the kernel mutex.
func (k *Kernel) yieldIfPreempted(caller *Task) {
	if caller != nil && caller == k.current && caller.state == StateRunning {
		if top, ok := k.topReady(); ok && top > caller.effective {
			k.preempt(caller)
			return
		}
	}
	k.mu.Unlock()
}

// reschedule hands the CPU from prev to the best Ready task. prev must
// already have left the Running state (or be re-queued as Ready). It releases
// the kernel mutex and returns once prev is scheduled again; a terminated prev
// returns as soon as the hand-off is done.
func (k *Kernel) reschedule(prev *Task) {
	if k.halted == nil {
		next := k.selectNext()
		if next == nil {
			k.fatal(invariantf("no task is ready to run at tick %d", k.ticks))
		} else {
			k.switchTo(prev, next)
			return
		}
	}
	k.parkHalted(prev)
}

func (k *Kernel) switchTo(prev, next *Task) {
	k.current = next
	if next == prev {
		k.mu.Unlock()
		return
	}
	k.onSwitch(prev, next)
	exiting := prev.state == StateTerminated
	k.mu.Unlock()

	next.signal()
	if exiting {
		return
	}
	prev.waitResume()
}

// tick advances simulated time by one tick on behalf of the running task t.
// It expires timers, applies aging and checks for preemption.
func (k *Kernel) tick(t *Task) {
	k.mu.Lock()
	if !k.running || t != k.current || t.state != StateRunning {
		k.mu.Unlock()
		return
	}
	if k.halted != nil {
		k.parkHalted(t)
		return
	}

	k.ticks++
	t.runTicks++
	for _, w := range k.timers.expired(k.ticks) {
		if w.state == StateBlocked {
			k.wakeUp(w, WakeTimeout)
		}
	}
	k.age()

	if k.opts.CheckInvariants {
		if err := k.checkInvariants(); err != nil {
			k.fatal(err)
		}
	}
	if k.halted != nil {
		k.parkHalted(t)
		return
	}

	limit := k.stopAt != 0 && k.ticks >= k.stopAt
	if cause := k.runCtx.Err(); limit || cause != nil {
		k.mu.Unlock()
		if limit {
			cause = nil
		}
		k.park(t, cause)
		k.mu.Lock()
		if k.halted != nil {
			k.parkHalted(t)
			return
		}
	}

	if top, ok := k.topReady(); ok {
		if top > t.effective || (top == t.effective && (k.opts.TimeSlicing || k.starving(top))) {
			k.preempt(t)
			return
		}
	}
	k.mu.Unlock()
}

// starving reports whether a Ready task at lvl has waited past the aging
// threshold. Aging cannot raise such a task any further, so it takes the CPU
// from a running task of equal priority even without time slicing.
func (k *Kernel) starving(lvl Priority) bool {
	if k.opts.AgingThreshold <= 0 {
		return false
	}
	for _, t := range k.ready[lvl].tasks() {
		if t != k.idle && t.waitTicks > k.opts.AgingThreshold {
			return true
		}
	}
	return false
}

// age increments the wait counter of every Ready task except idle and raises
// by one level each task whose counter exceeded the threshold. Promotions are
// collected first so a task is aged at most once per tick. Aging levels stack on
// top of any inherited boost.
func (k *Kernel) age() {
	if k.opts.AgingThreshold <= 0 {
		return
	}
	top := Priority(len(k.ready) - 1)
	var promote []*Task
	for lvl := top; lvl >= 0; lvl-- {
		for _, t := range k.ready[lvl].tasks() {
			if t == k.idle {
				continue
			}
			t.waitTicks++
			if t.waitTicks > k.opts.AgingThreshold && t.effective < top {
				promote = append(promote, t)
			}
		}
	}

	for _, t := range promote {
		from := t.effective
		t.aging++
		t.waitTicks = 0
		k.updatePriority(t)
		k.onEscalate(t, from, t.effective)
	}
}

// updatePriority recomputes the effective priority of t, moves it between
// ready levels when Ready, and propagates the change to the owner of the
// mutex it waits on.
func (k *Kernel) updatePriority(t *Task) {
	p := t.computeEffective()
	if p == t.effective {
		return
	}
	t.effective = p
	if t.state == StateReady && t.queue != nil && t.queue.kind == queueReady {
		k.mustRemove(t.queue, t)
		k.mustPush(k.ready[p], t)
	}
	if t.state == StateBlocked && t.blockedOn != nil {
		k.updateInheritance(t.blockedOn.owner)
	}
}

// updateInheritance sets the inherited priority of owner to the highest
// effective priority among the waiters of every mutex it holds.
func (k *Kernel) updateInheritance(owner *Task) {
	if owner == nil || owner.state == StateTerminated {
		return
	}
	var p Priority
	for _, m := range owner.held {
		for _, w := range m.waiters.tasks() {
			p = max(p, w.effective)
		}
	}
	if p == owner.inherited {
		return
	}
	from := owner.effective
	owner.inherited = p
	k.updatePriority(owner)
	if owner.effective != from {
		k.onInherit(owner, from, owner.effective)
	}
}

// terminate unlinks t from every kernel structure and releases what it owns.
func (k *Kernel) terminate(t *Task) {
	k.abandonWait(t, WakeAborted)
	held := t.held
	t.held = nil
	for _, m := range held {
		k.handoff(m)
	}
	t.state = StateTerminated
	t.inherited = 0
	t.aging = 0
	k.heapUsed -= taskCost(t.stackSize)
	k.tasks = slices.DeleteFunc(k.tasks, func(v *Task) bool { return v == t })
	k.logger.Debug("task terminated", "task", t.name, "tick", k.ticks, "held", len(held))
	k.onTerminate(t)
}

func (k *Kernel) mustPush(q *taskQueue, t *Task) {
	if err := q.push(t); err != nil {
		k.fatal(err)
	}
}

func (k *Kernel) mustRemove(q *taskQueue, t *Task) {
	if err := q.remove(t); err != nil {
		k.fatal(err)
	}
}

// checkInvariants verifies queue membership and priority bookkeeping.
func (k *Kernel) checkInvariants() error {
	if cur := k.current; cur != nil {
		if cur.state != StateRunning {
			return invariantf("current task %q is %s", cur.name, cur.state)
		}
		if cur.queue != nil {
			return invariantf("running task %q is in %s queue %q", cur.name, cur.queue.kind, cur.queue.name)
		}
	}

	for _, t := range k.tasks {
		if t.effective < t.base {
			return invariantf("task %q effective priority %d below base %d", t.name, t.effective, t.base)
		}
		if want := t.computeEffective(); t.effective != want {
			return invariantf("task %q effective priority %d, want %d", t.name, t.effective, want)
		}
		if t == k.current {
			continue
		}
		if t.state == StateRunning {
			return invariantf("task %q is running but %q holds the CPU", t.name, k.current)
		}
		if t.queue == nil {
			return invariantf("%s task %q is in no queue", t.state, t.name)
		}
		if n := t.queue.count(t); n != 1 {
			return invariantf("task %q appears %d times in %s queue %q", t.name, n, t.queue.kind, t.queue.name)
		}
		switch t.state {
		case StateReady:
			if t.queue.kind != queueReady || t.queue.level != t.effective {
				return invariantf("ready task %q with priority %d is in %s queue %q",
					t.name, t.effective, t.queue.kind, t.queue.name)
			}
		case StateSuspended:
			if t.queue != k.suspended {
				return invariantf("suspended task %q is in %s queue %q", t.name, t.queue.kind, t.queue.name)
			}
		case StateBlocked:
			if t.queue.kind == queueReady || t.queue.kind == queueSuspended {
				return invariantf("blocked task %q is in %s queue %q", t.name, t.queue.kind, t.queue.name)
			}
		}
	}

	for _, q := range k.ready {
		for _, t := range q.tasks() {
			if t.queue != q || t.state != StateReady {
				return invariantf("task %q in ready queue %q is %s", t.name, q.name, t.state)
			}
		}
	}

	for _, m := range k.mutexes {
		if m.owner == nil && m.waiters.Len() > 0 {
			return invariantf("mutex %q has waiters but no owner", m.name)
		}
		for _, w := range m.waiters.tasks() {
			if w.blockedOn != m {
				return invariantf("task %q waits on mutex %q but is not marked blocked on it", w.name, m.name)
			}
			if m.owner.effective < w.effective {
				return invariantf("mutex %q owner %q priority %d below waiter %q priority %d",
					m.name, m.owner.name, m.owner.effective, w.name, w.effective)
			}
		}
	}

	for _, s := range k.semaphores {
		if s.available && s.waiters.Len() > 0 {
			return invariantf("semaphore %q is available with %d waiters", s.name, s.waiters.Len())
		}
	}
	return nil
}
