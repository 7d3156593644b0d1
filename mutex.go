package rtkernel

import (
	"fmt"
	"slices"
)

// Mutex is a binary lock with an owner and priority inheritance: while tasks
// wait on it, the owner runs at no less than the highest effective priority
// among them. Waiters are served in FIFO order.
type Mutex struct {
	k       *Kernel
	name    string
	owner   *Task
	waiters *taskQueue
	deleted bool
}

// NewMutex allocates an unowned mutex from the simulated heap.
func (k *Kernel) NewMutex(name string) (*Mutex, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.allocPrimitive("mutex", name); err != nil {
		return nil, err
	}
	m := &Mutex{k: k, name: name, waiters: newTaskQueue(queueMutex, name)}
	k.mutexes = append(k.mutexes, m)
	return m, nil
}

func (k *Kernel) allocPrimitive(kind, name string) error {
	if k.closed {
		return ErrShutdown
	}
	if k.heapUsed+primitiveSize > k.opts.HeapSize {
		return fmt.Errorf("create %s %q: need %d bytes, %d free: %w",
			kind, name, primitiveSize, k.opts.HeapSize-k.heapUsed, ErrAllocation)
	}
	k.heapUsed += primitiveSize
	return nil
}

// Name returns the mutex name.
func (m *Mutex) Name() string { return m.name }

// Owner returns the owning task, or nil when the mutex is free.
func (m *Mutex) Owner() *Task {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.owner
}

// Waiting returns the number of tasks blocked on the mutex.
func (m *Mutex) Waiting() int {
	m.k.mu.Lock()
	defer m.k.mu.Unlock()
	return m.waiters.Len()
}

// Take acquires the mutex for t, blocking for up to timeout ticks. Taking a
// mutex the caller already owns is a contract violation.
func (m *Mutex) Take(t *Task, timeout uint64) error {
	k := m.k
	if err := k.enter(t, "mutex take"); err != nil {
		return err
	}
	switch {
	case m.deleted:
		return k.violate(t, "mutex take", fmt.Sprintf("mutex %q was deleted", m.name))
	case m.owner == nil:
		m.owner = t
		t.held = append(t.held, m)
		k.mu.Unlock()
		return nil
	case m.owner == t:
		return k.violate(t, "mutex take", fmt.Sprintf("mutex %q is already owned by the caller", m.name))
	case timeout == NoWait:
		k.mu.Unlock()
		return fmt.Errorf("mutex %q: %w", m.name, ErrTimeout)
	}
	if err := k.refuseIdleBlock(t, "mutex take"); err != nil {
		return err
	}

	t.blockedOn = m
	k.block(t, m.waiters, timeout)
	k.updateInheritance(m.owner)
	if reason := k.wait(t); reason != WakeGranted {
		return fmt.Errorf("mutex %q: %w", m.name, ErrTimeout)
	}
	return nil
}

// Give releases the mutex. Ownership passes directly to the longest waiting
// task, and the caller's inherited priority is recomputed from the mutexes it
// still holds. Giving a mutex the caller does not own is a contract
// violation.
func (m *Mutex) Give(t *Task) error {
	k := m.k
	if err := k.enter(t, "mutex give"); err != nil {
		return err
	}
	if m.owner != t {
		owner := "nobody"
		if m.owner != nil {
			owner = fmt.Sprintf("%q", m.owner.name)
		}
		return k.violate(t, "mutex give", fmt.Sprintf("mutex %q is owned by %s", m.name, owner))
	}
	t.held = slices.DeleteFunc(t.held, func(v *Mutex) bool { return v == m })
	k.handoff(m)
	k.updateInheritance(t)
	k.yieldIfPreempted(t)
	return nil
}

// handoff passes a released mutex to its head waiter, or frees it.
func (k *Kernel) handoff(m *Mutex) {
	m.owner = nil
	w := m.waiters.front()
	if w == nil {
		return
	}
	w.blockedOn = nil
	k.abandonWait(w, WakeGranted)
	m.owner = w
	w.held = append(w.held, m)
	k.updateInheritance(w)
	k.makeReady(w)
	k.onWake(w, WakeGranted)
}

// Delete returns the mutex memory to the heap. Deleting a mutex that is owned
// or has waiters is a contract violation.
func (m *Mutex) Delete() error {
	k := m.k
	k.mu.Lock()
	switch {
	case m.deleted:
		k.mu.Unlock()
		return nil
	case m.owner != nil:
		return k.violate(nil, "mutex delete", fmt.Sprintf("mutex %q is owned by %q", m.name, m.owner.name))
	}
	m.deleted = true
	k.mutexes = slices.DeleteFunc(k.mutexes, func(v *Mutex) bool { return v == m })
	k.heapUsed -= primitiveSize
	k.mu.Unlock()
	return nil
}
