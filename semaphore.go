package rtkernel

import (
	"fmt"
	"slices"
)

// Semaphore is a binary signal without ownership or priority inheritance. It
// is created empty. Waiters are served in FIFO order.
type Semaphore struct {
	k         *Kernel
	name      string
	available bool
	waiters   *taskQueue
	deleted   bool
}

// NewSemaphore allocates an empty binary semaphore from the simulated heap.
func (k *Kernel) NewSemaphore(name string) (*Semaphore, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.allocPrimitive("semaphore", name); err != nil {
		return nil, err
	}
	s := &Semaphore{k: k, name: name, waiters: newTaskQueue(queueSemaphore, name)}
	k.semaphores = append(k.semaphores, s)
	return s, nil
}

// Name returns the semaphore name.
func (s *Semaphore) Name() string { return s.name }

// Available reports whether a Take would succeed without blocking.
func (s *Semaphore) Available() bool {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.available
}

// Waiting returns the number of tasks blocked on the semaphore.
func (s *Semaphore) Waiting() int {
	s.k.mu.Lock()
	defer s.k.mu.Unlock()
	return s.waiters.Len()
}

// Take consumes the semaphore, blocking for up to timeout ticks.
func (s *Semaphore) Take(t *Task, timeout uint64) error {
	k := s.k
	if err := k.enter(t, "semaphore take"); err != nil {
		return err
	}
	switch {
	case s.deleted:
		return k.violate(t, "semaphore take", fmt.Sprintf("semaphore %q was deleted", s.name))
	case s.available:
		s.available = false
		k.mu.Unlock()
		return nil
	case timeout == NoWait:
		k.mu.Unlock()
		return fmt.Errorf("semaphore %q: %w", s.name, ErrTimeout)
	}
	if err := k.refuseIdleBlock(t, "semaphore take"); err != nil {
		return err
	}

	k.block(t, s.waiters, timeout)
	if reason := k.wait(t); reason != WakeGranted {
		return fmt.Errorf("semaphore %q: %w", s.name, ErrTimeout)
	}
	return nil
}

// Give signals the semaphore, waking the longest waiting task. Giving an
// already available semaphore has no effect. A nil caller denotes code
// outside any task, such as an interrupt handler.
func (s *Semaphore) Give(t *Task) error {
	k := s.k
	if err := k.enterOptional(t, "semaphore give"); err != nil {
		return err
	}
	if s.deleted {
		return k.violate(t, "semaphore give", fmt.Sprintf("semaphore %q was deleted", s.name))
	}
	if w := s.waiters.front(); w != nil {
		k.wakeUp(w, WakeGranted)
	} else {
		s.available = true
	}
	k.yieldIfPreempted(t)
	return nil
}

// Delete returns the semaphore memory to the heap. Deleting a semaphore with
// waiters is a contract violation.
func (s *Semaphore) Delete() error {
	k := s.k
	k.mu.Lock()
	switch {
	case s.deleted:
		k.mu.Unlock()
		return nil
	case s.waiters.Len() > 0:
		return k.violate(nil, "semaphore delete",
			fmt.Sprintf("semaphore %q has %d waiters", s.name, s.waiters.Len()))
	}
	s.deleted = true
	k.semaphores = slices.DeleteFunc(k.semaphores, func(v *Semaphore) bool { return v == s })
	k.heapUsed -= primitiveSize
	k.mu.Unlock()
	return nil
}
