package rtkernel

import "fmt"

// NotifyAction selects how a notification updates the target's value.
type NotifyAction uint8

const (
	// NotifyOverwrite replaces the value.
	NotifyOverwrite NotifyAction = iota
	// NotifyIncrement adds one to the value; the argument is ignored.
	NotifyIncrement
	// NotifySetBits ORs the argument into the value.
	NotifySetBits
	// NotifyNoUpdate leaves the value unchanged but still marks it pending.
	NotifyNoUpdate
	// NotifyOverwriteIfEmpty replaces the value only when no notification is
	// pending, and fails with [ErrNotifyPending] otherwise.
	NotifyOverwriteIfEmpty
)

func (a NotifyAction) String() string {
	switch a {
	case NotifyOverwrite:
		return "overwrite"
	case NotifyIncrement:
		return "increment"
	case NotifySetBits:
		return "set-bits"
	case NotifyNoUpdate:
		return "no-update"
	case NotifyOverwriteIfEmpty:
		return "overwrite-if-empty"
	default:
		return fmt.Sprintf("NotifyAction(%d)", uint8(a))
	}
}

// Notify deposits a notification in the mailbox of target and wakes it if it
// is waiting for one. The sender never blocks. A nil sender denotes code
// outside any task.
func (k *Kernel) Notify(from, target *Task, value uint32, action NotifyAction) error {
	if err := k.enterOptional(from, "notify"); err != nil {
		return err
	}
	switch {
	case target == nil || target.k != k:
		return k.violate(from, "notify", "no target task")
	case target.state == StateTerminated:
		k.mu.Unlock()
		return ErrTerminated
	}

	mb := &target.mailbox
	switch action {
	case NotifyOverwrite:
		mb.value = value
	case NotifyIncrement:
		mb.value++
	case NotifySetBits:
		mb.value |= value
	case NotifyNoUpdate:
	case NotifyOverwriteIfEmpty:
		if mb.pending {
			k.mu.Unlock()
			return fmt.Errorf("notify %q: %w", target.name, ErrNotifyPending)
		}
		mb.value = value
	default:
		return k.violate(from, "notify", fmt.Sprintf("unknown action %s", action))
	}
	mb.pending = true

	if target.state == StateBlocked && target.queue == mb.waiter {
		k.wakeUp(target, WakeGranted)
	}
	k.yieldIfPreempted(from)
	return nil
}

// NotifyGive increments the notification value of target, the lightweight
// counting semaphore counterpart of [Task.NotifyTake].
func (k *Kernel) NotifyGive(from, target *Task) error {
	return k.Notify(from, target, 0, NotifyIncrement)
}
