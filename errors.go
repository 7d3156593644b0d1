package rtkernel

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when the task registry or the simulated heap
	// cannot satisfy a creation request.
	ErrAllocation = errors.New("allocation failure")

	// ErrTimeout is returned by a blocking call whose timeout elapsed before
	// the awaited event.
	ErrTimeout = errors.New("timeout")

	// ErrNotifyPending is returned by [NotifyOverwriteIfEmpty] when the target
	// already has an unconsumed notification.
	ErrNotifyPending = errors.New("notification pending")

	// ErrTerminated is returned when an operation names a terminated task.
	ErrTerminated = errors.New("task terminated")

	// ErrRunning is returned by [Kernel.Run] and [Kernel.Shutdown] when the
	// kernel is already running.
	ErrRunning = errors.New("kernel is running")

	// ErrShutdown is returned by [Kernel.Run] after [Kernel.Shutdown].
	ErrShutdown = errors.New("kernel shut down")
)

// ContractViolationError reports an API misuse by a caller, such as giving a
// mutex that the caller does not own.
type ContractViolationError struct {
	Task string // offending task, empty outside any task
	Op   string
	Msg  string
}

func (e *ContractViolationError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("contract violation: %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("contract violation: task %q: %s: %s", e.Task, e.Op, e.Msg)
}

// InvariantViolationError reports a corrupted kernel state. It always halts
// the kernel.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string {
	return "queue invariant violation: " + e.Msg
}

// TaskPanicError records a panic recovered from a task body.
type TaskPanicError struct {
	Task  string
	Value any
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}

func invariantf(format string, args ...any) *InvariantViolationError {
	return &InvariantViolationError{Msg: fmt.Sprintf(format, args...)}
}
