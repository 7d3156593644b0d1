package rtkernel

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultMaxPriorities is the number of priority levels, mirroring a
	// typical configMAX_PRIORITIES.
	DefaultMaxPriorities = 8

	// DefaultMaxTasks bounds the task registry, including the idle task.
	DefaultMaxTasks = 32

	// DefaultHeapSize is the simulated heap available to control blocks,
	// stacks and synchronization primitives, in bytes.
	DefaultHeapSize = 64 * 1024

	// DefaultTickRate is the number of ticks per simulated second.
	DefaultTickRate = 1000

	// DefaultAgingThreshold is the number of ticks a Ready task may wait at
	// one level before it is promoted to the next.
	DefaultAgingThreshold = 8

	// MinimalStackSize is the stack depth, in words, given to the idle task
	// and used when a task is created with a zero stack size.
	MinimalStackSize = 128
)

// Severity selects how the kernel reacts to a contract violation raised by a
// running task.
type Severity uint8

const (
	// SeverityAbortTask terminates the offending task and keeps the kernel
	// running.
	SeverityAbortTask Severity = iota
	// SeverityHalt stops the kernel; [Kernel.Run] returns the violation.
	SeverityHalt
)

func (s Severity) String() string {
	switch s {
	case SeverityAbortTask:
		return "abort-task"
	case SeverityHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a severity name. Unrecognised names yield
// SeverityAbortTask and false.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "abort-task", "abort":
		return SeverityAbortTask, true
	case "halt":
		return SeverityHalt, true
	default:
		return SeverityAbortTask, false
	}
}

// Options holds configuration options for the [Kernel].
type Options struct {
	MaxPriorities   int
	MaxTasks        int
	HeapSize        int
	TickRate        int
	AgingThreshold  int
	TimeSlicing     bool
	Severity        Severity
	CheckInvariants bool
	Console         io.Writer
	Logger          *slog.Logger
	Metrics         MetricsHook
	IdleHook        func(t *Task)
}

// Option is a function that configures [Options].
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxPriorities:  DefaultMaxPriorities,
		MaxTasks:       DefaultMaxTasks,
		HeapSize:       DefaultHeapSize,
		TickRate:       DefaultTickRate,
		AgingThreshold: DefaultAgingThreshold,
		TimeSlicing:    true,
		Console:        io.Discard,
	}
}

// WithMaxPriorities sets the number of priority levels.
func WithMaxPriorities(n int) Option {
	return func(o *Options) {
		o.MaxPriorities = n
	}
}

// WithMaxTasks sets the capacity of the task registry.
func WithMaxTasks(n int) Option {
	return func(o *Options) {
		o.MaxTasks = n
	}
}

// WithHeapSize sets the simulated heap size in bytes.
func WithHeapSize(n int) Option {
	return func(o *Options) {
		o.HeapSize = n
	}
}

// WithTickRate sets the number of ticks per simulated second.
func WithTickRate(hz int) Option {
	return func(o *Options) {
		o.TickRate = hz
	}
}

// WithAgingThreshold sets the number of ticks a Ready task waits before its
// effective priority is raised by one level. Zero disables aging.
func WithAgingThreshold(ticks int) Option {
	return func(o *Options) {
		o.AgingThreshold = ticks
	}
}

// WithTimeSlicing enables or disables round robin between tasks of equal
// effective priority at every tick.
func WithTimeSlicing(enabled bool) Option {
	return func(o *Options) {
		o.TimeSlicing = enabled
	}
}

// WithSeverity sets how contract violations raised by tasks are handled.
func WithSeverity(s Severity) Option {
	return func(o *Options) {
		o.Severity = s
	}
}

// WithInvariantChecks makes the kernel verify its queue invariants at every
// tick, halting on the first violation.
func WithInvariantChecks(enabled bool) Option {
	return func(o *Options) {
		o.CheckInvariants = enabled
	}
}

// WithConsole sets the byte sink written by [Task.Printf].
func WithConsole(w io.Writer) Option {
	return func(o *Options) {
		o.Console = w
	}
}

// WithLogger sets the logger used for kernel diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetricsHook sets the metrics hook for the [Kernel].
func WithMetricsHook(hook MetricsHook) Option {
	return func(o *Options) {
		o.Metrics = hook
	}
}

// WithIdleHook sets a function run by the idle task on every iteration. The
// hook must not block: blocking calls made from it fail with a
// [ContractViolationError] and a panic is recorded as a [TaskPanicError],
// while the idle task keeps running.
func WithIdleHook(fn func(t *Task)) Option {
	return func(o *Options) {
		o.IdleHook = fn
	}
}

// DurationToTicks converts a duration to ticks at the given tick rate,
// rounding up so that a non-zero duration never becomes zero ticks.
func DurationToTicks(d time.Duration, tickRate int) uint64 {
	if d <= 0 || tickRate <= 0 {
		return 0
	}
	period := time.Second / time.Duration(tickRate)
	if period <= 0 {
		period = 1
	}
	return uint64((d + period - 1) / period)
}
