// Package rtkernel implements a simulated single core real-time kernel: a
// preemptive, priority based task scheduler with aging, and the
// synchronization primitives that interact with it.
//
// Tasks are selected by effective priority, the highest non-empty level
// first and FIFO within a level. A Ready task that waits too long at one level
// is promoted to the next, so lower priority work cannot starve indefinitely
// behind busier tasks; the boost is dropped as soon as the task runs.
//
// A [Mutex] carries priority inheritance: its owner runs at no less than the
// highest priority among its waiters, which bounds priority inversion. A
// [Semaphore] is a plain binary signal. Every task also owns a notification
// mailbox, a lightweight one-to-one alternative to a semaphore.
//
// Time is simulated. Ticks advance only while the running task performs work
// through [Task.Work], or while the built-in idle task runs, which makes every
// schedule reproducible.
package rtkernel
