package scenario

import (
	"time"

	"github.com/tomasbasham/rtkernel"
)

const mutexJob = 300 * time.Millisecond

// buildMutex creates three periodic tasks at low, medium and high priority
// that each print while holding a shared mutex.
func buildMutex(k *rtkernel.Kernel) error {
	m, err := k.NewMutex("printer")
	if err != nil {
		return err
	}

	holder := func(level int, label string, period time.Duration) rtkernel.TaskFunc {
		return func(t *rtkernel.Task, _ any) {
			last := t.TickCount()
			ticks := k.DurationToTicks(period)
			for {
				if err := m.Take(t, rtkernel.Forever); err != nil {
					t.Printf("task %d failed to take mutex: %v\n", level, err)
					return
				}
				t.Printf("task %d with %s prio hold mutex!\n", level, label)
				t.WorkFor(mutexJob)
				if err := m.Give(t); err != nil {
					return
				}
				t.DelayUntil(&last, ticks)
			}
		}
	}

	tasks := []struct {
		name     string
		level    int
		label    string
		period   time.Duration
		priority rtkernel.Priority
	}{
		{"tskHigh", 3, "high", 2 * time.Second, rtkernel.Priorities.High},
		{"tskMedium", 2, "medium", 3 * time.Second, rtkernel.Priorities.Medium},
		{"tskLow", 1, "low", 1 * time.Second, rtkernel.Priorities.Low},
	}
	for _, tc := range tasks {
		fn := holder(tc.level, tc.label, tc.period)
		if _, err := k.CreateTask(fn, tc.name, 0, nil, tc.priority); err != nil {
			return err
		}
	}
	return nil
}
