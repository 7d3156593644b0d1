package scenario

import (
	"time"

	"github.com/tomasbasham/rtkernel"
)

const peripheralPeriod = 3 * time.Second

// buildNotifications simulates a peripheral that periodically notifies a
// handler task, which in turn dispatches a rotating event to two workers.
func buildNotifications(k *rtkernel.Kernel) error {
	var handler, task1, task2 *rtkernel.Task

	peripheral := func(t *rtkernel.Task, _ any) {
		last := t.TickCount()
		period := k.DurationToTicks(peripheralPeriod)
		for {
			t.Printf("Peripheral send notification to Handler!\n")
			if err := k.NotifyGive(t, handler); err != nil {
				return
			}
			t.DelayUntil(&last, period)
		}
	}

	dispatch := func(t *rtkernel.Task, _ any) {
		event := 0
		for {
			if _, err := t.NotifyWait(0, 0, rtkernel.Forever); err != nil {
				return
			}
			t.Printf("Handler!\n")
			switch event {
			case 0:
				_ = k.Notify(t, task1, 0, rtkernel.NotifyOverwrite)
				_ = k.Notify(t, task2, 0, rtkernel.NotifyOverwrite)
			case 1:
				_ = k.Notify(t, task1, 1, rtkernel.NotifyOverwrite)
			case 2:
				_ = k.Notify(t, task2, 2, rtkernel.NotifyOverwrite)
			}
			event = (event + 1) % 3
		}
	}

	worker := func(label string) rtkernel.TaskFunc {
		return func(t *rtkernel.Task, _ any) {
			for {
				v, err := t.NotifyWait(0, 0, rtkernel.Forever)
				if err != nil {
					return
				}
				t.Printf("%s, event %d\n", label, v)
			}
		}
	}

	var err error
	if _, err = k.CreateTask(peripheral, "peripheral", 0, nil, rtkernel.Priorities.Medium); err != nil {
		return err
	}
	if handler, err = k.CreateTask(dispatch, "handler", 0, nil, rtkernel.Priorities.High); err != nil {
		return err
	}
	if task1, err = k.CreateTask(worker("Task1"), "tsk1", 0, nil, rtkernel.Priorities.Low); err != nil {
		return err
	}
	if task2, err = k.CreateTask(worker("Task2"), "tsk2", 0, nil, rtkernel.Priorities.Low); err != nil {
		return err
	}
	return nil
}
