package scenario

import (
	"fmt"
	"time"

	"github.com/tomasbasham/rtkernel"
)

const ringJob = 200 * time.Millisecond

// buildSemaphores chains three equal priority tasks through three binary
// semaphores. The semaphore leading to the first task is given up front, so
// the tasks run strictly in turn.
func buildSemaphores(k *rtkernel.Kernel) error {
	sems := make([]*rtkernel.Semaphore, 3)
	for i := range sems {
		s, err := k.NewSemaphore(fmt.Sprintf("sem%d%d", i+1, (i+1)%3+1))
		if err != nil {
			return err
		}
		sems[i] = s
	}
	// sems[i] is given by task i+1 and taken by the next task in the ring.
	if err := sems[2].Give(nil); err != nil {
		return err
	}

	for i := range 3 {
		in, out := sems[(i+2)%3], sems[i]
		name := fmt.Sprintf("Task%d", i+1)
		fn := func(t *rtkernel.Task, _ any) {
			for {
				if err := in.Take(t, rtkernel.Forever); err != nil {
					return
				}
				t.Printf("%s\n", name)
				t.WorkFor(ringJob)
				if err := out.Give(t); err != nil {
					return
				}
			}
		}
		if _, err := k.CreateTask(fn, name, 0, nil, rtkernel.Priorities.Medium); err != nil {
			return err
		}
	}
	return nil
}
