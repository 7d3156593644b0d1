package scenario

import (
	"fmt"

	"github.com/tomasbasham/rtkernel"
)

const agingJob = 50

// buildAging creates four tasks that never block. Without aging only the
// high priority task would ever print.
func buildAging(k *rtkernel.Kernel) error {
	tasks := []struct {
		name     string
		label    string
		priority rtkernel.Priority
	}{
		{"TSK1", "t1", rtkernel.Priorities.High},
		{"TSK2", "t2", rtkernel.Priorities.Medium},
		{"TSK3", "t3", rtkernel.Priorities.Low},
		{"TSK4", "t4", rtkernel.Priorities.Low},
	}
	for _, tc := range tasks {
		label := tc.label
		fn := func(t *rtkernel.Task, _ any) {
			for {
				t.Printf("%s\n", label)
				t.Work(agingJob)
			}
		}
		if _, err := k.CreateTask(fn, tc.name, 0, nil, tc.priority); err != nil {
			return fmt.Errorf("create %s: %w", tc.name, err)
		}
	}
	return nil
}
