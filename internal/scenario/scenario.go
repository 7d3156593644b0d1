// Package scenario holds the demonstration task graphs that the rtsim command
// runs on the kernel.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tomasbasham/rtkernel"
)

// Scenario is a named task graph. Build creates its tasks and primitives on a
// fresh kernel before the scheduler starts.
type Scenario struct {
	Name         string
	Description  string
	DefaultTicks uint64
	Build        func(k *rtkernel.Kernel) error
}

var registry = []Scenario{
	{
		Name:         "mutex",
		Description:  "three periodic tasks share one priority inheriting mutex",
		DefaultTicks: 12000,
		Build:        buildMutex,
	},
	{
		Name:         "semaphores",
		Description:  "three tasks pass control around a ring of binary semaphores",
		DefaultTicks: 3000,
		Build:        buildSemaphores,
	},
	{
		Name:         "notifications",
		Description:  "a peripheral notifies a handler, which dispatches events to two tasks",
		DefaultTicks: 10000,
		Build:        buildNotifications,
	},
	{
		Name:         "aging",
		Description:  "busy tasks at three priorities; aging keeps the low ones running",
		DefaultTicks: 2000,
		Build:        buildAging,
	},
}

// All returns every scenario in presentation order.
func All() []Scenario {
	return slices.Clone(registry)
}

// Names returns the scenario names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, s := range registry {
		names = append(names, s.Name)
	}
	return names
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	i := slices.IndexFunc(registry, func(s Scenario) bool { return s.Name == name })
	if i < 0 {
		return Scenario{}, false
	}
	return registry[i], true
}

// Result is the outcome of executing a scenario.
type Result struct {
	Scenario string
	Ticks    uint64
	Output   string
	Events   []rtkernel.Event
	Tasks    []rtkernel.TaskInfo
	Faults   []error
}

// Execute builds the scenario on a new kernel configured by opts, runs it for
// the given number of ticks (the scenario default when zero) and shuts the
// kernel down. Console output and scheduler events are captured in the
// result. A cancelled context stops the run early without an error.
func Execute(ctx context.Context, s Scenario, ticks uint64, opts ...rtkernel.Option) (*Result, error) {
	if ticks == 0 {
		ticks = s.DefaultTicks
	}

	var console bytes.Buffer
	rec := rtkernel.NewRecorder(0)
	opts = append(slices.Clone(opts), rtkernel.WithConsole(&console), rtkernel.WithMetricsHook(rec))

	k, err := rtkernel.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	defer k.Shutdown()

	if err := s.Build(k); err != nil {
		return nil, fmt.Errorf("scenario %s: build: %w", s.Name, err)
	}

	runErr := k.Run(ctx, ticks)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}

	res := &Result{
		Scenario: s.Name,
		Ticks:    k.TickCount(),
		Output:   console.String(),
		Events:   rec.Events(),
		Tasks:    k.Snapshot(),
		Faults:   k.Faults(),
	}
	if runErr != nil {
		return res, fmt.Errorf("scenario %s: run: %w", s.Name, runErr)
	}
	return res, nil
}
