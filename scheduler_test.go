package rtkernel_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/rtkernel"
)

// newKernel creates a kernel that checks its invariants at every tick,
// captures console output and records scheduler events.
func newKernel(t *testing.T, opts ...rtkernel.Option) (*rtkernel.Kernel, *bytes.Buffer, *rtkernel.Recorder) {
	t.Helper()

	var console bytes.Buffer
	rec := rtkernel.NewRecorder(0)
	base := []rtkernel.Option{
		rtkernel.WithConsole(&console),
		rtkernel.WithMetricsHook(rec),
		rtkernel.WithInvariantChecks(true),
	}
	k, err := rtkernel.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, k.Shutdown()) })
	return k, &console, rec
}

func create(t *testing.T, k *rtkernel.Kernel, name string, p rtkernel.Priority, fn rtkernel.TaskFunc) *rtkernel.Task {
	t.Helper()
	task, err := k.CreateTask(fn, name, 0, nil, p)
	require.NoError(t, err)
	return task
}

func run(t *testing.T, k *rtkernel.Kernel, ticks uint64) {
	t.Helper()
	require.NoError(t, k.Run(context.Background(), ticks))
	require.NoError(t, k.CheckInvariants())
}

func busy(t *rtkernel.Task, _ any) {
	for {
		t.Work(1)
	}
}

func printName(t *rtkernel.Task, _ any) {
	t.Printf("%s\n", t.Name())
}

func TestKernel_New(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts    []rtkernel.Option
		wantErr string
	}{
		"defaults": {},
		"too few priorities": {
			opts:    []rtkernel.Option{rtkernel.WithMaxPriorities(1)},
			wantErr: "max priorities",
		},
		"no task slots": {
			opts:    []rtkernel.Option{rtkernel.WithMaxTasks(0)},
			wantErr: "max tasks",
		},
		"zero tick rate": {
			opts:    []rtkernel.Option{rtkernel.WithTickRate(0)},
			wantErr: "tick rate",
		},
		"negative aging threshold": {
			opts:    []rtkernel.Option{rtkernel.WithAgingThreshold(-1)},
			wantErr: "aging threshold",
		},
		"heap too small for the idle task": {
			opts:    []rtkernel.Option{rtkernel.WithHeapSize(16)},
			wantErr: "allocation failure",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			k, err := rtkernel.New(tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer k.Shutdown()

			idle := k.Idle()
			assert.Equal(t, "IDLE", idle.Name())
			assert.Equal(t, rtkernel.Priorities.Idle, idle.Priority())
			assert.Equal(t, rtkernel.StateReady, idle.State())
		})
	}
}

func TestKernel_SelectionOrder(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t, rtkernel.WithAgingThreshold(0))
	create(t, k, "low", rtkernel.Priorities.Low, printName)
	create(t, k, "high", rtkernel.Priorities.High, printName)
	create(t, k, "medium-a", rtkernel.Priorities.Medium, printName)
	create(t, k, "medium-b", rtkernel.Priorities.Medium, printName)

	run(t, k, 5)

	want := "high\nmedium-a\nmedium-b\nlow\n"
	if got := out.String(); got != want {
		t.Errorf("mismatch:\n  got:  %q\n  want: %q", got, want)
	}
	assert.Equal(t, uint64(5), k.TickCount())
	assert.Len(t, k.Snapshot(), 1, "only the idle task should remain")
}

func TestKernel_AgingBoundsWait(t *testing.T) {
	t.Parallel()

	const threshold = 5
	k, out, rec := newKernel(t, rtkernel.WithAgingThreshold(threshold))
	create(t, k, "high", rtkernel.Priorities.High, busy)
	create(t, k, "low", rtkernel.Priorities.Low, func(t *rtkernel.Task, _ any) {
		t.Printf("low ran at tick %d with priority %d\n", t.TickCount(), t.Priority())
	})

	run(t, k, 50)

	var got []rtkernel.Event
	for _, e := range rec.Filter(rtkernel.EventEscalate) {
		if e.Task == "low" {
			got = append(got, e)
		}
	}
	want := []rtkernel.Event{
		{Tick: threshold + 1, Kind: rtkernel.EventEscalate, Task: "low", From: 1, To: 2},
		{Tick: 2 * (threshold + 1), Kind: rtkernel.EventEscalate, Task: "low", From: 2, To: 3},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "low ran at tick 12 with priority 1\n", out.String())
}

func TestKernel_AgingDisabled(t *testing.T) {
	t.Parallel()

	k, out, rec := newKernel(t, rtkernel.WithAgingThreshold(0))
	create(t, k, "high", rtkernel.Priorities.High, busy)
	low := create(t, k, "low", rtkernel.Priorities.Low, printName)

	run(t, k, 200)

	assert.Empty(t, out.String())
	assert.Empty(t, rec.Filter(rtkernel.EventEscalate))
	assert.Equal(t, rtkernel.StateReady, low.State())
	assert.Equal(t, rtkernel.Priorities.Low, low.Priority())
}

func TestKernel_TimeSlicing(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		slicing bool
		wantA   uint64
		wantB   uint64
	}{
		"equal tasks share the CPU": {
			slicing: true,
			wantA:   50,
			wantB:   50,
		},
		"first task keeps the CPU": {
			slicing: false,
			wantA:   100,
			wantB:   0,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			k, _, _ := newKernel(t, rtkernel.WithAgingThreshold(0), rtkernel.WithTimeSlicing(tt.slicing))
			a := create(t, k, "a", rtkernel.Priorities.Medium, busy)
			b := create(t, k, "b", rtkernel.Priorities.Medium, busy)

			run(t, k, 100)

			assert.Equal(t, tt.wantA, a.RunTicks())
			assert.Equal(t, tt.wantB, b.RunTicks())
		})
	}
}

func TestKernel_AgingReachesTopLevel(t *testing.T) {
	t.Parallel()

	// low climbs to the level of the running hog. From there only its wait
	// counter can get it the CPU when time slicing is off.
	tests := map[string]struct {
		slicing bool
		want    string
	}{
		"with time slicing": {
			slicing: true,
			want:    "low ran at tick 6 with priority 1\n",
		},
		"without time slicing": {
			slicing: false,
			want:    "low ran at tick 9 with priority 1\n",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			k, out, rec := newKernel(t,
				rtkernel.WithMaxPriorities(4),
				rtkernel.WithAgingThreshold(2),
				rtkernel.WithTimeSlicing(tt.slicing),
			)
			hog := create(t, k, "hog", rtkernel.Priorities.High, busy)
			low := create(t, k, "low", rtkernel.Priorities.Low, func(t *rtkernel.Task, _ any) {
				t.Printf("low ran at tick %d with priority %d\n", t.TickCount(), t.Priority())
			})

			run(t, k, 100)

			if got := out.String(); got != tt.want {
				t.Errorf("mismatch:\n  got:  %q\n  want: %q", got, tt.want)
			}
			assert.Equal(t, rtkernel.StateTerminated, low.State())
			assert.Equal(t, rtkernel.Priorities.High, hog.Priority())

			want := []rtkernel.Event{
				{Tick: 3, Kind: rtkernel.EventEscalate, Task: "low", From: 1, To: 2},
				{Tick: 6, Kind: rtkernel.EventEscalate, Task: "low", From: 2, To: 3},
			}
			assert.Equal(t, want, rec.Filter(rtkernel.EventEscalate))
		})
	}
}

func TestKernel_PreemptOnDelayExpiry(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t)
	create(t, k, "high", rtkernel.Priorities.High, func(t *rtkernel.Task, _ any) {
		t.Delay(5)
		t.Printf("high woke at %d\n", t.TickCount())
	})
	create(t, k, "low", rtkernel.Priorities.Low, busy)

	run(t, k, 20)

	assert.Equal(t, "high woke at 5\n", out.String())
}

func TestTask_Yield(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t, rtkernel.WithAgingThreshold(0), rtkernel.WithTimeSlicing(false))
	for _, name := range []string{"A", "B"} {
		create(t, k, name, rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			for range 3 {
				t.Printf("%s", t.Name())
				t.Yield()
			}
		})
	}

	run(t, k, 5)

	assert.Equal(t, "ABABAB", out.String())
}

func TestTask_DelayUntil(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t)
	create(t, k, "periodic", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
		last := t.TickCount()
		for range 3 {
			t.DelayUntil(&last, 10)
			t.Printf("%d\n", t.TickCount())
		}
		t.Work(25)
		blocked := t.DelayUntil(&last, 10)
		t.Printf("late %t at %d\n", !blocked, t.TickCount())
	})

	run(t, k, 100)

	assert.Equal(t, "10\n20\n30\nlate true at 55\n", out.String())
}

func TestTask_WorkFor(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t, rtkernel.WithTickRate(100))
	create(t, k, "worker", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
		t.WorkFor(250 * time.Millisecond)
		t.Printf("%d\n", t.TickCount())
	})

	run(t, k, 50)

	assert.Equal(t, "25\n", out.String())
	assert.Equal(t, uint64(25), k.DurationToTicks(250*time.Millisecond))
}

func TestKernel_SuspendResume(t *testing.T) {
	t.Parallel()

	t.Run("from outside any task", func(t *testing.T) {
		t.Parallel()

		k, out, _ := newKernel(t)
		worker := create(t, k, "worker", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			for {
				t.Printf("tick %d\n", t.TickCount())
				t.Delay(10)
			}
		})

		run(t, k, 15)
		require.NoError(t, k.Suspend(nil, worker))
		assert.Equal(t, rtkernel.StateSuspended, worker.State())

		run(t, k, 30)
		assert.Equal(t, "tick 0\ntick 10\n", out.String())

		require.NoError(t, k.Resume(nil, worker))
		run(t, k, 5)
		assert.Equal(t, "tick 0\ntick 10\ntick 45\n", out.String())
	})

	t.Run("self suspension", func(t *testing.T) {
		t.Parallel()

		k, out, _ := newKernel(t)
		var sleeper *rtkernel.Task
		sleeper = create(t, k, "sleeper", rtkernel.Priorities.High, func(t *rtkernel.Task, _ any) {
			t.Printf("sleeping\n")
			_ = t.Kernel().Suspend(t, nil)
			t.Printf("resumed at %d\n", t.TickCount())
		})
		create(t, k, "waker", rtkernel.Priorities.Low, func(t *rtkernel.Task, _ any) {
			t.Work(7)
			_ = t.Kernel().Resume(t, sleeper)
			t.Printf("waker done\n")
		})

		run(t, k, 20)

		assert.Equal(t, "sleeping\nresumed at 7\nwaker done\n", out.String())
	})

	t.Run("idle cannot be suspended", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		var cv *rtkernel.ContractViolationError
		require.ErrorAs(t, k.Suspend(nil, k.Idle()), &cv)
		assert.Equal(t, "suspend", cv.Op)
	})
}

func TestKernel_Delete(t *testing.T) {
	t.Parallel()

	t.Run("ready task never runs", func(t *testing.T) {
		t.Parallel()

		k, out, _ := newKernel(t)
		free := k.HeapFree()
		doomed := create(t, k, "doomed", rtkernel.Priorities.High, printName)
		assert.Less(t, k.HeapFree(), free)

		require.NoError(t, k.Delete(nil, doomed))
		assert.Equal(t, free, k.HeapFree())
		assert.Equal(t, rtkernel.StateTerminated, doomed.State())
		assert.ErrorIs(t, k.Delete(nil, doomed), rtkernel.ErrTerminated)

		run(t, k, 5)
		assert.Empty(t, out.String())
	})

	t.Run("self deletion", func(t *testing.T) {
		t.Parallel()

		k, out, _ := newKernel(t)
		create(t, k, "quitter", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			t.Printf("before\n")
			_ = t.Kernel().Delete(t, nil)
			t.Printf("after\n")
		})

		run(t, k, 5)

		assert.Equal(t, "before\n", out.String())
		assert.Len(t, k.Snapshot(), 1)
	})

	t.Run("idle cannot be deleted", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		var cv *rtkernel.ContractViolationError
		require.ErrorAs(t, k.Delete(nil, k.Idle()), &cv)
		assert.Len(t, k.Faults(), 1)
	})
}

func TestKernel_SetPriority(t *testing.T) {
	t.Parallel()

	k, out, _ := newKernel(t, rtkernel.WithAgingThreshold(0))
	other := create(t, k, "other", rtkernel.Priorities.Low, func(t *rtkernel.Task, _ any) {
		t.Printf("other ran at %d\n", t.TickCount())
	})
	create(t, k, "boss", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
		t.Work(3)
		_ = t.Kernel().SetPriority(t, other, rtkernel.Priorities.High)
		t.Printf("boss resumed at %d\n", t.TickCount())
	})

	var cv *rtkernel.ContractViolationError
	require.ErrorAs(t, k.SetPriority(nil, other, rtkernel.Priority(rtkernel.DefaultMaxPriorities)), &cv)

	run(t, k, 10)

	assert.Equal(t, "other ran at 3\nboss resumed at 3\n", out.String())
}

func TestKernel_ContractViolationSeverity(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		severity rtkernel.Severity
		wantOut  string
		wantRun  bool
	}{
		"abort task": {
			severity: rtkernel.SeverityAbortTask,
			wantOut:  "offender\nbystander\n",
		},
		"halt kernel": {
			severity: rtkernel.SeverityHalt,
			wantOut:  "offender\n",
			wantRun:  true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			k, out, _ := newKernel(t, rtkernel.WithSeverity(tt.severity))
			m, err := k.NewMutex("m")
			require.NoError(t, err)

			create(t, k, "offender", rtkernel.Priorities.High, func(t *rtkernel.Task, _ any) {
				t.Printf("offender\n")
				_ = m.Give(t)
				t.Printf("unreachable\n")
			})
			create(t, k, "bystander", rtkernel.Priorities.Low, printName)

			err = k.Run(context.Background(), 10)
			var cv *rtkernel.ContractViolationError
			if tt.wantRun {
				require.ErrorAs(t, err, &cv)
				assert.ErrorIs(t, k.Run(context.Background(), 10), err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOut, out.String())

			faults := k.Faults()
			require.Len(t, faults, 1)
			require.ErrorAs(t, faults[0], &cv)
			assert.Equal(t, "offender", cv.Task)
			assert.Equal(t, "mutex give", cv.Op)
		})
	}
}

func TestKernel_TaskPanic(t *testing.T) {
	t.Parallel()

	k, out, rec := newKernel(t)
	create(t, k, "crasher", rtkernel.Priorities.High, func(t *rtkernel.Task, _ any) {
		t.Work(2)
		panic("boom")
	})
	create(t, k, "bystander", rtkernel.Priorities.Low, printName)

	run(t, k, 10)

	assert.Equal(t, "bystander\n", out.String())
	faults := k.Faults()
	require.Len(t, faults, 1)
	var tp *rtkernel.TaskPanicError
	require.ErrorAs(t, faults[0], &tp)
	assert.Equal(t, "crasher", tp.Task)
	assert.Equal(t, "boom", tp.Value)

	terminated := rec.Filter(rtkernel.EventTerminate)
	require.NotEmpty(t, terminated)
	assert.Equal(t, "crasher", terminated[0].Task)
	assert.Equal(t, uint64(2), terminated[0].Tick)
}

func TestKernel_CreateTask(t *testing.T) {
	t.Parallel()

	t.Run("registry exhausted", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t, rtkernel.WithMaxTasks(3))
		create(t, k, "a", rtkernel.Priorities.Low, printName)
		create(t, k, "b", rtkernel.Priorities.Low, printName)

		_, err := k.CreateTask(printName, "c", 0, nil, rtkernel.Priorities.Low)
		assert.ErrorIs(t, err, rtkernel.ErrAllocation)
	})

	t.Run("heap exhausted", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		free := k.HeapFree()
		_, err := k.CreateTask(printName, "huge", free, nil, rtkernel.Priorities.Low)
		assert.ErrorIs(t, err, rtkernel.ErrAllocation)
		assert.Equal(t, free, k.HeapFree())
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t, rtkernel.WithMaxPriorities(4))
		for _, p := range []rtkernel.Priority{rtkernel.Priorities.Invalid, 4} {
			_, err := k.CreateTask(printName, "bad", 0, nil, p)
			var cv *rtkernel.ContractViolationError
			assert.ErrorAs(t, err, &cv, "priority %s", p)
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		_, err := k.CreateTask(nil, "empty", 0, nil, rtkernel.Priorities.Low)
		var cv *rtkernel.ContractViolationError
		assert.ErrorAs(t, err, &cv)
	})

	t.Run("identifiers are unique", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		a := create(t, k, "a", rtkernel.Priorities.Low, printName)
		require.NoError(t, k.Delete(nil, a))
		b := create(t, k, "b", rtkernel.Priorities.Low, printName)
		assert.NotEqual(t, a.ID(), b.ID())
	})
}

func TestKernel_Run(t *testing.T) {
	t.Parallel()

	t.Run("resumes where it stopped", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		worker := create(t, k, "worker", rtkernel.Priorities.Medium, busy)

		run(t, k, 10)
		run(t, k, 10)

		assert.Equal(t, uint64(20), k.TickCount())
		assert.Equal(t, uint64(20), worker.RunTicks())
		assert.Same(t, worker, k.Current())
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, k.Run(ctx, 10), context.Canceled)
		assert.Zero(t, k.TickCount())
	})

	t.Run("cancelled while running", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		create(t, k, "canceller", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			t.Work(5)
			cancel()
			busy(t, nil)
		})

		assert.ErrorIs(t, k.Run(ctx, 0), context.Canceled)
		assert.Equal(t, uint64(6), k.TickCount())

		run(t, k, 4)
		assert.Equal(t, uint64(10), k.TickCount())
	})

	t.Run("reentrant calls are refused", func(t *testing.T) {
		t.Parallel()

		k, out, _ := newKernel(t)
		create(t, k, "meddler", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			k := t.Kernel()
			t.Printf("%v\n", errors.Is(k.Run(context.Background(), 1), rtkernel.ErrRunning))
			t.Printf("%v\n", errors.Is(k.Shutdown(), rtkernel.ErrRunning))
		})

		run(t, k, 3)
		assert.Equal(t, "true\ntrue\n", out.String())
	})

	t.Run("after shutdown", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		require.NoError(t, k.Shutdown())
		assert.ErrorIs(t, k.Run(context.Background(), 1), rtkernel.ErrShutdown)
		_, err := k.CreateTask(printName, "late", 0, nil, rtkernel.Priorities.Low)
		assert.ErrorIs(t, err, rtkernel.ErrShutdown)
	})

	t.Run("blocking call outside the running task", func(t *testing.T) {
		t.Parallel()

		k, _, _ := newKernel(t)
		idler := create(t, k, "idler", rtkernel.Priorities.Low, printName)
		_, err := idler.NotifyWait(0, 0, rtkernel.NoWait)
		var cv *rtkernel.ContractViolationError
		assert.ErrorAs(t, err, &cv)
	})
}

func TestKernel_IdleHook(t *testing.T) {
	t.Parallel()

	var calls int
	k, _, _ := newKernel(t, rtkernel.WithIdleHook(func(*rtkernel.Task) { calls++ }))
	run(t, k, 10)

	// The hook runs once per idle iteration, and the iteration that reaches
	// the tick limit is parked before it can loop.
	assert.Equal(t, 10, calls)
}

func TestKernel_IdleHookMisbehaves(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		misbehave func(t *rtkernel.Task)
		want      string
	}{
		"delay": {
			misbehave: func(t *rtkernel.Task) { t.Delay(5) },
			want:      `contract violation: task "IDLE": delay: the idle task must not block`,
		},
		"notify wait": {
			misbehave: func(t *rtkernel.Task) { _, _ = t.NotifyWait(0, 0, rtkernel.Forever) },
			want:      `contract violation: task "IDLE": notify wait: the idle task must not block`,
		},
		"semaphore take": {
			misbehave: func(t *rtkernel.Task) {
				s, err := t.Kernel().NewSemaphore("s")
				if err == nil {
					_ = s.Take(t, 3)
				}
			},
			want: `contract violation: task "IDLE": semaphore take: the idle task must not block`,
		},
		"suspend itself": {
			misbehave: func(t *rtkernel.Task) { _ = t.Kernel().Suspend(t, nil) },
			want:      `contract violation: task "IDLE": suspend: the idle task cannot be suspended`,
		},
		"delete itself": {
			misbehave: func(t *rtkernel.Task) { _ = t.Kernel().Delete(t, nil) },
			want:      `contract violation: task "IDLE": delete: the idle task cannot be deleted`,
		},
		"panic": {
			misbehave: func(*rtkernel.Task) { panic("boom") },
			want:      `task "IDLE" panicked: boom`,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls int
			k, out, _ := newKernel(t, rtkernel.WithIdleHook(func(t *rtkernel.Task) {
				calls++
				if calls == 1 {
					tt.misbehave(t)
				}
			}))
			create(t, k, "late", rtkernel.Priorities.Low, func(t *rtkernel.Task, _ any) {
				t.Delay(5)
				t.Printf("late ran at %d\n", t.TickCount())
			})

			run(t, k, 10)

			assert.Equal(t, "late ran at 5\n", out.String())
			assert.Equal(t, 10, calls)
			assert.NotEqual(t, rtkernel.StateTerminated, k.Idle().State())

			faults := k.Faults()
			require.Len(t, faults, 1)
			if got := faults[0].Error(); got != tt.want {
				t.Errorf("mismatch:\n  got:  %q\n  want: %q", got, tt.want)
			}
		})
	}
}

func TestKernel_Shutdown(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		k, err := rtkernel.New()
		require.NoError(t, err)

		m, err := k.NewMutex("m")
		require.NoError(t, err)
		s, err := k.NewSemaphore("s")
		require.NoError(t, err)

		create(t, k, "holder", rtkernel.Priorities.High, func(t *rtkernel.Task, _ any) {
			_ = m.Take(t, rtkernel.Forever)
			t.Delay(rtkernel.Forever)
		})
		create(t, k, "mutex-waiter", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			_ = m.Take(t, rtkernel.Forever)
		})
		create(t, k, "sem-waiter", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			_ = s.Take(t, rtkernel.Forever)
		})
		create(t, k, "notify-waiter", rtkernel.Priorities.Medium, func(t *rtkernel.Task, _ any) {
			_, _ = t.NotifyWait(0, 0, rtkernel.Forever)
		})
		create(t, k, "spinner", rtkernel.Priorities.Low, busy)
		create(t, k, "background", rtkernel.Priorities.Idle, printName)

		require.NoError(t, k.Run(context.Background(), 50))
		require.NoError(t, k.Shutdown())
		require.NoError(t, k.Shutdown())
	})
}

func TestKernel_Tasks(t *testing.T) {
	t.Parallel()

	k, _, _ := newKernel(t)
	create(t, k, "a", rtkernel.Priorities.Low, printName)
	create(t, k, "b", rtkernel.Priorities.High, printName)

	var names []string
	for task := range k.Tasks() {
		names = append(names, task.Name())
	}
	assert.Equal(t, []string{"IDLE", "a", "b"}, names)

	infos := k.Snapshot()
	require.Len(t, infos, 3)
	assert.Equal(t, "b", infos[2].Name)
	assert.Equal(t, rtkernel.Priorities.High, infos[2].Effective)
	assert.Equal(t, "ready", infos[2].State)
	assert.Equal(t, "IDLE", infos[0].Name)
}
