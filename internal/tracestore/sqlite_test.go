package tracestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/rtkernel"
	"github.com/tomasbasham/rtkernel/internal/logging"
	"github.com/tomasbasham/rtkernel/internal/tracestore"
)

func testStore(t *testing.T) *tracestore.SQLiteStore {
	t.Helper()
	st, err := tracestore.NewSQLiteStore(":memory:", logging.Discard())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleEvents() []rtkernel.Event {
	return []rtkernel.Event{
		{Tick: 0, Kind: rtkernel.EventSwitch, Task: "tskHigh", To: 3},
		{Tick: 9, Kind: rtkernel.EventEscalate, Task: "tskMedium", From: 2, To: 3},
		{Tick: 9, Kind: rtkernel.EventBlock, Task: "tskMedium", From: 2, To: 2, Reason: "mutex"},
		{Tick: 300, Kind: rtkernel.EventWake, Task: "tskMedium", From: 2, To: 2, Reason: "granted"},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testStore(t)

	run := &tracestore.Run{
		Scenario: "mutex",
		Ticks:    12000,
		Config:   "aging_threshold: 8\n",
		Output:   "task 3 with high prio hold mutex!\n",
		Faults:   []string{"contract violation: mutex give: not owner"},
	}
	require.NoError(t, st.SaveRun(ctx, run, sampleEvents()))
	require.NotEmpty(t, run.ID)
	assert.Contains(t, run.ID, "run_")

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Scenario, got.Scenario)
	assert.Equal(t, run.Ticks, got.Ticks)
	assert.Equal(t, run.Config, got.Config)
	assert.Equal(t, run.Output, got.Output)
	assert.Equal(t, run.Faults, got.Faults)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Millisecond)

	events, err := st.ListEvents(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), events)

	kind := rtkernel.EventEscalate
	escalations, err := st.ListEvents(ctx, run.ID, &kind)
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, "tskMedium", escalations[0].Task)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	_, err := testStore(t).GetRun(context.Background(), "run_missing")
	assert.ErrorIs(t, err, tracestore.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testStore(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, name := range []string{"mutex", "semaphores", "aging"} {
		run := &tracestore.Run{Scenario: name, Ticks: 100, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, st.SaveRun(ctx, run, nil))
	}

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "aging", runs[0].Scenario)
	assert.Equal(t, "mutex", runs[2].Scenario)
	assert.Empty(t, runs[0].Faults)

	limited, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
