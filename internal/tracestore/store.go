// Package tracestore persists simulation runs and their scheduler events.
package tracestore

import (
	"context"
	"time"

	"github.com/tomasbasham/rtkernel"
)

// Run describes one stored simulation run.
type Run struct {
	ID        string
	Scenario  string
	Ticks     uint64
	Config    string // YAML snapshot of the kernel configuration.
	Output    string
	Faults    []string
	CreatedAt time.Time
}

// Store defines the persistence layer for simulation runs.
type Store interface {
	SaveRun(ctx context.Context, run *Run, events []rtkernel.Event) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListEvents(ctx context.Context, runID string, kind *rtkernel.EventKind) ([]rtkernel.Event, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
