package rtkernel

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MetricsHook receives scheduler events. Hooks are called synchronously with
// the kernel lock held: they must not call back into the kernel, and must
// not panic. A nil from in OnSwitch denotes the start of the scheduler.
type MetricsHook interface {
	OnSwitch(tick uint64, from, to *Task)
	OnEscalate(tick uint64, t *Task, from, to Priority)
	OnInherit(tick uint64, t *Task, from, to Priority)
	OnBlock(tick uint64, t *Task, on string)
	OnWake(tick uint64, t *Task, reason WakeReason)
	OnTerminate(tick uint64, t *Task)
}

func (k *Kernel) onSwitch(from, to *Task) {
	k.logger.Debug("context switch", "tick", k.ticks, "from", from, "to", to, "priority", to.effective)
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnSwitch(k.ticks, from, to)
	}
}

func (k *Kernel) onEscalate(t *Task, from, to Priority) {
	k.logger.Debug("task aged", "tick", k.ticks, "task", t.name, "from", from, "to", to)
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnEscalate(k.ticks, t, from, to)
	}
}

func (k *Kernel) onInherit(t *Task, from, to Priority) {
	k.logger.Debug("priority inherited", "tick", k.ticks, "task", t.name, "from", from, "to", to)
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnInherit(k.ticks, t, from, to)
	}
}

func (k *Kernel) onBlock(t *Task, kind queueKind) {
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnBlock(k.ticks, t, kind.String())
	}
}

func (k *Kernel) onWake(t *Task, reason WakeReason) {
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnWake(k.ticks, t, reason)
	}
}

func (k *Kernel) onTerminate(t *Task) {
	if k.opts.Metrics != nil {
		k.opts.Metrics.OnTerminate(k.ticks, t)
	}
}

// EventKind classifies a recorded scheduler event.
type EventKind uint8

const (
	EventSwitch EventKind = iota
	EventEscalate
	EventInherit
	EventBlock
	EventWake
	EventTerminate
)

var eventKindNames = []string{"switch", "escalate", "inherit", "block", "wake", "terminate"}

func (e EventKind) String() string {
	if int(e) < len(eventKindNames) {
		return eventKindNames[e]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(e))
}

// MarshalText implements [encoding.TextMarshaler].
func (e EventKind) MarshalText() ([]byte, error) {
	if int(e) >= len(eventKindNames) {
		return nil, fmt.Errorf("invalid event kind %d", uint8(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (e *EventKind) UnmarshalText(text []byte) error {
	i := slices.Index(eventKindNames, strings.ToLower(strings.TrimSpace(string(text))))
	if i < 0 {
		return fmt.Errorf("invalid event kind %q", text)
	}
	*e = EventKind(i)
	return nil
}

// Event is one recorded scheduler event. Task is the subject; Other is the
// task switched away from for switch events.
type Event struct {
	Tick   uint64    `json:"tick" yaml:"tick"`
	Kind   EventKind `json:"kind" yaml:"kind"`
	Task   string    `json:"task" yaml:"task"`
	Other  string    `json:"other,omitempty" yaml:"other,omitempty"`
	From   Priority  `json:"from" yaml:"from"`
	To     Priority  `json:"to" yaml:"to"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventSwitch:
		return fmt.Sprintf("%8d %-9s %s -> %s (%s)", e.Tick, e.Kind, e.Other, e.Task, e.To)
	case EventEscalate, EventInherit:
		return fmt.Sprintf("%8d %-9s %s %s -> %s", e.Tick, e.Kind, e.Task, e.From, e.To)
	case EventTerminate:
		return fmt.Sprintf("%8d %-9s %s", e.Tick, e.Kind, e.Task)
	default:
		return fmt.Sprintf("%8d %-9s %s %s", e.Tick, e.Kind, e.Task, e.Reason)
	}
}

// Ensure Recorder implements [MetricsHook].
var _ MetricsHook = (*Recorder)(nil)

// Recorder is a [MetricsHook] that keeps every event in memory. A limit of
// zero keeps all events; otherwise only the most recent limit events are
// retained.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewRecorder returns a recorder retaining at most limit events.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = slices.Delete(r.events, 0, len(r.events)-r.limit)
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Filter returns the recorded events of the given kind.
func (r *Recorder) Filter(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) OnSwitch(tick uint64, from, to *Task) {
	e := Event{Tick: tick, Kind: EventSwitch, Task: to.name, To: to.effective}
	if from != nil {
		e.Other = from.name
		e.From = from.effective
	}
	r.add(e)
}

func (r *Recorder) OnEscalate(tick uint64, t *Task, from, to Priority) {
	r.add(Event{Tick: tick, Kind: EventEscalate, Task: t.name, From: from, To: to})
}

func (r *Recorder) OnInherit(tick uint64, t *Task, from, to Priority) {
	r.add(Event{Tick: tick, Kind: EventInherit, Task: t.name, From: from, To: to})
}

func (r *Recorder) OnBlock(tick uint64, t *Task, on string) {
	r.add(Event{Tick: tick, Kind: EventBlock, Task: t.name, From: t.effective, To: t.effective, Reason: on})
}

func (r *Recorder) OnWake(tick uint64, t *Task, reason WakeReason) {
	r.add(Event{Tick: tick, Kind: EventWake, Task: t.name, From: t.effective, To: t.effective, Reason: reason.String()})
}

func (r *Recorder) OnTerminate(tick uint64, t *Task) {
	r.add(Event{Tick: tick, Kind: EventTerminate, Task: t.name})
}

// Ensure NopMetricsHook implements [MetricsHook].
var _ MetricsHook = NopMetricsHook{}

// NopMetricsHook ignores every event. Embed it to implement only the hooks of
// interest.
type NopMetricsHook struct{}

func (NopMetricsHook) OnSwitch(uint64, *Task, *Task)               {}
func (NopMetricsHook) OnEscalate(uint64, *Task, Priority, Priority) {}
func (NopMetricsHook) OnInherit(uint64, *Task, Priority, Priority)  {}
func (NopMetricsHook) OnBlock(uint64, *Task, string)                {}
func (NopMetricsHook) OnWake(uint64, *Task, WakeReason)             {}
func (NopMetricsHook) OnTerminate(uint64, *Task)                    {}
