package harness

import (
	"fmt"
	"strings"

	"github.com/tmacphail/suzerain/internal/event"
)

// TraceEvent is one delivered event as recorded for assertions and golden
// files.
type TraceEvent struct {
	Tick uint32
	Kind event.Kind
	A    uint16
	B    uint16
	Old  int64
	New  int64
}

// Recorder subscribes to every event kind on a bus and accumulates the
// delivered events in order. Delivery order is deterministic, so the
// recorded trace is too.
type Recorder struct {
	events []TraceEvent
}

// NewRecorder creates a recorder subscribed to all kinds on bus.
func NewRecorder(bus *event.Bus) (*Recorder, error) {
	r := &Recorder{}
	for kind := event.Kind(1); int(kind) <= event.NumKinds; kind++ {
		if _, err := bus.Subscribe(kind, r.record); err != nil {
			return nil, fmt.Errorf("recorder: subscribe %s: %w", kind, err)
		}
	}
	return r, nil
}

func (r *Recorder) record(e event.Event) {
	r.events = append(r.events, TraceEvent{
		Tick: e.Tick,
		Kind: e.Kind,
		A:    e.A,
		B:    e.B,
		Old:  e.Old,
		New:  e.New,
	})
}

// Events returns the recorded trace in delivery order.
func (r *Recorder) Events() []TraceEvent {
	return r.events
}

// Count returns how many recorded events have the named kind.
func (r *Recorder) Count(kindName string) int {
	n := 0
	for _, e := range r.events {
		if e.Kind.String() == kindName {
			n++
		}
	}
	return n
}

// Render formats the trace as stable text, one event per line, for golden
// file comparison.
func (r *Recorder) Render() []byte {
	var b strings.Builder
	for _, e := range r.events {
		fmt.Fprintf(&b, "tick=%d event=%s a=%d b=%d old=%d new=%d\n",
			e.Tick, e.Kind, e.A, e.B, e.Old, e.New)
	}
	return []byte(b.String())
}
