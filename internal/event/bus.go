package event

import (
	"fmt"
	"log/slog"
)

// Handler receives a dispatched event. Handlers run on the simulation
// thread and must not mutate kernel state directly; reactions go through
// the command pipeline like every other mutation.
type Handler func(Event)

// Bus is the process-wide event queue for one simulation context.
//
// The queue is a fixed-capacity ring sized once at construction. Emit on a
// full ring drops the event and counts it; steady-state play must never
// reach that path, so a drop is logged as a warning and surfaced via
// Dropped() for tests and diagnostics.
//
// Thread-safety: none. The bus is owned by the single simulation writer,
// like the stores it reports on.
type Bus struct {
	ring  []Event
	head  int // index of the oldest queued event
	count int

	// handlers[kind-1] holds subscribers in subscription order. Cancelled
	// slots are nil and skipped, preserving order for the survivors.
	handlers [NumKinds][]Handler

	dropped uint64
}

// DefaultCapacity is enough for a full tick of a large map; commands drain
// the ring after every execution, so the bound is per command, not per tick.
const DefaultCapacity = 4096

// NewBus creates a bus with a pre-sized ring. Capacity must be positive.
func NewBus(capacity int) (*Bus, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("event bus capacity must be positive, got %d", capacity)
	}
	return &Bus{ring: make([]Event, capacity)}, nil
}

// Subscription is a cancellable handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	kind Kind
	idx  int
}

// Cancel removes the handler. Safe to call more than once. Remaining
// subscribers keep their relative order.
func (s *Subscription) Cancel() {
	if s.bus == nil {
		return
	}
	s.bus.handlers[s.kind-1][s.idx] = nil
	s.bus = nil
}

// Subscribe registers a handler for one event kind and returns a handle
// that cancels it. Multiple independent subscribers per kind are allowed;
// delivery follows subscription order.
func (b *Bus) Subscribe(kind Kind, h Handler) (*Subscription, error) {
	if kind < 1 || int(kind) > NumKinds {
		return nil, fmt.Errorf("subscribe: unknown event kind %d", kind)
	}
	if h == nil {
		return nil, fmt.Errorf("subscribe: nil handler for %s", kind)
	}
	b.handlers[kind-1] = append(b.handlers[kind-1], h)
	return &Subscription{bus: b, kind: kind, idx: len(b.handlers[kind-1]) - 1}, nil
}

// Emit queues an event for the next Drain. Emission is cheap and never
// allocates; a full ring drops the event with a warning.
func (b *Bus) Emit(e Event) {
	if e.Kind < 1 || int(e.Kind) > NumKinds {
		slog.Warn("emit of unknown event kind ignored", "kind", uint8(e.Kind))
		return
	}
	if b.count == len(b.ring) {
		b.dropped++
		slog.Warn("event ring full, dropping event",
			"kind", e.Kind.String(),
			"a", e.A,
			"b", e.B,
			"dropped_total", b.dropped,
		)
		return
	}
	b.ring[(b.head+b.count)%len(b.ring)] = e
	b.count++
}

// Drain dispatches every queued event to its subscribers, in emission
// order, each event fully delivered before the next. Events emitted by
// handlers during Drain are dispatched in the same call.
//
// Returns the number of events dispatched.
func (b *Bus) Drain() int {
	n := 0
	for b.count > 0 {
		e := b.ring[b.head]
		b.head = (b.head + 1) % len(b.ring)
		b.count--
		n++
		for _, h := range b.handlers[e.Kind-1] {
			if h != nil {
				h(e)
			}
		}
	}
	return n
}

// Discard empties the queue without dispatching. Used at the end of bulk
// loading: load-phase mutations establish state rather than notify about
// it, and subscribers must first observe the finalized world.
func (b *Bus) Discard() int {
	n := b.count
	b.head, b.count = 0, 0
	return n
}

// Pending returns the number of queued, undispatched events.
func (b *Bus) Pending() int {
	return b.count
}

// Dropped returns the total number of events dropped on a full ring since
// construction. Nonzero in production indicates the ring is undersized.
func (b *Bus) Dropped() uint64 {
	return b.dropped
}
