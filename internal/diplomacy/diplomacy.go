// Package diplomacy is the exemplar derived system: relations between
// country pairs built entirely on the kernel's primitives. It owns its own
// tiered storage keyed by an unordered country pair, reacts to nothing by
// magic, and mutates itself only through commands, the same
// single-mutation-path contract as the kernel stores.
//
// Opinion is a pure function of the stored modifiers and the current tick.
// No running total is cached or decayed on a timer; recomputation is
// idempotent and order-independent, which removes an entire class of
// order-dependent desync bugs.
package diplomacy

import (
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// SystemID is the id diplomacy registers under on a simulation context.
const SystemID sim.SystemID = 1

// Pair is an unordered country pair, normalized so Low < High. The zero
// Pair is invalid.
type Pair struct {
	Low  world.ID
	High world.ID
}

// MakePair normalizes two country ids into a Pair. The ids must differ
// and neither may be the reserved None id.
func MakePair(a, b world.ID) (Pair, error) {
	if a == world.None || b == world.None {
		return Pair{}, fmt.Errorf("pair: id 0 is reserved")
	}
	if a == b {
		return Pair{}, fmt.Errorf("pair: %d paired with itself", a)
	}
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

// RelationFlags is the per-pair hot flag set backing the O(1) relation
// predicates.
type RelationFlags uint8

const (
	FlagWar RelationFlags = 1 << iota
	FlagAlliance
	FlagTruce
	FlagMarketPact
)

// Modifier is one opinion modifier. Its contribution at tick t is a pure
// function of (Value, AppliedTick, DecayRate, t); nothing here mutates
// after creation.
type Modifier struct {
	Type        uint16
	Value       fixed.Fixed
	AppliedTick uint32
	DecayRate   uint32 // ticks until fully decayed; 0 means permanent
}

// Contribution evaluates the modifier at tick now: linear decay from full
// Value at AppliedTick to Zero after DecayRate ticks. Evaluating twice at
// the same tick yields the same result by construction.
//
// A now before AppliedTick returns the full value; command validation
// rejects future-applied modifiers, so that branch is only reachable by
// direct queries against malformed data.
func (m Modifier) Contribution(now uint32) fixed.Fixed {
	if m.DecayRate == 0 || now <= m.AppliedTick {
		return m.Value
	}
	elapsed := now - m.AppliedTick
	if elapsed >= m.DecayRate {
		return fixed.Zero
	}
	remaining := m.DecayRate - elapsed
	return m.Value.Mul(fixed.FromInt(int64(remaining))).Div(fixed.FromInt(int64(m.DecayRate)))
}

// Store owns all diplomatic state. Hot tier: a dense flags array behind a
// sparse pair index, mirroring the kernel stores' layout discipline.
// Cold tier: per-pair modifier lists, created lazily.
//
// All mutators are unexported: the only sanctioned way to change
// diplomatic state from outside the package is a command.
type Store struct {
	bus  *event.Bus
	tick uint32

	flags []RelationFlags
	pairs []Pair // insertion order, for deterministic digests/iteration

	index     map[Pair]int32
	modifiers map[Pair][]Modifier
}

// NewStore creates a diplomacy store emitting on bus, pre-sized for
// capacity relation pairs.
func NewStore(bus *event.Bus, capacity int) *Store {
	return &Store{
		bus:       bus,
		flags:     make([]RelationFlags, 0, capacity),
		pairs:     make([]Pair, 0, capacity),
		index:     make(map[Pair]int32, capacity),
		modifiers: make(map[Pair][]Modifier),
	}
}

// SystemName implements sim.System.
func (s *Store) SystemName() string { return "diplomacy" }

// Attach registers the store on a context under SystemID.
func (s *Store) Attach(ctx *sim.Context) error {
	return ctx.RegisterSystem(SystemID, s)
}

// FromContext resolves the diplomacy store registered on ctx.
func FromContext(ctx *sim.Context) (*Store, error) {
	sys, ok := ctx.System(SystemID)
	if !ok {
		return nil, fmt.Errorf("diplomacy system not registered on context")
	}
	store, ok := sys.(*Store)
	if !ok {
		return nil, fmt.Errorf("system %d is %s, not diplomacy", SystemID, sys.SystemName())
	}
	return store, nil
}

// SetTick updates the tick stamped onto emitted events. Called alongside
// the kernel stores at tick boundaries.
func (s *Store) SetTick(tick uint32) {
	s.tick = tick
}

// Flags returns the relation flag set for a pair; an untracked pair has
// no flags. O(1).
func (s *Store) Flags(a, b world.ID) RelationFlags {
	pair, err := MakePair(a, b)
	if err != nil {
		return 0
	}
	if i, ok := s.index[pair]; ok {
		return s.flags[i]
	}
	return 0
}

// AtWar reports whether the two countries are at war. O(1).
func (s *Store) AtWar(a, b world.ID) bool {
	return s.Flags(a, b)&FlagWar != 0
}

// Allied reports whether the two countries are allied. O(1).
func (s *Store) Allied(a, b world.ID) bool {
	return s.Flags(a, b)&FlagAlliance != 0
}

// HasPact reports whether the two countries share a market pact. O(1).
func (s *Store) HasPact(a, b world.ID) bool {
	return s.Flags(a, b)&FlagMarketPact != 0
}

// Opinion sums every modifier's contribution between a and b at tick now.
// Pure over stored state: querying it any number of times, in any order,
// changes nothing.
func (s *Store) Opinion(a, b world.ID, now uint32) fixed.Fixed {
	pair, err := MakePair(a, b)
	if err != nil {
		return fixed.Zero
	}
	total := fixed.Zero
	for _, m := range s.modifiers[pair] {
		total = total.Add(m.Contribution(now))
	}
	return total
}

// Modifiers returns the stored modifiers for a pair, oldest first.
// Read-only view; nil for untracked pairs.
func (s *Store) Modifiers(a, b world.ID) []Modifier {
	pair, err := MakePair(a, b)
	if err != nil {
		return nil
	}
	return s.modifiers[pair]
}

// Pairs returns every tracked pair in insertion order. Read-only view.
func (s *Store) Pairs() []Pair {
	return s.pairs
}

// relationFor resolves or lazily creates the dense slot for a pair.
func (s *Store) relationFor(pair Pair) int32 {
	if i, ok := s.index[pair]; ok {
		return i
	}
	i := int32(len(s.pairs))
	s.index[pair] = i
	s.pairs = append(s.pairs, pair)
	s.flags = append(s.flags, 0)
	return i
}

// setFlags replaces a pair's flag set. Package-private: commands only.
func (s *Store) setFlags(pair Pair, flags RelationFlags) {
	i := s.relationFor(pair)
	s.flags[i] = flags
}

// addModifier appends a modifier. Package-private: commands only.
func (s *Store) addModifier(pair Pair, m Modifier) {
	s.relationFor(pair)
	s.modifiers[pair] = append(s.modifiers[pair], m)
}

// removeLastModifier drops the newest modifier of a given type, used by
// command undo. Reports whether one was removed.
func (s *Store) removeLastModifier(pair Pair, typ uint16) bool {
	mods := s.modifiers[pair]
	for i := len(mods) - 1; i >= 0; i-- {
		if mods[i].Type == typ {
			s.modifiers[pair] = append(mods[:i], mods[i+1:]...)
			return true
		}
	}
	return false
}

// digestDomain versions the diplomacy section of the state digest.
const digestDomain = "suzerain/diplomacy/v1"

// DigestInto implements sim.Digester: flags and modifiers in pair
// insertion order, fixed-width little-endian.
func (s *Store) DigestInto(h hash.Hash) {
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})

	var buf [8]byte
	u16 := func(v uint16) {
		binary.LittleEndian.PutUint16(buf[:2], v)
		h.Write(buf[:2])
	}
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		h.Write(buf[:4])
	}
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:8], v)
		h.Write(buf[:8])
	}

	u32(uint32(len(s.pairs)))
	for i, pair := range s.pairs {
		u16(uint16(pair.Low))
		u16(uint16(pair.High))
		u16(uint16(s.flags[i]))

		mods := s.modifiers[pair]
		u32(uint32(len(mods)))
		for _, m := range mods {
			u16(m.Type)
			u64(uint64(m.Value.Raw()))
			u32(m.AppliedTick)
			u32(m.DecayRate)
		}
	}
}

func (s *Store) emit(kind event.Kind, pair Pair, old, new int64) {
	s.bus.Emit(event.Event{
		Kind: kind,
		Tick: s.tick,
		A:    uint16(pair.Low),
		B:    uint16(pair.High),
		Old:  old,
		New:  new,
	})
}
