package world

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
)

// Tag is a three-letter country tag ("RED", "BLU") packed into a uint32
// for hot-array storage. The zero Tag is invalid.
type Tag uint32

// ParseTag packs a three-letter uppercase ASCII tag.
func ParseTag(s string) (Tag, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("country tag %q: must be exactly 3 letters", s)
	}
	var t Tag
	for i := 0; i < 3; i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("country tag %q: must be uppercase A-Z", s)
		}
		t = t<<8 | Tag(c)
	}
	return t, nil
}

// String unpacks the tag back to its three-letter form.
func (t Tag) String() string {
	if t == 0 {
		return "---"
	}
	return string([]byte{byte(t >> 16), byte(t >> 8), byte(t)})
}

// CountryHot is the fixed 16-byte hot record for a country: the fields the
// per-tick economy and diplomacy loops read.
//
// INVARIANT: exactly 16 bytes, pointer-free; checked at Initialize.
type CountryHot struct {
	Tag       Tag
	Stability int8
	_         [3]uint8 // padding
	Treasury  fixed.Fixed
}

const countryHotSize = 16

// CountryWarm is the fixed-size warm record: presentation color, primary
// culture, and a flag word. Growth is additive only.
type CountryWarm struct {
	Color     [3]uint8
	CultureID uint8
	Flags     uint32
}

const countryWarmSize = 8

// CountryCold holds rarely-touched country data, keyed sparsely by id and
// created lazily on first write.
type CountryCold struct {
	Extensions map[uint16][]byte
}

// Stability bounds. Stability is a small signed scalar, clamped on write.
const (
	StabilityMin int8 = -3
	StabilityMax int8 = 3
)

// CountryStore is the sole owner of country hot-tier state. Layout and
// semantics mirror ProvinceStore; see the package doc.
type CountryStore struct {
	state storeState
	tick  uint32
	bus   *event.Bus

	tags        []Tag
	stabilities []int8
	treasuries  []fixed.Fixed

	warm []CountryWarm
	cold map[ID]*CountryCold

	index map[ID]int32
	byTag map[Tag]ID
	ids   []ID
}

// NewCountryStore creates an uninitialized store that emits on bus.
func NewCountryStore(bus *event.Bus) *CountryStore {
	return &CountryStore{bus: bus}
}

// Initialize pre-allocates storage for capacity countries. Double
// initialization and record-size drift are structural errors.
func (s *CountryStore) Initialize(capacity int) error {
	if s.state == stateInitialized {
		return fmt.Errorf("country store: %w", ErrAlreadyInitialized)
	}
	if s.state == stateDisposed {
		return fmt.Errorf("country store: %w", ErrDisposed)
	}
	if capacity <= 0 {
		return fmt.Errorf("country store: capacity must be positive, got %d", capacity)
	}
	if sz := unsafe.Sizeof(CountryHot{}); sz != countryHotSize {
		return fmt.Errorf("country store: hot record is %d bytes, want %d", sz, countryHotSize)
	}
	if sz := unsafe.Sizeof(CountryWarm{}); sz != countryWarmSize {
		return fmt.Errorf("country store: warm record is %d bytes, want %d", sz, countryWarmSize)
	}

	s.tags = make([]Tag, 0, capacity)
	s.stabilities = make([]int8, 0, capacity)
	s.treasuries = make([]fixed.Fixed, 0, capacity)
	s.warm = make([]CountryWarm, 0, capacity)
	s.cold = make(map[ID]*CountryCold)
	s.index = make(map[ID]int32, capacity)
	s.byTag = make(map[Tag]ID, capacity)
	s.ids = make([]ID, 0, capacity)
	s.state = stateInitialized

	slog.Info("country store initialized", "capacity", capacity)
	return nil
}

// Dispose releases backing storage.
func (s *CountryStore) Dispose() {
	s.state = stateDisposed
	s.tags, s.stabilities, s.treasuries = nil, nil, nil
	s.warm, s.cold, s.index, s.byTag, s.ids = nil, nil, nil, nil, nil
}

// SetTick updates the tick stamped onto emitted events.
func (s *CountryStore) SetTick(tick uint32) {
	s.tick = tick
}

// Add inserts a country. Duplicate ids or tags, the reserved id 0, and
// capacity exhaustion are structural errors.
func (s *CountryStore) Add(id ID, hot CountryHot, warm CountryWarm) error {
	if s.state != stateInitialized {
		return fmt.Errorf("country store add %d: %w", id, ErrNotInitialized)
	}
	if id == None {
		return fmt.Errorf("country store add: %w", ErrReservedID)
	}
	if _, ok := s.index[id]; ok {
		return fmt.Errorf("country store add %d: %w", id, ErrDuplicateID)
	}
	if hot.Tag == 0 {
		return fmt.Errorf("country store add %d: zero tag", id)
	}
	if other, ok := s.byTag[hot.Tag]; ok {
		return fmt.Errorf("country store add %d: tag %s already used by %d", id, hot.Tag, other)
	}
	if len(s.ids) == cap(s.ids) {
		return fmt.Errorf("country store add %d: %w (capacity %d)", id, ErrCapacityExceeded, cap(s.ids))
	}

	s.index[id] = int32(len(s.ids))
	s.byTag[hot.Tag] = id
	s.ids = append(s.ids, id)
	s.tags = append(s.tags, hot.Tag)
	s.stabilities = append(s.stabilities, clampStability(hot.Stability))
	s.treasuries = append(s.treasuries, hot.Treasury)
	s.warm = append(s.warm, warm)
	return nil
}

// Has reports whether id is a live country.
func (s *CountryStore) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of live countries.
func (s *CountryStore) Len() int {
	return len(s.ids)
}

// AllIDs returns the live ids in insertion order; read-only view.
func (s *CountryStore) AllIDs() []ID {
	return s.ids
}

// ByTag resolves a tag to its country id, or None.
func (s *CountryStore) ByTag(tag Tag) ID {
	return s.byTag[tag]
}

func (s *CountryStore) lookup(id ID, op string) (int32, bool) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("country query on unknown id", "op", op, "id", id)
		return 0, false
	}
	return i, true
}

// Tag returns the country's tag, or the zero Tag ("---").
func (s *CountryStore) Tag(id ID) Tag {
	if i, ok := s.lookup(id, "tag"); ok {
		return s.tags[i]
	}
	return 0
}

// Treasury returns the treasury balance, or fixed.Zero.
func (s *CountryStore) Treasury(id ID) fixed.Fixed {
	if i, ok := s.lookup(id, "treasury"); ok {
		return s.treasuries[i]
	}
	return fixed.Zero
}

// Stability returns the stability scalar, or 0.
func (s *CountryStore) Stability(id ID) int8 {
	if i, ok := s.lookup(id, "stability"); ok {
		return s.stabilities[i]
	}
	return 0
}

// Color returns the warm-tier map color, or black.
func (s *CountryStore) Color(id ID) [3]uint8 {
	if i, ok := s.lookup(id, "color"); ok {
		return s.warm[i].Color
	}
	return [3]uint8{}
}

// SetTreasury writes the treasury balance, emitting on actual change.
func (s *CountryStore) SetTreasury(id ID, v fixed.Fixed) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set treasury on unknown country", "id", id)
		return
	}
	old := s.treasuries[i]
	if old == v {
		return
	}
	s.treasuries[i] = v
	s.bus.Emit(event.Event{
		Kind: event.KindCountryTreasuryChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  old.Raw(),
		New:  v.Raw(),
	})
}

// SetStability writes the stability scalar, clamped to the documented
// bounds, emitting on actual change.
func (s *CountryStore) SetStability(id ID, v int8) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set stability on unknown country", "id", id)
		return
	}
	v = clampStability(v)
	old := s.stabilities[i]
	if old == v {
		return
	}
	s.stabilities[i] = v
	s.bus.Emit(event.Event{
		Kind: event.KindCountryStabilityChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  int64(old),
		New:  int64(v),
	})
}

// Extension returns the opaque extension blob for (id, typeID), or nil.
func (s *CountryStore) Extension(id ID, typeID uint16) []byte {
	if c, ok := s.cold[id]; ok {
		return c.Extensions[typeID]
	}
	return nil
}

// SetExtension stores an opaque extension blob, creating the cold record
// lazily. Unknown countries are a logged no-op.
func (s *CountryStore) SetExtension(id ID, typeID uint16, blob []byte) {
	if _, ok := s.index[id]; !ok {
		slog.Warn("set extension on unknown country", "id", id, "type", typeID)
		return
	}
	c, ok := s.cold[id]
	if !ok {
		c = &CountryCold{}
		s.cold[id] = c
	}
	if c.Extensions == nil {
		c.Extensions = make(map[uint16][]byte)
	}
	c.Extensions[typeID] = blob
}

func clampStability(v int8) int8 {
	if v < StabilityMin {
		return StabilityMin
	}
	if v > StabilityMax {
		return StabilityMax
	}
	return v
}
