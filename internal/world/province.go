package world

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
)

// ProvinceHot is the fixed 8-byte hot record, the only per-province data
// touched by the innermost simulation loops. Ext is an indirection slot
// reserved for derived systems: an index into storage they own, opaque to
// the kernel.
//
// INVARIANT: exactly 8 bytes, no pointers, no variable-length data. The
// size is checked at Initialize and a mismatch is a fatal build error.
type ProvinceHot struct {
	Owner      ID
	Controller ID
	Terrain    Terrain
	_          uint8 // padding, keeps Ext aligned
	Ext        uint16
}

const provinceHotSize = 8

// ProvinceWarm is the fixed-size warm record, read on periodic passes
// (monthly economy, culture checks) rather than every frame.
//
// INVARIANT: growth is additive only. New fields go at the end so existing
// serialized data and tooling keep working.
type ProvinceWarm struct {
	Development fixed.Fixed
	CultureID   uint8
	_           [3]uint8 // padding
	Flags       uint32
	Buildings   [BuildingSlots]uint8
}

// BuildingSlots is the fixed number of building slots per province.
const BuildingSlots = 8

const provinceWarmSize = 24

// Province flag bits (warm tier).
const (
	FlagCoastal uint32 = 1 << iota
	FlagCapital
	FlagOccupied
	FlagBlockaded
)

// OwnerChange is one cold-tier history entry, appended whenever a
// province's owner actually changes.
type OwnerChange struct {
	Tick uint32
	From ID
	To   ID
}

// ProvinceCold holds rarely-touched, variable-size province data. Absence
// from the cold map means "no cold data"; readers get empty views, never a
// fault. Records are created lazily on first write.
type ProvinceCold struct {
	History []OwnerChange

	// Extensions carries versioned opaque blobs keyed by a registered
	// extension type id. The kernel never decodes them; derived systems
	// and modding layers own the schemas.
	Extensions map[uint16][]byte
}

// ProvinceStore is the sole owner of province hot-tier state.
type ProvinceStore struct {
	state storeState
	tick  uint32
	bus   *event.Bus

	// Hot tier, structure-of-arrays. Parallel slices indexed by the dense
	// position resolved through index.
	owners      []ID
	controllers []ID
	terrains    []Terrain
	ext         []uint16

	warm []ProvinceWarm
	cold map[ID]*ProvinceCold

	index map[ID]int32
	ids   []ID // live ids in insertion order
}

// NewProvinceStore creates an uninitialized store that emits on bus.
func NewProvinceStore(bus *event.Bus) *ProvinceStore {
	return &ProvinceStore{bus: bus}
}

// Initialize pre-allocates all backing storage for capacity provinces.
// Calling it twice is a structural error, as is a hot or warm record whose
// size drifted from the documented layout.
func (s *ProvinceStore) Initialize(capacity int) error {
	if s.state == stateInitialized {
		return fmt.Errorf("province store: %w", ErrAlreadyInitialized)
	}
	if s.state == stateDisposed {
		return fmt.Errorf("province store: %w", ErrDisposed)
	}
	if capacity <= 0 {
		return fmt.Errorf("province store: capacity must be positive, got %d", capacity)
	}
	if sz := unsafe.Sizeof(ProvinceHot{}); sz != provinceHotSize {
		return fmt.Errorf("province store: hot record is %d bytes, want %d", sz, provinceHotSize)
	}
	if sz := unsafe.Sizeof(ProvinceWarm{}); sz != provinceWarmSize {
		return fmt.Errorf("province store: warm record is %d bytes, want %d", sz, provinceWarmSize)
	}

	s.owners = make([]ID, 0, capacity)
	s.controllers = make([]ID, 0, capacity)
	s.terrains = make([]Terrain, 0, capacity)
	s.ext = make([]uint16, 0, capacity)
	s.warm = make([]ProvinceWarm, 0, capacity)
	s.cold = make(map[ID]*ProvinceCold)
	s.index = make(map[ID]int32, capacity)
	s.ids = make([]ID, 0, capacity)
	s.state = stateInitialized

	slog.Info("province store initialized", "capacity", capacity)
	return nil
}

// Dispose releases backing storage. Further calls degrade to defaults.
func (s *ProvinceStore) Dispose() {
	s.state = stateDisposed
	s.owners, s.controllers, s.terrains, s.ext = nil, nil, nil, nil
	s.warm, s.cold, s.index, s.ids = nil, nil, nil, nil
}

// SetTick updates the tick stamped onto emitted events. Called by the
// simulation context at each tick boundary.
func (s *ProvinceStore) SetTick(tick uint32) {
	s.tick = tick
}

// Add inserts a province. O(1) amortized. Duplicate ids, the reserved id
// 0, and capacity exhaustion are structural errors: scenario data that
// trips them must abort the load, not truncate it.
func (s *ProvinceStore) Add(id ID, hot ProvinceHot, warm ProvinceWarm) error {
	if s.state != stateInitialized {
		return fmt.Errorf("province store add %d: %w", id, ErrNotInitialized)
	}
	if id == None {
		return fmt.Errorf("province store add: %w", ErrReservedID)
	}
	if _, ok := s.index[id]; ok {
		return fmt.Errorf("province store add %d: %w", id, ErrDuplicateID)
	}
	if len(s.ids) == cap(s.ids) {
		return fmt.Errorf("province store add %d: %w (capacity %d)", id, ErrCapacityExceeded, cap(s.ids))
	}

	s.index[id] = int32(len(s.ids))
	s.ids = append(s.ids, id)
	s.owners = append(s.owners, hot.Owner)
	s.controllers = append(s.controllers, hot.Controller)
	s.terrains = append(s.terrains, hot.Terrain)
	s.ext = append(s.ext, hot.Ext)
	s.warm = append(s.warm, warm)
	return nil
}

// Has reports whether id is a live province.
func (s *ProvinceStore) Has(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of live provinces.
func (s *ProvinceStore) Len() int {
	return len(s.ids)
}

// AllIDs returns the live ids in insertion order. The slice is a read-only
// view owned by the store; callers must not modify it.
func (s *ProvinceStore) AllIDs() []ID {
	return s.ids
}

// lookup resolves an id, logging at warn on a miss (see package doc).
func (s *ProvinceStore) lookup(id ID, op string) (int32, bool) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("province query on unknown id", "op", op, "id", id)
		return 0, false
	}
	return i, true
}

// Owner returns the owning country, or None for unknown provinces (the
// documented "unowned/ocean" default).
func (s *ProvinceStore) Owner(id ID) ID {
	if i, ok := s.lookup(id, "owner"); ok {
		return s.owners[i]
	}
	return None
}

// Controller returns the controlling country, or None.
func (s *ProvinceStore) Controller(id ID) ID {
	if i, ok := s.lookup(id, "controller"); ok {
		return s.controllers[i]
	}
	return None
}

// Terrain returns the terrain category, or TerrainOcean for unknown ids.
func (s *ProvinceStore) Terrain(id ID) Terrain {
	if i, ok := s.lookup(id, "terrain"); ok {
		return s.terrains[i]
	}
	return TerrainOcean
}

// Ext returns the derived-system indirection slot, or 0.
func (s *ProvinceStore) Ext(id ID) uint16 {
	if i, ok := s.lookup(id, "ext"); ok {
		return s.ext[i]
	}
	return 0
}

// Development returns the warm-tier development value, or fixed.Zero.
func (s *ProvinceStore) Development(id ID) fixed.Fixed {
	if i, ok := s.lookup(id, "development"); ok {
		return s.warm[i].Development
	}
	return fixed.Zero
}

// CultureID returns the warm-tier culture code, or 0.
func (s *ProvinceStore) CultureID(id ID) uint8 {
	if i, ok := s.lookup(id, "culture"); ok {
		return s.warm[i].CultureID
	}
	return 0
}

// Flags returns the warm-tier flag set, or 0.
func (s *ProvinceStore) Flags(id ID) uint32 {
	if i, ok := s.lookup(id, "flags"); ok {
		return s.warm[i].Flags
	}
	return 0
}

// HasFlag reports whether every bit in mask is set.
func (s *ProvinceStore) HasFlag(id ID, mask uint32) bool {
	return s.Flags(id)&mask == mask
}

// Building returns the building code in slot, or 0 (empty) when the
// province or slot does not exist.
func (s *ProvinceStore) Building(id ID, slot int) uint8 {
	if slot < 0 || slot >= BuildingSlots {
		slog.Warn("province building query out of range", "id", id, "slot", slot)
		return 0
	}
	if i, ok := s.lookup(id, "building"); ok {
		return s.warm[i].Buildings[slot]
	}
	return 0
}

// SetOwner assigns a new owner. Unknown ids are a logged no-op. An actual
// change emits exactly one KindProvinceOwnerChanged event; a no-change set
// emits nothing. Ownership history is recorded by the commands driving the
// change (see AppendHistory), not here, so an undone command can remove
// exactly the entries it added.
func (s *ProvinceStore) SetOwner(id, owner ID) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set owner on unknown province", "id", id, "owner", owner)
		return
	}
	old := s.owners[i]
	if old == owner {
		return
	}
	s.owners[i] = owner
	s.bus.Emit(event.Event{
		Kind: event.KindProvinceOwnerChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  int64(old),
		New:  int64(owner),
	})
}

// SetController assigns a new controller, emitting on actual change.
func (s *ProvinceStore) SetController(id, controller ID) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set controller on unknown province", "id", id, "controller", controller)
		return
	}
	old := s.controllers[i]
	if old == controller {
		return
	}
	s.controllers[i] = controller
	s.bus.Emit(event.Event{
		Kind: event.KindProvinceControllerChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  int64(old),
		New:  int64(controller),
	})
}

// SetExt writes the derived-system indirection slot. No event: the slot is
// private to the owning derived system.
func (s *ProvinceStore) SetExt(id ID, ext uint16) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set ext on unknown province", "id", id)
		return
	}
	s.ext[i] = ext
}

// SetDevelopment writes the warm-tier development value, emitting on
// actual change.
func (s *ProvinceStore) SetDevelopment(id ID, dev fixed.Fixed) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set development on unknown province", "id", id)
		return
	}
	old := s.warm[i].Development
	if old == dev {
		return
	}
	s.warm[i].Development = dev
	s.bus.Emit(event.Event{
		Kind: event.KindProvinceDevelopmentChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  old.Raw(),
		New:  dev.Raw(),
	})
}

// SetFlags replaces the warm-tier flag set, emitting on actual change.
func (s *ProvinceStore) SetFlags(id ID, flags uint32) {
	i, ok := s.index[id]
	if !ok {
		slog.Warn("set flags on unknown province", "id", id)
		return
	}
	old := s.warm[i].Flags
	if old == flags {
		return
	}
	s.warm[i].Flags = flags
	s.bus.Emit(event.Event{
		Kind: event.KindProvinceFlagsChanged,
		Tick: s.tick,
		A:    uint16(id),
		Old:  int64(old),
		New:  int64(flags),
	})
}

// PlaceBuilding writes a building code into a slot, emitting on actual
// change. Out-of-range slots are a logged no-op.
func (s *ProvinceStore) PlaceBuilding(id ID, slot int, code uint8) {
	if slot < 0 || slot >= BuildingSlots {
		slog.Warn("place building out of range", "id", id, "slot", slot)
		return
	}
	i, ok := s.index[id]
	if !ok {
		slog.Warn("place building on unknown province", "id", id, "slot", slot)
		return
	}
	old := s.warm[i].Buildings[slot]
	if old == code {
		return
	}
	s.warm[i].Buildings[slot] = code
	s.bus.Emit(event.Event{
		Kind: event.KindProvinceBuildingPlaced,
		Tick: s.tick,
		A:    uint16(id),
		B:    uint16(slot),
		Old:  int64(old),
		New:  int64(code),
	})
}

// OwnedBy returns the ids of provinces whose owner is country, in
// insertion order.
//
// This is a deliberate O(n) scan over the hot array. The kernel keeps no
// reverse index: dual-maintained indices are a desync risk, and callers
// that need frequent reverse lookups build and own their own.
func (s *ProvinceStore) OwnedBy(country ID) []ID {
	var out []ID
	for i, owner := range s.owners {
		if owner == country {
			out = append(out, s.ids[i])
		}
	}
	return out
}

// History returns the ownership history for id, oldest first. Nil when the
// province has no cold record; callers treat nil as empty.
func (s *ProvinceStore) History(id ID) []OwnerChange {
	if c, ok := s.cold[id]; ok {
		return c.History
	}
	return nil
}

// AppendHistory records an ownership history entry, creating the cold
// record lazily. Unknown provinces are a logged no-op.
func (s *ProvinceStore) AppendHistory(id ID, change OwnerChange) {
	if _, ok := s.index[id]; !ok {
		slog.Warn("append history on unknown province", "id", id)
		return
	}
	c := s.coldFor(id)
	c.History = append(c.History, change)
}

// TruncateHistory drops the newest n history entries. Used by command undo
// to remove exactly the entries the command appended.
func (s *ProvinceStore) TruncateHistory(id ID, n int) {
	c, ok := s.cold[id]
	if !ok || n <= 0 {
		return
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	c.History = c.History[:len(c.History)-n]
}

// Extension returns the opaque extension blob for (id, typeID), or nil.
func (s *ProvinceStore) Extension(id ID, typeID uint16) []byte {
	if c, ok := s.cold[id]; ok {
		return c.Extensions[typeID]
	}
	return nil
}

// SetExtension stores an opaque extension blob, creating the cold record
// lazily. Unknown provinces are a logged no-op.
func (s *ProvinceStore) SetExtension(id ID, typeID uint16, blob []byte) {
	if _, ok := s.index[id]; !ok {
		slog.Warn("set extension on unknown province", "id", id, "type", typeID)
		return
	}
	c := s.coldFor(id)
	if c.Extensions == nil {
		c.Extensions = make(map[uint16][]byte)
	}
	c.Extensions[typeID] = blob
}

// coldFor returns the cold record for a live id, creating it lazily.
func (s *ProvinceStore) coldFor(id ID) *ProvinceCold {
	if c, ok := s.cold[id]; ok {
		return c
	}
	c := &ProvinceCold{}
	s.cold[id] = c
	return c
}
