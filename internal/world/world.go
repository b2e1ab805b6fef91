// Package world owns the hot-tier entity state for the two kernel entity
// categories, provinces and countries, plus their warm and cold tiers.
//
// ARCHITECTURE:
//
// Each store keeps its primary fields in structure-of-arrays layout: one
// dense array per hot field, indexed by a position resolved once through a
// sparse id->index map. Hot records are fixed-size and pointer-free so the
// per-tick inner loops walk contiguous memory. Warm records are a second
// dense array of larger fixed-size structs touched on periodic passes.
// Cold data lives in a sparse map, lazily created on first write.
//
// The tiers for one entity are correlated ONLY by id. No tier points at
// another, so any tier can be rebuilt or omitted without invalidating the
// rest.
//
// CRITICAL PATTERNS:
//
// Graceful reads: a query for an unknown id returns the documented default
// and logs a warning. Render and UI code calls these accessors every frame
// with potentially stale ids; a stale id must never crash the simulation.
//
// Change-only events: a set that does not change the stored value emits
// nothing. A set that does emits exactly one typed event with the old and
// new values, queued on the bus and dispatched at the tick's drain point.
//
// Single writer: stores are not locked. One simulation goroutine owns all
// mutation; everything else consumes the read-only query surface or the
// event bus.
package world

import "errors"

// ID is a stable entity identifier. Id 0 is reserved: it denotes "none"
// (an unowned province, the absence of a country). Ids remain valid for
// the lifetime of a loaded session.
type ID uint16

// None is the reserved null id.
const None ID = 0

// Structural errors. These abort initialization or loading (a data or
// build problem), unlike query errors which degrade gracefully.
var (
	ErrAlreadyInitialized = errors.New("store already initialized")
	ErrNotInitialized     = errors.New("store not initialized")
	ErrDisposed           = errors.New("store disposed")
	ErrCapacityExceeded   = errors.New("entity capacity exceeded")
	ErrDuplicateID        = errors.New("duplicate entity id")
	ErrReservedID         = errors.New("id 0 is reserved for none")
)

// storeState is the store lifecycle: uninitialized -> initialized ->
// disposed. Per-entity state is pure data, not a state machine.
type storeState uint8

const (
	stateUninitialized storeState = iota
	stateInitialized
	stateDisposed
)

// Terrain is the per-province terrain category code.
type Terrain uint8

const (
	TerrainOcean Terrain = iota
	TerrainPlains
	TerrainHills
	TerrainMountains
	TerrainForest
	TerrainDesert
	TerrainMarsh
	TerrainTundra
)

// terrainNames indexes Terrain for parsing and display.
var terrainNames = [...]string{
	"ocean", "plains", "hills", "mountains", "forest", "desert", "marsh", "tundra",
}

// String returns the lowercase terrain name.
func (t Terrain) String() string {
	if int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "unknown"
}

// ParseTerrain resolves a terrain name from scenario data.
func ParseTerrain(s string) (Terrain, bool) {
	for i, name := range terrainNames {
		if name == s {
			return Terrain(i), true
		}
	}
	return TerrainOcean, false
}
