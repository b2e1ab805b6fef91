// Package sim owns the simulation context: the single object that holds
// both entity stores, the event bus, and the current tick, constructed
// once and threaded explicitly through command execution, queries, and
// system updates.
//
// There is deliberately no package-level singleton. Handle passing keeps
// tests hermetic and makes multiple instances (headless server plus local
// client) a non-event.
//
// Thread-safety model: one goroutine owns a Context and everything inside
// it. Worker jobs may read snapshots taken at tick boundaries, but results
// come back as data and are applied through commands on the owning
// goroutine. Nothing here locks, because nothing here shares.
package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"sort"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/world"
)

// SystemID identifies a registered derived system. Ids are small and
// assigned by the systems themselves; the kernel only brokers the lookup.
type SystemID uint8

// System is the minimal contract a derived system registers under. The
// kernel never calls into systems; registration exists so that commands
// deserialized from a log can find the system state they mutate.
type System interface {
	SystemName() string
}

// Config sizes a context's pre-allocated storage. Capacities are fixed for
// the session: exceeding one at load time is a structural error, never a
// silent truncation.
type Config struct {
	ProvinceCapacity int
	CountryCapacity  int
	EventCapacity    int
}

// DefaultConfig returns capacities suitable for a large scenario.
func DefaultConfig() Config {
	return Config{
		ProvinceCapacity: 20000,
		CountryCapacity:  1000,
		EventCapacity:    event.DefaultCapacity,
	}
}

// Context is the authoritative simulation state handle.
type Context struct {
	Provinces *world.ProvinceStore
	Countries *world.CountryStore
	Bus       *event.Bus

	tick      uint32
	finalized bool
	systems   map[SystemID]System
}

// NewContext builds and initializes a context. Initialization failures are
// structural (bad capacities, record layout drift) and abort startup.
func NewContext(cfg Config) (*Context, error) {
	bus, err := event.NewBus(cfg.EventCapacity)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	provinces := world.NewProvinceStore(bus)
	if err := provinces.Initialize(cfg.ProvinceCapacity); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	countries := world.NewCountryStore(bus)
	if err := countries.Initialize(cfg.CountryCapacity); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	return &Context{
		Provinces: provinces,
		Countries: countries,
		Bus:       bus,
		systems:   make(map[SystemID]System),
	}, nil
}

// Tick returns the current tick. Tick 0 is the pre-first-tick load phase.
func (c *Context) Tick() uint32 {
	return c.tick
}

// TickStamped is optionally implemented by derived systems that stamp the
// current tick onto their emitted events.
type TickStamped interface {
	SetTick(tick uint32)
}

// AdvanceTick moves to the next tick and restamps the stores and any
// tick-stamped systems. Called by the command pipeline at the end of each
// tick.
func (c *Context) AdvanceTick() {
	c.tick++
	c.Provinces.SetTick(c.tick)
	c.Countries.SetTick(c.tick)
	for _, sys := range c.systems {
		if ts, ok := sys.(TickStamped); ok {
			ts.SetTick(c.tick)
		}
	}
}

// Finalize marks the end of bulk loading. Must be called exactly once
// after all entities are added and before the first tick, so cached views
// are consistent from tick 1. Events queued during load are discarded:
// loading establishes state, it does not notify about it.
func (c *Context) Finalize() error {
	if c.finalized {
		return fmt.Errorf("finalize: context already finalized")
	}
	if dropped := c.Bus.Discard(); dropped > 0 {
		slog.Debug("discarded load-phase events", "count", dropped)
	}
	c.finalized = true
	slog.Info("simulation context finalized",
		"provinces", c.Provinces.Len(),
		"countries", c.Countries.Len(),
	)
	return nil
}

// Finalized reports whether bulk loading has completed.
func (c *Context) Finalized() bool {
	return c.finalized
}

// RegisterSystem attaches a derived system under id. Duplicate
// registration is a structural error.
func (c *Context) RegisterSystem(id SystemID, sys System) error {
	if sys == nil {
		return fmt.Errorf("register system %d: nil system", id)
	}
	if existing, ok := c.systems[id]; ok {
		return fmt.Errorf("register system %d (%s): id already used by %s",
			id, sys.SystemName(), existing.SystemName())
	}
	c.systems[id] = sys
	return nil
}

// System returns the derived system registered under id, if any.
func (c *Context) System(id SystemID) (System, bool) {
	sys, ok := c.systems[id]
	return sys, ok
}

// Digester is optionally implemented by derived systems whose state must
// converge across machines: their bytes are folded into Digest in
// ascending SystemID order.
type Digester interface {
	DigestInto(h hash.Hash)
}

// Digest returns the deterministic state digest: both kernel stores plus
// every registered system that implements Digester.
func (c *Context) Digest() string {
	h := sha256.New()
	world.DigestInto(h, c.Provinces, c.Countries)

	ids := make([]int, 0, len(c.systems))
	for id := range c.systems {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		if d, ok := c.systems[SystemID(id)].(Digester); ok {
			d.DigestInto(h)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Dispose releases the stores. The context must not be used afterward.
func (c *Context) Dispose() {
	c.Provinces.Dispose()
	c.Countries.Dispose()
}
