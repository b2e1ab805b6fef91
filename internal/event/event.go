// Package event implements the kernel's publish/subscribe bus.
//
// Events are fixed-size value records queued into a pre-sized ring buffer
// and dispatched at a defined point in the tick (Bus.Drain), never inline
// from the emitting mutation. This guarantees handlers only ever observe a
// store between mutations, and it keeps steady-state play allocation-free:
// no heap objects per event, no queue growth.
//
// CRITICAL PATTERNS:
//
// Delivery order: subscribers of a kind are invoked in subscription order,
// and an event is fully delivered to all of them before the next event is
// dispatched. The command pipeline drains the bus after every command, so
// one command's events never interleave with the next command's execution.
package event

import "github.com/tmacphail/suzerain/internal/fixed"

// Kind tags the event payload layout. Kinds are part of the public
// contract: existing values never change meaning within a save-compatible
// version; new kinds are appended.
type Kind uint8

const (
	// KindProvinceOwnerChanged: A = province id, B = unused,
	// Old/New = country ids.
	KindProvinceOwnerChanged Kind = iota + 1

	// KindProvinceControllerChanged: A = province id, Old/New = country ids.
	KindProvinceControllerChanged

	// KindProvinceDevelopmentChanged: A = province id,
	// Old/New = fixed.Fixed raw values.
	KindProvinceDevelopmentChanged

	// KindProvinceFlagsChanged: A = province id, Old/New = 32-bit flag sets.
	KindProvinceFlagsChanged

	// KindProvinceBuildingPlaced: A = province id, B = slot index,
	// New = building code, Old = previous code (0 when the slot was empty).
	KindProvinceBuildingPlaced

	// KindCountryTreasuryChanged: A = country id,
	// Old/New = fixed.Fixed raw values.
	KindCountryTreasuryChanged

	// KindCountryStabilityChanged: A = country id, Old/New = stability.
	KindCountryStabilityChanged

	// KindWarDeclared: A/B = the country pair, New = 1.
	KindWarDeclared

	// KindPeaceMade: A/B = the country pair, Old = 1, New = 0.
	KindPeaceMade

	// KindAllianceFormed: A/B = the country pair.
	KindAllianceFormed

	// KindAllianceBroken: A/B = the country pair.
	KindAllianceBroken

	// KindOpinionModifierAdded: A/B = the country pair,
	// New = fixed.Fixed raw value of the modifier.
	KindOpinionModifierAdded

	// kindSentinel bounds the subscriber table; not a real kind.
	kindSentinel
)

// NumKinds is the number of defined event kinds.
const NumKinds = int(kindSentinel) - 1

// Event is a fixed-size value record. Field meaning depends on Kind; the
// A/B pair carries entity ids and Old/New carry the before/after values
// (ids, raw fixed-point, or flag words, per the Kind's documentation).
//
// INVARIANT: Event contains no pointers and no variable-length data, so
// queueing an event never allocates.
type Event struct {
	Kind Kind
	Tick uint32
	A    uint16
	B    uint16
	Old  int64
	New  int64
}

// OldFixed interprets Old as a fixed-point raw value.
func (e Event) OldFixed() fixed.Fixed { return fixed.FromRaw(e.Old) }

// NewFixed interprets New as a fixed-point raw value.
func (e Event) NewFixed() fixed.Fixed { return fixed.FromRaw(e.New) }

// String returns the kind's name for logs and traces.
func (k Kind) String() string {
	switch k {
	case KindProvinceOwnerChanged:
		return "province_owner_changed"
	case KindProvinceControllerChanged:
		return "province_controller_changed"
	case KindProvinceDevelopmentChanged:
		return "province_development_changed"
	case KindProvinceFlagsChanged:
		return "province_flags_changed"
	case KindProvinceBuildingPlaced:
		return "province_building_placed"
	case KindCountryTreasuryChanged:
		return "country_treasury_changed"
	case KindCountryStabilityChanged:
		return "country_stability_changed"
	case KindWarDeclared:
		return "war_declared"
	case KindPeaceMade:
		return "peace_made"
	case KindAllianceFormed:
		return "alliance_formed"
	case KindAllianceBroken:
		return "alliance_broken"
	case KindOpinionModifierAdded:
		return "opinion_modifier_added"
	default:
		return "unknown"
	}
}
