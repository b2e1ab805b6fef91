// Package command implements the only sanctioned path for mutating
// simulation state: validated, prioritized, serializable commands executed
// strictly sequentially by a single-writer pipeline.
//
// ARCHITECTURE:
//
// A command's lifecycle is validate -> execute -> (optional) undo, with a
// binary payload codec on the side. Validation is a pure predicate over
// current state and is the only user-facing failure path: execute is
// required to succeed after a passing validate, and a failure there is a
// kernel bug, not an error the caller handles.
//
// Command kinds are open for extension: derived systems register a decoder
// for each kind at init, and the pipeline reconstructs commands from
// logged (kind, payload) pairs through that registry. Payloads carry
// exactly the fields needed to replay, never derived or snapshot data.
//
// CRITICAL PATTERNS:
//
// Deterministic ordering: within a tick, commands execute in descending
// priority; ties break by submission sequence, then by numeric kind id.
// The same ordered log therefore produces the same state on every machine.
package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tmacphail/suzerain/internal/sim"
)

// Kind identifies a command type in logs and on the wire. Values are part
// of the save-compatible contract: never reuse or renumber.
type Kind uint16

// Kernel command kinds. Derived systems register kinds of 64 and above.
const (
	KindChangeOwner       Kind = 1
	KindSetController     Kind = 2
	KindSetDevelopment    Kind = 3
	KindConstructBuilding Kind = 4
	KindTransferProvinces Kind = 5
	KindAdjustTreasury    Kind = 6
)

// Priority defaults. Higher executes first within a tick; ownership-class
// commands outrank dependent development-class commands so a transfer and
// a build targeting the same province resolve in a defined order.
const (
	PriorityOwnership = 100
	PriorityEconomy   = 50
	PriorityDefault   = 0
)

// ErrUndoUnsupported is returned by commands whose effects are
// irreversible by design (declared wars, broken alliances). Callers must
// treat it as "no undo exists", not as a failed undo.
var ErrUndoUnsupported = errors.New("command does not support undo")

// RejectError is the routine, caller-visible validation failure: a short
// machine code plus a human-readable reason suitable for a UI tooltip.
type RejectError struct {
	Code   string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Rejectf builds a RejectError with a formatted reason.
func Rejectf(code, format string, args ...any) *RejectError {
	return &RejectError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Reject codes used by kernel commands.
const (
	CodeUnknownProvince = "UNKNOWN_PROVINCE"
	CodeUnknownCountry  = "UNKNOWN_COUNTRY"
	CodeNoChange        = "NO_CHANGE"
	CodeNotOwner        = "NOT_OWNER"
	CodeSlotOccupied    = "SLOT_OCCUPIED"
	CodeSlotInvalid     = "SLOT_INVALID"
	CodeInsufficient    = "INSUFFICIENT_FUNDS"
	CodeBadArgument     = "BAD_ARGUMENT"
)

// Command is the unit of state mutation.
//
// Validate must be pure and side-effect free over ctx: it runs
// speculatively (UI affordance checks) and again at execution time, and
// must stay within a sub-millisecond budget. A nil return accepts; a
// *RejectError return carries the reason shown to the caller.
//
// Execute mutates state only through the store and derived-system APIs and
// must be deterministic: same state, same command, same resulting state
// and events, on every machine. Commands that support undo capture their
// pre-execute snapshot during Execute.
//
// EncodePayload serializes exactly the replay fields, priority included:
// same-tick ordering depends on it, so a decoded log must re-sort exactly
// as the original run did. Snapshot data taken for undo is derived state
// and must not be encoded. Every payload leads with the priority, written
// and read through EncodePriority/DecodePriority.
type Command interface {
	Kind() Kind
	Priority() int
	Validate(ctx *sim.Context) error
	Execute(ctx *sim.Context)
	Undo(ctx *sim.Context) error
	EncodePayload() []byte
}

// Decoder reconstructs a command from its logged payload.
type Decoder func(payload []byte) (Command, error)

type registration struct {
	name   string
	decode Decoder
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]registration)
)

// Register installs a decoder for a command kind. Called from init
// functions; a duplicate kind is a programmer error and panics.
func Register(kind Kind, name string, dec Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if existing, ok := registry[kind]; ok {
		panic(fmt.Sprintf("command kind %d (%s) already registered as %s", kind, name, existing.name))
	}
	if dec == nil {
		panic(fmt.Sprintf("command kind %d (%s): nil decoder", kind, name))
	}
	registry[kind] = registration{name: name, decode: dec}
}

// Decode reconstructs a command from a logged (kind, payload) pair.
// Unknown kinds indicate a version mismatch or corrupted log and fail
// loading rather than producing a divergent replay.
func Decode(kind Kind, payload []byte) (Command, error) {
	registryMu.RLock()
	reg, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decode command: unknown kind %d", kind)
	}
	cmd, err := reg.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s command: %w", reg.name, err)
	}
	return cmd, nil
}

// EncodePriority writes a command's priority into the first two bytes of
// its payload.
func EncodePriority(b []byte, prio int) {
	binary.LittleEndian.PutUint16(b, uint16(int16(prio)))
}

// DecodePriority reads the priority from the head of a payload.
func DecodePriority(payload []byte) int {
	return int(int16(binary.LittleEndian.Uint16(payload)))
}

// KindName returns the registered name for diagnostics, or "unknown".
func KindName(kind Kind) string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if reg, ok := registry[kind]; ok {
		return reg.name
	}
	return "unknown"
}

// sortPending orders same-tick commands deterministically: priority
// descending, then submission sequence ascending, then kind id ascending.
// Submission sequences are unique, so the kind tie-break is a documented
// backstop rather than a reachable branch; it stays because the ordering
// contract must not depend on that uniqueness.
func sortPending(entries []pendingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.cmd.Priority() != b.cmd.Priority() {
			return a.cmd.Priority() > b.cmd.Priority()
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.cmd.Kind() < b.cmd.Kind()
	})
}
