package diplomacy

import (
	"encoding/binary"
	"fmt"

	"github.com/tmacphail/suzerain/internal/command"
	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// Diplomacy command kinds, in the derived-system range (64+).
const (
	KindDeclareWar    command.Kind = 64
	KindMakePeace     command.Kind = 65
	KindFormAlliance  command.Kind = 66
	KindBreakAlliance command.Kind = 67
	KindAddOpinion    command.Kind = 68
)

// PriorityDiplomacy outranks ownership changes: a war declared this tick
// is visible to every conquest command that follows it.
const PriorityDiplomacy = 150

// Reject codes specific to diplomacy.
const (
	CodeSelfRelation  = "SELF_RELATION"
	CodeAlreadyAtWar  = "ALREADY_AT_WAR"
	CodeNotAtWar      = "NOT_AT_WAR"
	CodeAlreadyAllied = "ALREADY_ALLIED"
	CodeNotAllied     = "NOT_ALLIED"
	CodeAtWar         = "AT_WAR"
	CodeFutureTick    = "FUTURE_TICK"
)

func init() {
	command.Register(KindDeclareWar, "declare_war", decodeDeclareWar)
	command.Register(KindMakePeace, "make_peace", decodeMakePeace)
	command.Register(KindFormAlliance, "form_alliance", decodeFormAlliance)
	command.Register(KindBreakAlliance, "break_alliance", decodeBreakAlliance)
	command.Register(KindAddOpinion, "add_opinion", decodeAddOpinion)
}

// validatePair is the shared precondition of every pair command.
func validatePair(ctx *sim.Context, a, b world.ID) (*Store, Pair, error) {
	if a == b {
		return nil, Pair{}, command.Rejectf(CodeSelfRelation, "country %d cannot relate to itself", a)
	}
	if !ctx.Countries.Has(a) {
		return nil, Pair{}, command.Rejectf(command.CodeUnknownCountry, "country %d does not exist", a)
	}
	if !ctx.Countries.Has(b) {
		return nil, Pair{}, command.Rejectf(command.CodeUnknownCountry, "country %d does not exist", b)
	}
	store, err := FromContext(ctx)
	if err != nil {
		return nil, Pair{}, err
	}
	pair, err := MakePair(a, b)
	if err != nil {
		return nil, Pair{}, command.Rejectf(command.CodeBadArgument, "%v", err)
	}
	return store, pair, nil
}

func encodePair(prio int, a, b world.ID) []byte {
	buf := make([]byte, 6)
	command.EncodePriority(buf, prio)
	binary.LittleEndian.PutUint16(buf[2:], uint16(a))
	binary.LittleEndian.PutUint16(buf[4:], uint16(b))
	return buf
}

func decodePair(payload []byte) (int, world.ID, world.ID, error) {
	if len(payload) != 6 {
		return 0, 0, 0, fmt.Errorf("payload is %d bytes, want 6", len(payload))
	}
	return command.DecodePriority(payload),
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		world.ID(binary.LittleEndian.Uint16(payload[4:])), nil
}

// DeclareWar puts two countries at war, dissolving any alliance between
// them. A declared war is an irreversible diplomatic act: undo is not
// supported.
type DeclareWar struct {
	A, B world.ID
	Prio int
}

// NewDeclareWar builds the command with the diplomacy priority.
func NewDeclareWar(a, b world.ID) *DeclareWar {
	return &DeclareWar{A: a, B: b, Prio: PriorityDiplomacy}
}

func (c *DeclareWar) Kind() command.Kind { return KindDeclareWar }
func (c *DeclareWar) Priority() int      { return c.Prio }

func (c *DeclareWar) Validate(ctx *sim.Context) error {
	store, _, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return err
	}
	if store.AtWar(c.A, c.B) {
		return command.Rejectf(CodeAlreadyAtWar, "countries %d and %d are already at war", c.A, c.B)
	}
	return nil
}

func (c *DeclareWar) Execute(ctx *sim.Context) {
	store, pair, _ := validatePair(ctx, c.A, c.B)
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, (flags|FlagWar)&^FlagAlliance&^FlagMarketPact)
	store.emit(event.KindWarDeclared, pair, 0, 1)
}

func (c *DeclareWar) Undo(ctx *sim.Context) error {
	return command.ErrUndoUnsupported
}

func (c *DeclareWar) EncodePayload() []byte { return encodePair(c.Prio, c.A, c.B) }

func decodeDeclareWar(payload []byte) (command.Command, error) {
	prio, a, b, err := decodePair(payload)
	if err != nil {
		return nil, err
	}
	cmd := NewDeclareWar(a, b)
	cmd.Prio = prio
	return cmd, nil
}

// MakePeace ends a war. Like the declaration, it is not undoable.
type MakePeace struct {
	A, B world.ID
	Prio int
}

// NewMakePeace builds the command with the diplomacy priority.
func NewMakePeace(a, b world.ID) *MakePeace {
	return &MakePeace{A: a, B: b, Prio: PriorityDiplomacy}
}

func (c *MakePeace) Kind() command.Kind { return KindMakePeace }
func (c *MakePeace) Priority() int      { return c.Prio }

func (c *MakePeace) Validate(ctx *sim.Context) error {
	store, _, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return err
	}
	if !store.AtWar(c.A, c.B) {
		return command.Rejectf(CodeNotAtWar, "countries %d and %d are not at war", c.A, c.B)
	}
	return nil
}

func (c *MakePeace) Execute(ctx *sim.Context) {
	store, pair, _ := validatePair(ctx, c.A, c.B)
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, (flags&^FlagWar)|FlagTruce)
	store.emit(event.KindPeaceMade, pair, 1, 0)
}

func (c *MakePeace) Undo(ctx *sim.Context) error {
	return command.ErrUndoUnsupported
}

func (c *MakePeace) EncodePayload() []byte { return encodePair(c.Prio, c.A, c.B) }

func decodeMakePeace(payload []byte) (command.Command, error) {
	prio, a, b, err := decodePair(payload)
	if err != nil {
		return nil, err
	}
	cmd := NewMakePeace(a, b)
	cmd.Prio = prio
	return cmd, nil
}

// FormAlliance allies two countries. Supports undo.
type FormAlliance struct {
	A, B world.ID
	Prio int

	executed bool
}

// NewFormAlliance builds the command with the diplomacy priority.
func NewFormAlliance(a, b world.ID) *FormAlliance {
	return &FormAlliance{A: a, B: b, Prio: PriorityDiplomacy}
}

func (c *FormAlliance) Kind() command.Kind { return KindFormAlliance }
func (c *FormAlliance) Priority() int      { return c.Prio }

func (c *FormAlliance) Validate(ctx *sim.Context) error {
	store, _, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return err
	}
	if store.AtWar(c.A, c.B) {
		return command.Rejectf(CodeAtWar, "countries %d and %d are at war", c.A, c.B)
	}
	if store.Allied(c.A, c.B) {
		return command.Rejectf(CodeAlreadyAllied, "countries %d and %d are already allied", c.A, c.B)
	}
	return nil
}

func (c *FormAlliance) Execute(ctx *sim.Context) {
	store, pair, _ := validatePair(ctx, c.A, c.B)
	c.executed = true
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, flags|FlagAlliance)
	store.emit(event.KindAllianceFormed, pair, 0, 1)
}

func (c *FormAlliance) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo form_alliance: command was not executed")
	}
	store, pair, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return fmt.Errorf("undo form_alliance: %w", err)
	}
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, flags&^FlagAlliance)
	c.executed = false
	return nil
}

func (c *FormAlliance) EncodePayload() []byte { return encodePair(c.Prio, c.A, c.B) }

func decodeFormAlliance(payload []byte) (command.Command, error) {
	prio, a, b, err := decodePair(payload)
	if err != nil {
		return nil, err
	}
	cmd := NewFormAlliance(a, b)
	cmd.Prio = prio
	return cmd, nil
}

// BreakAlliance dissolves an alliance. Supports undo.
type BreakAlliance struct {
	A, B world.ID
	Prio int

	executed bool
}

// NewBreakAlliance builds the command with the diplomacy priority.
func NewBreakAlliance(a, b world.ID) *BreakAlliance {
	return &BreakAlliance{A: a, B: b, Prio: PriorityDiplomacy}
}

func (c *BreakAlliance) Kind() command.Kind { return KindBreakAlliance }
func (c *BreakAlliance) Priority() int      { return c.Prio }

func (c *BreakAlliance) Validate(ctx *sim.Context) error {
	store, _, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return err
	}
	if !store.Allied(c.A, c.B) {
		return command.Rejectf(CodeNotAllied, "countries %d and %d are not allied", c.A, c.B)
	}
	return nil
}

func (c *BreakAlliance) Execute(ctx *sim.Context) {
	store, pair, _ := validatePair(ctx, c.A, c.B)
	c.executed = true
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, flags&^FlagAlliance)
	store.emit(event.KindAllianceBroken, pair, 1, 0)
}

func (c *BreakAlliance) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo break_alliance: command was not executed")
	}
	store, pair, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return fmt.Errorf("undo break_alliance: %w", err)
	}
	flags := store.flags[store.relationFor(pair)]
	store.setFlags(pair, flags|FlagAlliance)
	c.executed = false
	return nil
}

func (c *BreakAlliance) EncodePayload() []byte { return encodePair(c.Prio, c.A, c.B) }

func decodeBreakAlliance(payload []byte) (command.Command, error) {
	prio, a, b, err := decodePair(payload)
	if err != nil {
		return nil, err
	}
	cmd := NewBreakAlliance(a, b)
	cmd.Prio = prio
	return cmd, nil
}

// AddOpinion attaches an opinion modifier to a pair. The applied tick is
// part of the command (network submitters stamp it), and a tick in the
// future is rejected at validation rather than clamped: clock skew is the
// submitter's problem, not a silent state divergence. Supports undo.
type AddOpinion struct {
	A, B        world.ID
	Type        uint16
	Value       fixed.Fixed
	AppliedTick uint32
	DecayRate   uint32
	Prio        int

	executed bool
}

// NewAddOpinion builds the command, stamping AppliedTick with now.
func NewAddOpinion(a, b world.ID, typ uint16, value fixed.Fixed, appliedTick, decayRate uint32) *AddOpinion {
	return &AddOpinion{
		A: a, B: b,
		Type:        typ,
		Value:       value,
		AppliedTick: appliedTick,
		DecayRate:   decayRate,
		Prio:        PriorityDiplomacy,
	}
}

func (c *AddOpinion) Kind() command.Kind { return KindAddOpinion }
func (c *AddOpinion) Priority() int      { return c.Prio }

func (c *AddOpinion) Validate(ctx *sim.Context) error {
	_, _, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return err
	}
	if c.Value.IsZero() {
		return command.Rejectf(command.CodeBadArgument, "zero-value modifier")
	}
	if c.AppliedTick > ctx.Tick() {
		return command.Rejectf(CodeFutureTick,
			"modifier applied at tick %d but current tick is %d", c.AppliedTick, ctx.Tick())
	}
	return nil
}

func (c *AddOpinion) Execute(ctx *sim.Context) {
	store, pair, _ := validatePair(ctx, c.A, c.B)
	c.executed = true
	store.addModifier(pair, Modifier{
		Type:        c.Type,
		Value:       c.Value,
		AppliedTick: c.AppliedTick,
		DecayRate:   c.DecayRate,
	})
	store.emit(event.KindOpinionModifierAdded, pair, 0, c.Value.Raw())
}

func (c *AddOpinion) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo add_opinion: command was not executed")
	}
	store, pair, err := validatePair(ctx, c.A, c.B)
	if err != nil {
		return fmt.Errorf("undo add_opinion: %w", err)
	}
	if !store.removeLastModifier(pair, c.Type) {
		return fmt.Errorf("undo add_opinion: modifier type %d not found", c.Type)
	}
	c.executed = false
	return nil
}

func (c *AddOpinion) EncodePayload() []byte {
	buf := make([]byte, 24)
	command.EncodePriority(buf, c.Prio)
	binary.LittleEndian.PutUint16(buf[2:], uint16(c.A))
	binary.LittleEndian.PutUint16(buf[4:], uint16(c.B))
	binary.LittleEndian.PutUint16(buf[6:], c.Type)
	binary.LittleEndian.PutUint64(buf[8:], uint64(c.Value.Raw()))
	binary.LittleEndian.PutUint32(buf[16:], c.AppliedTick)
	binary.LittleEndian.PutUint32(buf[20:], c.DecayRate)
	return buf
}

func decodeAddOpinion(payload []byte) (command.Command, error) {
	if len(payload) != 24 {
		return nil, fmt.Errorf("payload is %d bytes, want 24", len(payload))
	}
	cmd := NewAddOpinion(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		world.ID(binary.LittleEndian.Uint16(payload[4:])),
		binary.LittleEndian.Uint16(payload[6:]),
		fixed.FromRaw(int64(binary.LittleEndian.Uint64(payload[8:]))),
		binary.LittleEndian.Uint32(payload[16:]),
		binary.LittleEndian.Uint32(payload[20:]),
	)
	cmd.Prio = command.DecodePriority(payload)
	return cmd, nil
}
