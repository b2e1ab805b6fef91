package command

import (
	"encoding/binary"
	"fmt"

	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

func init() {
	Register(KindChangeOwner, "change_owner", decodeChangeOwner)
	Register(KindSetController, "set_controller", decodeSetController)
	Register(KindSetDevelopment, "set_development", decodeSetDevelopment)
	Register(KindConstructBuilding, "construct_building", decodeConstructBuilding)
	Register(KindTransferProvinces, "transfer_provinces", decodeTransferProvinces)
	Register(KindAdjustTreasury, "adjust_treasury", decodeAdjustTreasury)
}

// ChangeOwner transfers a province to a new owner, taking control along
// with ownership. Supports undo.
type ChangeOwner struct {
	Province world.ID
	NewOwner world.ID
	Prio     int

	// Undo snapshot, captured during Execute. Never serialized.
	prevOwner      world.ID
	prevController world.ID
	executed       bool
}

// NewChangeOwner builds the command with the ownership-class priority.
func NewChangeOwner(province, newOwner world.ID) *ChangeOwner {
	return &ChangeOwner{Province: province, NewOwner: newOwner, Prio: PriorityOwnership}
}

func (c *ChangeOwner) Kind() Kind    { return KindChangeOwner }
func (c *ChangeOwner) Priority() int { return c.Prio }

func (c *ChangeOwner) Validate(ctx *sim.Context) error {
	if !ctx.Provinces.Has(c.Province) {
		return Rejectf(CodeUnknownProvince, "province %d does not exist", c.Province)
	}
	if c.NewOwner != world.None && !ctx.Countries.Has(c.NewOwner) {
		return Rejectf(CodeUnknownCountry, "country %d does not exist", c.NewOwner)
	}
	if ctx.Provinces.Owner(c.Province) == c.NewOwner {
		return Rejectf(CodeNoChange, "province %d already owned by %d", c.Province, c.NewOwner)
	}
	return nil
}

func (c *ChangeOwner) Execute(ctx *sim.Context) {
	c.prevOwner = ctx.Provinces.Owner(c.Province)
	c.prevController = ctx.Provinces.Controller(c.Province)
	c.executed = true

	ctx.Provinces.SetOwner(c.Province, c.NewOwner)
	ctx.Provinces.SetController(c.Province, c.NewOwner)
	ctx.Provinces.AppendHistory(c.Province, world.OwnerChange{
		Tick: ctx.Tick(),
		From: c.prevOwner,
		To:   c.NewOwner,
	})
}

func (c *ChangeOwner) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo change_owner: command was not executed")
	}
	ctx.Provinces.TruncateHistory(c.Province, 1)
	ctx.Provinces.SetController(c.Province, c.prevController)
	ctx.Provinces.SetOwner(c.Province, c.prevOwner)
	c.executed = false
	return nil
}

func (c *ChangeOwner) EncodePayload() []byte {
	b := make([]byte, 6)
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.Province))
	binary.LittleEndian.PutUint16(b[4:], uint16(c.NewOwner))
	return b
}

func decodeChangeOwner(payload []byte) (Command, error) {
	if len(payload) != 6 {
		return nil, fmt.Errorf("payload is %d bytes, want 6", len(payload))
	}
	cmd := NewChangeOwner(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		world.ID(binary.LittleEndian.Uint16(payload[4:])),
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}

// SetController changes military control without changing ownership
// (occupation). Supports undo.
type SetController struct {
	Province      world.ID
	NewController world.ID
	Prio          int

	prevController world.ID
	executed       bool
}

// NewSetController builds the command with the ownership-class priority.
func NewSetController(province, controller world.ID) *SetController {
	return &SetController{Province: province, NewController: controller, Prio: PriorityOwnership}
}

func (c *SetController) Kind() Kind    { return KindSetController }
func (c *SetController) Priority() int { return c.Prio }

func (c *SetController) Validate(ctx *sim.Context) error {
	if !ctx.Provinces.Has(c.Province) {
		return Rejectf(CodeUnknownProvince, "province %d does not exist", c.Province)
	}
	if c.NewController != world.None && !ctx.Countries.Has(c.NewController) {
		return Rejectf(CodeUnknownCountry, "country %d does not exist", c.NewController)
	}
	if ctx.Provinces.Controller(c.Province) == c.NewController {
		return Rejectf(CodeNoChange, "province %d already controlled by %d", c.Province, c.NewController)
	}
	return nil
}

func (c *SetController) Execute(ctx *sim.Context) {
	c.prevController = ctx.Provinces.Controller(c.Province)
	c.executed = true
	ctx.Provinces.SetController(c.Province, c.NewController)
}

func (c *SetController) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo set_controller: command was not executed")
	}
	ctx.Provinces.SetController(c.Province, c.prevController)
	c.executed = false
	return nil
}

func (c *SetController) EncodePayload() []byte {
	b := make([]byte, 6)
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.Province))
	binary.LittleEndian.PutUint16(b[4:], uint16(c.NewController))
	return b
}

func decodeSetController(payload []byte) (Command, error) {
	if len(payload) != 6 {
		return nil, fmt.Errorf("payload is %d bytes, want 6", len(payload))
	}
	cmd := NewSetController(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		world.ID(binary.LittleEndian.Uint16(payload[4:])),
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}

// SetDevelopment sets a province's development to an absolute value.
// Supports undo.
type SetDevelopment struct {
	Province world.ID
	Value    fixed.Fixed
	Prio     int

	prevValue fixed.Fixed
	executed  bool
}

// NewSetDevelopment builds the command with the economy-class priority.
func NewSetDevelopment(province world.ID, value fixed.Fixed) *SetDevelopment {
	return &SetDevelopment{Province: province, Value: value, Prio: PriorityEconomy}
}

func (c *SetDevelopment) Kind() Kind    { return KindSetDevelopment }
func (c *SetDevelopment) Priority() int { return c.Prio }

func (c *SetDevelopment) Validate(ctx *sim.Context) error {
	if !ctx.Provinces.Has(c.Province) {
		return Rejectf(CodeUnknownProvince, "province %d does not exist", c.Province)
	}
	if c.Value.Cmp(fixed.Zero) < 0 {
		return Rejectf(CodeBadArgument, "development cannot be negative")
	}
	if ctx.Provinces.Development(c.Province) == c.Value {
		return Rejectf(CodeNoChange, "development already %s", c.Value)
	}
	return nil
}

func (c *SetDevelopment) Execute(ctx *sim.Context) {
	c.prevValue = ctx.Provinces.Development(c.Province)
	c.executed = true
	ctx.Provinces.SetDevelopment(c.Province, c.Value)
}

func (c *SetDevelopment) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo set_development: command was not executed")
	}
	ctx.Provinces.SetDevelopment(c.Province, c.prevValue)
	c.executed = false
	return nil
}

func (c *SetDevelopment) EncodePayload() []byte {
	b := make([]byte, 12)
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.Province))
	binary.LittleEndian.PutUint64(b[4:], uint64(c.Value.Raw()))
	return b
}

func decodeSetDevelopment(payload []byte) (Command, error) {
	if len(payload) != 12 {
		return nil, fmt.Errorf("payload is %d bytes, want 12", len(payload))
	}
	cmd := NewSetDevelopment(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		fixed.FromRaw(int64(binary.LittleEndian.Uint64(payload[4:]))),
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}

// ConstructBuilding places a building code into an empty slot. Supports
// undo. What the building does is rule logic layered above the kernel;
// here a building is just a code in a fixed slot.
type ConstructBuilding struct {
	Province world.ID
	Slot     uint8
	Building uint8
	Prio     int

	executed bool
}

// NewConstructBuilding builds the command with the economy-class priority.
func NewConstructBuilding(province world.ID, slot, building uint8) *ConstructBuilding {
	return &ConstructBuilding{Province: province, Slot: slot, Building: building, Prio: PriorityEconomy}
}

func (c *ConstructBuilding) Kind() Kind    { return KindConstructBuilding }
func (c *ConstructBuilding) Priority() int { return c.Prio }

func (c *ConstructBuilding) Validate(ctx *sim.Context) error {
	if !ctx.Provinces.Has(c.Province) {
		return Rejectf(CodeUnknownProvince, "province %d does not exist", c.Province)
	}
	if int(c.Slot) >= world.BuildingSlots {
		return Rejectf(CodeSlotInvalid, "slot %d out of range (max %d)", c.Slot, world.BuildingSlots-1)
	}
	if c.Building == 0 {
		return Rejectf(CodeBadArgument, "building code 0 means empty")
	}
	if ctx.Provinces.Building(c.Province, int(c.Slot)) != 0 {
		return Rejectf(CodeSlotOccupied, "slot %d already occupied", c.Slot)
	}
	return nil
}

func (c *ConstructBuilding) Execute(ctx *sim.Context) {
	c.executed = true
	ctx.Provinces.PlaceBuilding(c.Province, int(c.Slot), c.Building)
}

func (c *ConstructBuilding) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo construct_building: command was not executed")
	}
	// Validate guaranteed the slot was empty before.
	ctx.Provinces.PlaceBuilding(c.Province, int(c.Slot), 0)
	c.executed = false
	return nil
}

func (c *ConstructBuilding) EncodePayload() []byte {
	b := make([]byte, 6)
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.Province))
	b[4] = c.Slot
	b[5] = c.Building
	return b
}

func decodeConstructBuilding(payload []byte) (Command, error) {
	if len(payload) != 6 {
		return nil, fmt.Errorf("payload is %d bytes, want 6", len(payload))
	}
	cmd := NewConstructBuilding(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		payload[4],
		payload[5],
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}

// TransferProvinces moves a batch of provinces from one owner to another.
// The whole batch validates before any province changes hands: either all
// targets transfer or none do. Supports undo.
type TransferProvinces struct {
	From      world.ID
	To        world.ID
	Provinces []world.ID
	Prio      int

	prevControllers []world.ID
	executed        bool
}

// NewTransferProvinces builds the command with the ownership-class
// priority.
func NewTransferProvinces(from, to world.ID, provinces []world.ID) *TransferProvinces {
	return &TransferProvinces{From: from, To: to, Provinces: provinces, Prio: PriorityOwnership}
}

func (c *TransferProvinces) Kind() Kind    { return KindTransferProvinces }
func (c *TransferProvinces) Priority() int { return c.Prio }

func (c *TransferProvinces) Validate(ctx *sim.Context) error {
	if len(c.Provinces) == 0 {
		return Rejectf(CodeBadArgument, "empty province list")
	}
	if c.From == c.To {
		return Rejectf(CodeNoChange, "transfer from %d to itself", c.From)
	}
	if c.From != world.None && !ctx.Countries.Has(c.From) {
		return Rejectf(CodeUnknownCountry, "country %d does not exist", c.From)
	}
	if c.To != world.None && !ctx.Countries.Has(c.To) {
		return Rejectf(CodeUnknownCountry, "country %d does not exist", c.To)
	}
	seen := make(map[world.ID]bool, len(c.Provinces))
	for _, p := range c.Provinces {
		if seen[p] {
			return Rejectf(CodeBadArgument, "province %d listed twice", p)
		}
		seen[p] = true
		if !ctx.Provinces.Has(p) {
			return Rejectf(CodeUnknownProvince, "province %d does not exist", p)
		}
		if ctx.Provinces.Owner(p) != c.From {
			return Rejectf(CodeNotOwner, "province %d is not owned by %d", p, c.From)
		}
	}
	return nil
}

func (c *TransferProvinces) Execute(ctx *sim.Context) {
	c.prevControllers = make([]world.ID, len(c.Provinces))
	c.executed = true
	for i, p := range c.Provinces {
		c.prevControllers[i] = ctx.Provinces.Controller(p)
		ctx.Provinces.SetOwner(p, c.To)
		ctx.Provinces.SetController(p, c.To)
		ctx.Provinces.AppendHistory(p, world.OwnerChange{
			Tick: ctx.Tick(),
			From: c.From,
			To:   c.To,
		})
	}
}

func (c *TransferProvinces) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo transfer_provinces: command was not executed")
	}
	for i := len(c.Provinces) - 1; i >= 0; i-- {
		p := c.Provinces[i]
		ctx.Provinces.TruncateHistory(p, 1)
		ctx.Provinces.SetController(p, c.prevControllers[i])
		ctx.Provinces.SetOwner(p, c.From)
	}
	c.executed = false
	return nil
}

func (c *TransferProvinces) EncodePayload() []byte {
	b := make([]byte, 8+2*len(c.Provinces))
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.From))
	binary.LittleEndian.PutUint16(b[4:], uint16(c.To))
	binary.LittleEndian.PutUint16(b[6:], uint16(len(c.Provinces)))
	for i, p := range c.Provinces {
		binary.LittleEndian.PutUint16(b[8+2*i:], uint16(p))
	}
	return b
}

func decodeTransferProvinces(payload []byte) (Command, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("payload is %d bytes, want at least 8", len(payload))
	}
	n := int(binary.LittleEndian.Uint16(payload[6:]))
	if len(payload) != 8+2*n {
		return nil, fmt.Errorf("payload is %d bytes, want %d for %d provinces", len(payload), 8+2*n, n)
	}
	provinces := make([]world.ID, n)
	for i := range provinces {
		provinces[i] = world.ID(binary.LittleEndian.Uint16(payload[8+2*i:]))
	}
	cmd := NewTransferProvinces(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		world.ID(binary.LittleEndian.Uint16(payload[4:])),
		provinces,
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}

// AdjustTreasury credits or debits a country's treasury. A debit past
// zero is the textbook routine rejection ("not enough gold"). Supports
// undo.
type AdjustTreasury struct {
	Country world.ID
	Delta   fixed.Fixed
	Prio    int

	prevBalance fixed.Fixed
	executed    bool
}

// NewAdjustTreasury builds the command with the economy-class priority.
func NewAdjustTreasury(country world.ID, delta fixed.Fixed) *AdjustTreasury {
	return &AdjustTreasury{Country: country, Delta: delta, Prio: PriorityEconomy}
}

func (c *AdjustTreasury) Kind() Kind    { return KindAdjustTreasury }
func (c *AdjustTreasury) Priority() int { return c.Prio }

func (c *AdjustTreasury) Validate(ctx *sim.Context) error {
	if !ctx.Countries.Has(c.Country) {
		return Rejectf(CodeUnknownCountry, "country %d does not exist", c.Country)
	}
	if c.Delta.IsZero() {
		return Rejectf(CodeNoChange, "zero adjustment")
	}
	if balance := ctx.Countries.Treasury(c.Country); balance.Add(c.Delta).Cmp(fixed.Zero) < 0 {
		return Rejectf(CodeInsufficient, "not enough gold: have %s, need %s", balance, c.Delta.Neg())
	}
	return nil
}

func (c *AdjustTreasury) Execute(ctx *sim.Context) {
	c.prevBalance = ctx.Countries.Treasury(c.Country)
	c.executed = true
	ctx.Countries.SetTreasury(c.Country, c.prevBalance.Add(c.Delta))
}

func (c *AdjustTreasury) Undo(ctx *sim.Context) error {
	if !c.executed {
		return fmt.Errorf("undo adjust_treasury: command was not executed")
	}
	ctx.Countries.SetTreasury(c.Country, c.prevBalance)
	c.executed = false
	return nil
}

func (c *AdjustTreasury) EncodePayload() []byte {
	b := make([]byte, 12)
	EncodePriority(b, c.Prio)
	binary.LittleEndian.PutUint16(b[2:], uint16(c.Country))
	binary.LittleEndian.PutUint64(b[4:], uint64(c.Delta.Raw()))
	return b
}

func decodeAdjustTreasury(payload []byte) (Command, error) {
	if len(payload) != 12 {
		return nil, fmt.Errorf("payload is %d bytes, want 12", len(payload))
	}
	cmd := NewAdjustTreasury(
		world.ID(binary.LittleEndian.Uint16(payload[2:])),
		fixed.FromRaw(int64(binary.LittleEndian.Uint64(payload[4:]))),
	)
	cmd.Prio = DecodePriority(payload)
	return cmd, nil
}
