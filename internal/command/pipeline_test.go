package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// newTestContext builds a finalized context with country 7 (RED), country
// 2 (BLU), and provinces 5 and 6 (unowned).
func newTestContext(t *testing.T) *sim.Context {
	t.Helper()
	ctx, err := sim.NewContext(sim.Config{
		ProvinceCapacity: 10,
		CountryCapacity:  10,
		EventCapacity:    256,
	})
	require.NoError(t, err)

	red, err := world.ParseTag("RED")
	require.NoError(t, err)
	blu, err := world.ParseTag("BLU")
	require.NoError(t, err)
	require.NoError(t, ctx.Countries.Add(7, world.CountryHot{Tag: red, Treasury: fixed.FromInt(100)}, world.CountryWarm{}))
	require.NoError(t, ctx.Countries.Add(2, world.CountryHot{Tag: blu, Treasury: fixed.FromInt(100)}, world.CountryWarm{}))

	require.NoError(t, ctx.Provinces.Add(5, world.ProvinceHot{Terrain: world.TerrainPlains}, world.ProvinceWarm{}))
	require.NoError(t, ctx.Provinces.Add(6, world.ProvinceHot{Terrain: world.TerrainHills}, world.ProvinceWarm{}))

	require.NoError(t, ctx.Finalize())
	return ctx
}

func newTestPipeline(t *testing.T) (*Pipeline, *sim.Context) {
	t.Helper()
	ctx := newTestContext(t)
	p, err := NewPipeline(ctx)
	require.NoError(t, err)
	return p, ctx
}

func TestNewPipeline_RequiresFinalizedContext(t *testing.T) {
	ctx, err := sim.NewContext(sim.Config{ProvinceCapacity: 4, CountryCapacity: 4, EventCapacity: 16})
	require.NoError(t, err)

	_, err = NewPipeline(ctx)
	assert.Error(t, err)
}

func TestPipeline_ChangeOwnerScenario(t *testing.T) {
	p, ctx := newTestPipeline(t)

	var got []event.Event
	_, err := ctx.Bus.Subscribe(event.KindProvinceOwnerChanged, func(e event.Event) {
		got = append(got, e)
	})
	require.NoError(t, err)

	require.NoError(t, p.Submit(NewChangeOwner(5, 7)))
	report := p.EndTick()

	assert.Equal(t, 1, report.Executed)
	assert.Empty(t, report.Rejected)
	assert.Equal(t, world.ID(7), ctx.Provinces.Owner(5))
	require.Len(t, got, 1, "exactly one ownership-changed event")
	assert.Equal(t, uint16(5), got[0].A)
	assert.Equal(t, int64(0), got[0].Old)
	assert.Equal(t, int64(7), got[0].New)
}

func TestPipeline_RejectedCommandLeavesStateUntouched(t *testing.T) {
	p, ctx := newTestPipeline(t)

	before := ctx.Digest()
	err := p.Submit(NewChangeOwner(9999, 7))

	var reject *RejectError
	require.ErrorAs(t, err, &reject)
	assert.Equal(t, CodeUnknownProvince, reject.Code)
	assert.NotEmpty(t, reject.Reason, "rejections carry a tooltip-ready reason")

	p.EndTick()
	assert.Equal(t, before, ctx.Digest(), "rejected command never partially applies")
	assert.Empty(t, p.Log())
}

func TestPipeline_PriorityOrderWithinTick(t *testing.T) {
	p, ctx := newTestPipeline(t)

	// Same target, priorities 100 and 50: the priority-100 command's
	// effects must be visible when the priority-50 command revalidates.
	first := NewChangeOwner(5, 7) // priority 100
	second := NewChangeOwner(5, 7)
	second.Prio = 50

	// Submit in reverse priority order; sorting must fix it.
	require.NoError(t, p.Submit(second))
	require.NoError(t, p.Submit(first))

	report := p.EndTick()
	assert.Equal(t, 1, report.Executed)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, KindChangeOwner, report.Rejected[0].Kind)
	assert.Contains(t, report.Rejected[0].Reason, "already owned")
	assert.Equal(t, world.ID(7), ctx.Provinces.Owner(5))
	assert.Len(t, p.Log(), 1, "only the executed command enters the log")
}

func TestPipeline_EqualPriorityBreaksBySubmissionOrder(t *testing.T) {
	p, ctx := newTestPipeline(t)

	a := NewChangeOwner(5, 7)
	b := NewChangeOwner(5, 2)
	require.NoError(t, p.Submit(a))
	require.NoError(t, p.Submit(b))

	report := p.EndTick()
	// a runs first (earlier submission), b then runs and changes 7 -> 2.
	assert.Equal(t, 2, report.Executed)
	assert.Equal(t, world.ID(2), ctx.Provinces.Owner(5))

	log := p.Log()
	require.Len(t, log, 2)
	assert.Less(t, log[0].Seq, log[1].Seq)
}

func TestPipeline_EventsDrainedBetweenCommands(t *testing.T) {
	p, ctx := newTestPipeline(t)

	var sequence []string
	_, _ = ctx.Bus.Subscribe(event.KindProvinceOwnerChanged, func(e event.Event) {
		sequence = append(sequence, "event")
	})

	require.NoError(t, p.Submit(NewChangeOwner(5, 7)))
	require.NoError(t, p.Submit(NewChangeOwner(6, 7)))
	report := p.EndTick()

	// Two commands, each followed by its own drain: owner + controller
	// events per command are delivered before the next command runs.
	assert.Equal(t, 2, report.Executed)
	assert.Len(t, sequence, 2)
	assert.Equal(t, 0, ctx.Bus.Pending())
}

func TestPipeline_TickAdvances(t *testing.T) {
	p, ctx := newTestPipeline(t)

	assert.Equal(t, uint32(0), ctx.Tick())
	p.EndTick()
	p.EndTick()
	assert.Equal(t, uint32(2), ctx.Tick())
}

func TestPipeline_LogEntriesCarryTickAndPayload(t *testing.T) {
	p, _ := newTestPipeline(t)

	p.EndTick() // tick 0 empty
	require.NoError(t, p.Submit(NewChangeOwner(5, 7)))
	p.EndTick()

	log := p.Log()
	require.Len(t, log, 1)
	assert.Equal(t, uint32(1), log[0].Tick)
	assert.Equal(t, KindChangeOwner, log[0].Kind)
	assert.Equal(t, NewChangeOwner(5, 7).EncodePayload(), log[0].Payload)
}

func TestPipeline_ReplayReproducesDigest(t *testing.T) {
	p, ctx := newTestPipeline(t)

	require.NoError(t, p.Submit(NewChangeOwner(5, 7)))
	require.NoError(t, p.Submit(NewAdjustTreasury(7, fixed.FromInt(-30))))
	p.EndTick()
	p.EndTick() // an empty tick in the middle
	require.NoError(t, p.Submit(NewTransferProvinces(7, 2, []world.ID{5})))
	require.NoError(t, p.Submit(NewSetDevelopment(6, fixed.FromInt(3))))
	p.EndTick()

	want := ctx.Digest()

	fresh, err := NewPipeline(newTestContext(t))
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(p.Log()))

	// Field-for-field equality via the canonical digest: hot, warm, and
	// command-produced history all converge.
	assert.Equal(t, want, fresh.ctx.Digest())
	assert.Equal(t, ctx.Tick(), fresh.ctx.Tick())
}

func TestPipeline_ReplayPreservesCallerPriority(t *testing.T) {
	p, ctx := newTestPipeline(t)

	// A caller-lowered priority inverts the same-tick order: the default
	// priority command runs first even though it was submitted second.
	demoted := NewChangeOwner(5, 7)
	demoted.Prio = 10
	require.NoError(t, p.Submit(demoted))
	require.NoError(t, p.Submit(NewChangeOwner(5, 2)))
	report := p.EndTick()

	require.Equal(t, 2, report.Executed)
	require.Equal(t, world.ID(7), ctx.Provinces.Owner(5), "demoted command runs last")
	want := ctx.Digest()

	fresh, err := NewPipeline(newTestContext(t))
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(p.Log()))

	assert.Equal(t, world.ID(7), fresh.ctx.Provinces.Owner(5))
	assert.Equal(t, want, fresh.ctx.Digest(), "decoded log re-sorts exactly as the original run")
}

func TestPipeline_ReplayRejectsUnknownKind(t *testing.T) {
	fresh, err := NewPipeline(newTestContext(t))
	require.NoError(t, err)

	err = fresh.Replay([]LogEntry{{Tick: 0, Seq: 1, Kind: Kind(9999), Payload: nil}})
	assert.Error(t, err)
}

func TestPipeline_SubmitNil(t *testing.T) {
	p, _ := newTestPipeline(t)
	assert.Error(t, p.Submit(nil))
}
