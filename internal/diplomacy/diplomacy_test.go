package diplomacy

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmacphail/suzerain/internal/command"
	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// newTestContext builds a finalized context with countries 1, 2, and 3 and
// a diplomacy store attached.
func newTestContext(t *testing.T) (*sim.Context, *Store) {
	t.Helper()
	ctx, err := sim.NewContext(sim.Config{
		ProvinceCapacity: 4,
		CountryCapacity:  8,
		EventCapacity:    256,
	})
	require.NoError(t, err)

	for i, name := range []string{"ONE", "TWO", "TRE"} {
		tag, err := world.ParseTag(name)
		require.NoError(t, err)
		require.NoError(t, ctx.Countries.Add(world.ID(i+1), world.CountryHot{Tag: tag}, world.CountryWarm{}))
	}

	store := NewStore(ctx.Bus, 16)
	require.NoError(t, store.Attach(ctx))
	require.NoError(t, ctx.Finalize())
	return ctx, store
}

func TestMakePair_Canonicalizes(t *testing.T) {
	ab, err := MakePair(2, 1)
	require.NoError(t, err)
	ba, err := MakePair(1, 2)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, world.ID(1), ab.Low)
	assert.Equal(t, world.ID(2), ab.High)

	_, err = MakePair(3, 3)
	assert.Error(t, err)
}

func TestModifier_Contribution(t *testing.T) {
	m := Modifier{Value: fixed.FromInt(50), AppliedTick: 0, DecayRate: 1500}

	cases := []struct {
		name string
		now  uint32
		want fixed.Fixed
	}{
		{"at application", 0, fixed.FromInt(50)},
		{"one third decayed", 500, fixed.FromRaw(33333)},
		{"two thirds decayed", 1000, fixed.FromRaw(16666)},
		{"fully decayed", 1500, fixed.Zero},
		{"past decay", 9000, fixed.Zero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Contribution(tc.now))
		})
	}
}

func TestModifier_Contribution_Permanent(t *testing.T) {
	m := Modifier{Value: fixed.FromInt(-20), AppliedTick: 100, DecayRate: 0}
	assert.Equal(t, fixed.FromInt(-20), m.Contribution(100))
	assert.Equal(t, fixed.FromInt(-20), m.Contribution(1_000_000))
}

func TestStore_OpinionDecayScenario(t *testing.T) {
	ctx, store := newTestContext(t)

	cmd := NewAddOpinion(1, 2, 7, fixed.FromInt(50), 0, 1500)
	require.NoError(t, cmd.Validate(ctx))
	cmd.Execute(ctx)
	ctx.Bus.Discard()

	assert.Equal(t, fixed.FromInt(50), store.Opinion(1, 2, 0))
	assert.Equal(t, fixed.Zero, store.Opinion(1, 2, 1500))
}

func TestStore_OpinionSumsModifiers(t *testing.T) {
	ctx, store := newTestContext(t)

	for _, m := range []*AddOpinion{
		NewAddOpinion(1, 2, 1, fixed.FromInt(50), 0, 1500),
		NewAddOpinion(1, 2, 2, fixed.FromInt(-20), 0, 0),
	} {
		require.NoError(t, m.Validate(ctx))
		m.Execute(ctx)
	}
	ctx.Bus.Discard()

	assert.Equal(t, fixed.FromInt(30), store.Opinion(1, 2, 0))
	assert.Equal(t, fixed.FromInt(-20), store.Opinion(1, 2, 1500), "only the permanent modifier survives")
	assert.Equal(t, fixed.Zero, store.Opinion(1, 3, 0), "untracked pair has neutral opinion")
}

func TestStore_QueryEvaluationIsPure(t *testing.T) {
	ctx, store := newTestContext(t)

	cmd := NewAddOpinion(1, 2, 7, fixed.FromInt(50), 0, 1500)
	require.NoError(t, cmd.Validate(ctx))
	cmd.Execute(ctx)
	ctx.Bus.Discard()

	before := ctx.Digest()
	first := store.Opinion(1, 2, 750)
	second := store.Opinion(1, 2, 750)
	assert.Equal(t, first, second)
	assert.Equal(t, before, ctx.Digest(), "evaluating opinion mutates nothing")
}

func TestDeclareWar_Lifecycle(t *testing.T) {
	ctx, store := newTestContext(t)

	var kinds []event.Kind
	for _, k := range []event.Kind{event.KindWarDeclared, event.KindPeaceMade} {
		_, err := ctx.Bus.Subscribe(k, func(e event.Event) { kinds = append(kinds, e.Kind) })
		require.NoError(t, err)
	}

	war := NewDeclareWar(1, 2)
	require.NoError(t, war.Validate(ctx))
	war.Execute(ctx)
	ctx.Bus.Drain()

	assert.True(t, store.AtWar(1, 2))
	assert.True(t, store.AtWar(2, 1), "war is symmetric")
	assert.False(t, store.AtWar(1, 3))

	assertRejectCode(t, NewDeclareWar(1, 2).Validate(ctx), CodeAlreadyAtWar)
	assertRejectCode(t, NewFormAlliance(1, 2).Validate(ctx), CodeAtWar)
	assert.ErrorIs(t, war.Undo(ctx), command.ErrUndoUnsupported)

	peace := NewMakePeace(1, 2)
	require.NoError(t, peace.Validate(ctx))
	peace.Execute(ctx)
	ctx.Bus.Drain()

	assert.False(t, store.AtWar(1, 2))
	assert.True(t, store.Flags(1, 2)&FlagTruce != 0, "peace leaves a truce")
	assert.Equal(t, []event.Kind{event.KindWarDeclared, event.KindPeaceMade}, kinds)
}

func TestDeclareWar_ClearsAllianceAndPact(t *testing.T) {
	ctx, store := newTestContext(t)

	ally := NewFormAlliance(1, 2)
	require.NoError(t, ally.Validate(ctx))
	ally.Execute(ctx)
	ctx.Bus.Discard()
	require.True(t, store.Allied(1, 2))

	war := NewDeclareWar(1, 2)
	require.NoError(t, war.Validate(ctx))
	war.Execute(ctx)
	ctx.Bus.Discard()

	assert.True(t, store.AtWar(1, 2))
	assert.False(t, store.Allied(1, 2), "war dissolves the alliance")
	assert.False(t, store.HasPact(1, 2))
}

func TestFormAlliance_UndoRestoresDigest(t *testing.T) {
	ctx, store := newTestContext(t)

	before := ctx.Digest()
	cmd := NewFormAlliance(1, 2)
	require.NoError(t, cmd.Validate(ctx))
	cmd.Execute(ctx)
	ctx.Bus.Discard()
	require.True(t, store.Allied(1, 2))
	assert.NotEqual(t, before, ctx.Digest())

	require.NoError(t, cmd.Undo(ctx))
	ctx.Bus.Discard()
	assert.False(t, store.Allied(1, 2))
	assert.Equal(t, before, ctx.Digest())
}

func TestAddOpinion_UndoRemovesModifier(t *testing.T) {
	ctx, store := newTestContext(t)

	before := ctx.Digest()
	cmd := NewAddOpinion(1, 2, 7, fixed.FromInt(50), 0, 1500)
	require.NoError(t, cmd.Validate(ctx))
	cmd.Execute(ctx)
	ctx.Bus.Discard()
	require.Len(t, store.Modifiers(1, 2), 1)

	require.NoError(t, cmd.Undo(ctx))
	ctx.Bus.Discard()
	assert.Empty(t, store.Modifiers(1, 2))
	assert.Equal(t, before, ctx.Digest())
}

func TestAddOpinion_RejectsFutureTick(t *testing.T) {
	ctx, _ := newTestContext(t)

	err := NewAddOpinion(1, 2, 7, fixed.FromInt(50), ctx.Tick()+5, 1500).Validate(ctx)
	assertRejectCode(t, err, CodeFutureTick)
}

func TestValidatePair_Rejections(t *testing.T) {
	ctx, _ := newTestContext(t)

	assertRejectCode(t, NewDeclareWar(1, 1).Validate(ctx), CodeSelfRelation)
	assertRejectCode(t, NewDeclareWar(1, 99).Validate(ctx), command.CodeUnknownCountry)
	assertRejectCode(t, NewDeclareWar(99, 2).Validate(ctx), command.CodeUnknownCountry)
}

func TestCommands_RoundTripThroughRegistry(t *testing.T) {
	reprioritized := NewMakePeace(2, 1)
	reprioritized.Prio = 10

	cmds := []command.Command{
		NewDeclareWar(1, 2),
		reprioritized,
		NewFormAlliance(1, 3),
		NewBreakAlliance(3, 1),
		NewAddOpinion(1, 2, 7, fixed.FromInt(-25), 40, 720),
	}
	for _, cmd := range cmds {
		decoded, err := command.Decode(cmd.Kind(), cmd.EncodePayload())
		require.NoError(t, err)
		assert.Equal(t, cmd.Kind(), decoded.Kind())
		assert.Equal(t, cmd.Priority(), decoded.Priority())
		assert.Equal(t, cmd.EncodePayload(), decoded.EncodePayload())
	}
}

func TestStore_DigestTracksState(t *testing.T) {
	_, a := newTestContext(t)
	_, b := newTestContext(t)

	assert.Equal(t, digestOf(a), digestOf(b), "empty stores agree")

	a.setFlags(mustPair(t, 1, 2), FlagWar)
	assert.NotEqual(t, digestOf(a), digestOf(b))

	b.setFlags(mustPair(t, 1, 2), FlagWar)
	assert.Equal(t, digestOf(a), digestOf(b))
}

func TestPipeline_DiplomacyCommandsReplay(t *testing.T) {
	ctx, _ := newTestContext(t)
	p, err := command.NewPipeline(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Submit(NewDeclareWar(1, 2)))
	require.NoError(t, p.Submit(NewFormAlliance(1, 3)))
	p.EndTick()
	require.NoError(t, p.Submit(NewAddOpinion(2, 3, 9, fixed.FromInt(15), 0, 300)))
	p.EndTick()

	want := ctx.Digest()

	freshCtx, freshStore := newTestContext(t)
	fresh, err := command.NewPipeline(freshCtx)
	require.NoError(t, err)
	require.NoError(t, fresh.Replay(p.Log()))

	assert.Equal(t, want, freshCtx.Digest())
	assert.True(t, freshStore.AtWar(1, 2))
}

func mustPair(t *testing.T, a, b world.ID) Pair {
	t.Helper()
	pair, err := MakePair(a, b)
	require.NoError(t, err)
	return pair
}

func digestOf(s *Store) string {
	h := sha256.New()
	s.DigestInto(h)
	return hex.EncodeToString(h.Sum(nil))
}

func assertRejectCode(t *testing.T, err error, code string) {
	t.Helper()
	var reject *command.RejectError
	require.ErrorAs(t, err, &reject)
	assert.Equal(t, code, reject.Code)
}
