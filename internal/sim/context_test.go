package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmacphail/suzerain/internal/event"
	"github.com/tmacphail/suzerain/internal/world"
)

func testConfig() Config {
	return Config{ProvinceCapacity: 16, CountryCapacity: 8, EventCapacity: 64}
}

func TestNewContext(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)

	assert.Equal(t, uint32(0), ctx.Tick())
	assert.False(t, ctx.Finalized())
	assert.Equal(t, 0, ctx.Provinces.Len())
	assert.Equal(t, 0, ctx.Countries.Len())
}

func TestNewContext_BadCapacities(t *testing.T) {
	_, err := NewContext(Config{ProvinceCapacity: 0, CountryCapacity: 8, EventCapacity: 64})
	assert.Error(t, err)
	_, err = NewContext(Config{ProvinceCapacity: 16, CountryCapacity: 8, EventCapacity: 0})
	assert.Error(t, err)
}

func TestContext_FinalizeOnce(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)

	require.NoError(t, ctx.Finalize())
	assert.True(t, ctx.Finalized())
	assert.Error(t, ctx.Finalize(), "second finalize is a structural error")
}

func TestContext_FinalizeDiscardsLoadEvents(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)

	require.NoError(t, ctx.Provinces.Add(5, world.ProvinceHot{}, world.ProvinceWarm{}))
	ctx.Provinces.SetOwner(5, 7) // load-phase mutation queues an event

	fired := 0
	_, err = ctx.Bus.Subscribe(event.KindProvinceOwnerChanged, func(event.Event) { fired++ })
	require.NoError(t, err)

	require.NoError(t, ctx.Finalize())
	assert.Equal(t, 0, ctx.Bus.Pending())
	assert.Equal(t, 0, fired, "load-phase events are discarded, not delivered")
}

func TestContext_AdvanceTick(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)
	require.NoError(t, ctx.Finalize())

	ctx.AdvanceTick()
	ctx.AdvanceTick()
	assert.Equal(t, uint32(2), ctx.Tick())
}

type fakeSystem struct{ name string }

func (f *fakeSystem) SystemName() string { return f.name }

func TestContext_RegisterSystem(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)

	require.NoError(t, ctx.RegisterSystem(1, &fakeSystem{name: "diplomacy"}))

	sys, ok := ctx.System(1)
	require.True(t, ok)
	assert.Equal(t, "diplomacy", sys.SystemName())

	assert.Error(t, ctx.RegisterSystem(1, &fakeSystem{name: "economy"}), "duplicate id rejected")
	assert.Error(t, ctx.RegisterSystem(2, nil))

	_, ok = ctx.System(9)
	assert.False(t, ok)
}

func TestContext_DigestChangesWithState(t *testing.T) {
	ctx, err := NewContext(testConfig())
	require.NoError(t, err)
	require.NoError(t, ctx.Provinces.Add(5, world.ProvinceHot{}, world.ProvinceWarm{}))
	require.NoError(t, ctx.Finalize())

	before := ctx.Digest()
	ctx.Provinces.SetOwner(5, 7)
	assert.NotEqual(t, before, ctx.Digest())
}
