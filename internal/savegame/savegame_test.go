package savegame

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmacphail/suzerain/internal/command"
	"github.com/tmacphail/suzerain/internal/fixed"
	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// createTestStore creates a file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newSimContext builds a small finalized context matching a fixed test
// scenario: countries 7 and 2, provinces 5 and 6.
func newSimContext(t *testing.T) *sim.Context {
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

// playTestSession runs a short deterministic playthrough and returns its
// pipeline and context.
func playTestSession(t *testing.T) (*command.Pipeline, *sim.Context) {
	t.Helper()
	simctx := newSimContext(t)
	p, err := command.NewPipeline(simctx)
	require.NoError(t, err)

	require.NoError(t, p.Submit(command.NewChangeOwner(5, 7)))
	require.NoError(t, p.Submit(command.NewAdjustTreasury(7, fixed.FromInt(-25))))
	p.EndTick()
	p.EndTick()
	require.NoError(t, p.Submit(command.NewTransferProvinces(7, 2, []world.ID{5})))
	p.EndTick()
	return p, simctx
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s2.verifyPragma("foreign_keys", "1"))
}

func TestCreateSession_TokensSortByCreation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].Token, "UUIDv7 tokens list in creation order")
	assert.Equal(t, "grand_campaign", sessions[0].Scenario)
}

func TestGetSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSession(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendLog_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, _ := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))

	got, err := s.ReadLog(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.Log(), got)

	sess, err := s.GetSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), sess.LastTick)

	lastSeq, err := s.LastSeq(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.Log()[len(p.Log())-1].Seq, lastSeq)
}

func TestAppendLog_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, _ := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)

	// Write the same batch twice, as a retry after a crash would.
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))

	got, err := s.ReadLog(ctx, token)
	require.NoError(t, err)
	assert.Len(t, got, len(p.Log()))
}

func TestAppendLog_EmptyBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, token, nil))

	got, err := s.ReadLog(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_ReplaysAndVerifiesDigest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, simctx := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.Checkpoint(ctx, token, p, simctx))

	fresh := newSimContext(t)
	loaded, result, err := s.Load(ctx, token, fresh)
	require.NoError(t, err)

	assert.Equal(t, len(p.Log()), result.Replayed)
	assert.Equal(t, simctx.Digest(), result.Digest)
	assert.True(t, result.DigestVerified)
	assert.Equal(t, world.ID(2), fresh.Provinces.Owner(5))

	// The clock resumed past the persisted seqs: new commands append
	// cleanly after another checkpoint.
	require.NoError(t, loaded.Submit(command.NewSetController(6, 7)))
	loaded.EndTick()
	require.NoError(t, s.Checkpoint(ctx, token, loaded, fresh))

	entries, err := s.ReadLog(ctx, token)
	require.NoError(t, err)
	assert.Len(t, entries, len(p.Log())+1)
}

func TestLoad_DigestMismatchFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, simctx := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))
	require.NoError(t, s.WriteDigest(ctx, token, simctx.Tick(), "deadbeef"))

	_, _, err = s.Load(ctx, token, newSimContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestLoad_NoCheckpointSkipsVerification(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, _ := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))

	_, result, err := s.Load(ctx, token, newSimContext(t))
	require.NoError(t, err)
	assert.False(t, result.DigestVerified)
}

func TestExportImport_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	p, _ := playTestSession(t)

	token, err := s.CreateSession(ctx, "grand_campaign")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, token, p.Log()))

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, token, &buf))

	imported, err := s.Import(ctx, &buf)
	require.NoError(t, err)
	assert.NotEqual(t, token, imported)

	sess, err := s.GetSession(ctx, imported)
	require.NoError(t, err)
	assert.Equal(t, "grand_campaign", sess.Scenario)

	got, err := s.ReadLog(ctx, imported)
	require.NoError(t, err)
	assert.Equal(t, p.Log(), got)
}

func TestImport_RejectsGarbage(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Import(context.Background(), bytes.NewReader([]byte("not a save file")))
	assert.Error(t, err)
}

// compressFrame wraps a raw frame in the zstd stream Import expects.
func compressFrame(t *testing.T, frame []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(frame)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImport_RejectsCorruptedCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	header := func() *bytes.Buffer {
		var frame bytes.Buffer
		frame.WriteString("SZSV")
		require.NoError(t, binary.Write(&frame, binary.LittleEndian, uint16(1)))
		require.NoError(t, binary.Write(&frame, binary.LittleEndian, uint16(0))) // empty scenario name
		return &frame
	}

	t.Run("entry count past end of stream", func(t *testing.T) {
		frame := header()
		require.NoError(t, binary.Write(frame, binary.LittleEndian, uint32(0xFFFFFFFF)))

		_, err := s.Import(ctx, bytes.NewReader(compressFrame(t, frame.Bytes())))
		assert.Error(t, err, "a 12-byte header must not buy a multi-gigabyte log")
	})

	t.Run("oversized payload length", func(t *testing.T) {
		frame := header()
		require.NoError(t, binary.Write(frame, binary.LittleEndian, uint32(1)))
		require.NoError(t, binary.Write(frame, binary.LittleEndian, uint32(0)))  // tick
		require.NoError(t, binary.Write(frame, binary.LittleEndian, int64(1)))  // seq
		require.NoError(t, binary.Write(frame, binary.LittleEndian, uint16(1))) // kind
		require.NoError(t, binary.Write(frame, binary.LittleEndian, uint32(0xFFFFFFF0)))

		_, err := s.Import(ctx, bytes.NewReader(compressFrame(t, frame.Bytes())))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "payload")
	})
}
