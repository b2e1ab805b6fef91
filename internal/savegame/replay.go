package savegame

import (
	"context"
	"fmt"

	"github.com/tmacphail/suzerain/internal/command"
	"github.com/tmacphail/suzerain/internal/sim"
)

// LoadResult summarizes a session load.
type LoadResult struct {
	Session  Session
	Replayed int
	Digest   string
	// DigestVerified is true when a stored checkpoint existed at the
	// session's last tick and matched the replayed state.
	DigestVerified bool
}

// Load rebuilds a session onto a freshly loaded, finalized context: reads
// the persisted log, replays it through a new pipeline, resumes the
// submission clock past the persisted sequence numbers, and verifies the
// replayed state against the digest checkpoint at the session's last tick
// if one was written.
//
// The context must hold the same scenario state the session was created
// from; a digest mismatch means the scenario or the code changed since
// the save was written.
func (s *Store) Load(ctx context.Context, token string, simctx *sim.Context) (*command.Pipeline, LoadResult, error) {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}

	entries, err := s.ReadLog(ctx, token)
	if err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}

	pipeline, err := command.NewPipeline(simctx)
	if err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}
	if err := pipeline.Replay(entries); err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}

	lastSeq, err := s.LastSeq(ctx, token)
	if err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}
	pipeline.Clock().AdvanceTo(lastSeq)

	result := LoadResult{
		Session:  sess,
		Replayed: len(entries),
		Digest:   simctx.Digest(),
	}

	checkpoint, err := s.ReadDigest(ctx, token, simctx.Tick())
	if err != nil {
		return nil, LoadResult{}, fmt.Errorf("load session: %w", err)
	}
	if checkpoint != "" {
		if checkpoint != result.Digest {
			return nil, LoadResult{}, fmt.Errorf(
				"load session: digest mismatch at tick %d: stored %s, replayed %s",
				simctx.Tick(), checkpoint, result.Digest)
		}
		result.DigestVerified = true
	}

	return pipeline, result, nil
}

// Checkpoint appends a pipeline's unpersisted log tail and writes a digest
// checkpoint at the context's current tick. Safe to call repeatedly; both
// writes are idempotent.
func (s *Store) Checkpoint(ctx context.Context, token string, pipeline *command.Pipeline, simctx *sim.Context) error {
	if err := s.AppendLog(ctx, token, pipeline.Log()); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := s.WriteDigest(ctx, token, simctx.Tick(), simctx.Digest()); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
