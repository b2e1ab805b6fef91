package savegame

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmacphail/suzerain/internal/command"
)

// Session is the metadata row for one saved playthrough.
type Session struct {
	Token     string    `json:"token"`
	Scenario  string    `json:"scenario"`
	CreatedAt time.Time `json:"created_at"`
	LastTick  uint32    `json:"last_tick"`
}

// CreateSession allocates a new session for a scenario and returns its
// token. Tokens are UUIDv7 so session listings sort by creation time.
func (s *Store) CreateSession(ctx context.Context, scenario string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("create session: generate token: %w", err)
	}
	token := id.String()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, scenario, created_at, last_tick)
		VALUES (?, ?, ?, 0)
	`,
		token,
		scenario,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return token, nil
}

// AppendLog persists a batch of executed commands for a session in a
// single transaction, and advances the session's last tick.
//
// Uses ON CONFLICT(session_token, seq) DO NOTHING for idempotency - a
// crashed writer that retries a batch after a partial commit leaves the
// log unchanged. Entries must arrive in execution order; seq values never
// repeat within a session.
func (s *Store) AppendLog(ctx context.Context, token string, entries []command.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append log: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO command_log (session_token, tick, seq, kind, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_token, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append log: prepare: %w", err)
	}
	defer stmt.Close()

	lastTick := entries[len(entries)-1].Tick
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, token, e.Tick, e.Seq, uint16(e.Kind), e.Payload); err != nil {
			return fmt.Errorf("append log: seq %d: %w", e.Seq, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET last_tick = MAX(last_tick, ?) WHERE token = ?
	`, lastTick, token)
	if err != nil {
		return fmt.Errorf("append log: update last tick: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append log: commit: %w", err)
	}

	return nil
}

// WriteDigest records a digest checkpoint for a session at a tick.
// Uses ON CONFLICT DO NOTHING for idempotency - the digest at a tick is a
// pure function of the log, so a rewrite could only ever carry the same
// value.
func (s *Store) WriteDigest(ctx context.Context, token string, tick uint32, digest string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digests (session_token, tick, digest)
		VALUES (?, ?, ?)
		ON CONFLICT(session_token, tick) DO NOTHING
	`, token, tick, digest)
	if err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	return nil
}
