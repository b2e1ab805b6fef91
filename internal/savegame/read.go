package savegame

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tmacphail/suzerain/internal/command"
)

// ErrSessionNotFound is returned when a session token has no row.
var ErrSessionNotFound = errors.New("session not found")

// GetSession returns the metadata for a session token.
func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	var (
		sess      Session
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, scenario, created_at, last_tick
		FROM sessions WHERE token = ?
	`, token).Scan(&sess.Token, &sess.Scenario, &createdAt, &sess.LastTick)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %s: %w", token, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Session{}, fmt.Errorf("get session: parse created_at: %w", err)
	}

	return sess, nil
}

// ListSessions returns all sessions, oldest first. UUIDv7 tokens sort by
// creation time, so token order is creation order.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, scenario, created_at, last_tick
		FROM sessions ORDER BY token
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess      Session
			createdAt string
		)
		if err := rows.Scan(&sess.Token, &sess.Scenario, &createdAt, &sess.LastTick); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("list sessions: parse created_at: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}

	return sessions, nil
}

// ReadLog returns a session's full command log in execution order.
func (s *Store) ReadLog(ctx context.Context, token string) ([]command.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, seq, kind, payload
		FROM command_log
		WHERE session_token = ?
		ORDER BY seq ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer rows.Close()

	var entries []command.LogEntry
	for rows.Next() {
		var (
			entry command.LogEntry
			kind  uint16
		)
		if err := rows.Scan(&entry.Tick, &entry.Seq, &kind, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entry.Kind = command.Kind(kind)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}

	if entries == nil {
		entries = []command.LogEntry{}
	}

	return entries, nil
}

// ReadDigest returns the digest checkpoint for a session at a tick, or
// "" if none was written there.
func (s *Store) ReadDigest(ctx context.Context, token string, tick uint32) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT digest FROM digests
		WHERE session_token = ? AND tick = ?
	`, token, tick).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read digest: %w", err)
	}
	return digest, nil
}

// LastSeq returns the highest seq persisted for a session, or 0 for an
// empty log. Used to resume the submission clock after loading.
func (s *Store) LastSeq(ctx context.Context, token string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM command_log WHERE session_token = ?
	`, token).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
