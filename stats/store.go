// Package stats keeps best-effort play and skip counters in Postgres.
package stats

import (
	"context"
	"database/sql"
	"fmt"
)

type Kind string

const (
	KindPlay Kind = "plays"
	KindSkip Kind = "skips"
)

func (k Kind) valid() bool { return k == KindPlay || k == KindSkip }

// Store persists counters. Implementations may be slow or fail; the Recorder
// never lets either reach its callers.
type Store interface {
	IncrementMedia(ctx context.Context, kind Kind, identifier, sessionID, userID string) error
	IncrementSkipButton(ctx context.Context, sessionID, userID string) error
}

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

// IncrementMedia resolves (or creates) the session-scoped media id, then bumps
// the aggregate and the per-user counter in one transaction.
func (s *PostgresStore) IncrementMedia(ctx context.Context, kind Kind, identifier, sessionID, userID string) error {
	if !kind.valid() {
		return fmt.Errorf("unknown counter kind %q", kind)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var mediaID int64
	err = tx.QueryRowContext(ctx, `INSERT INTO dj_media(session_id, identifier) VALUES ($1, $2)
		ON CONFLICT (session_id, identifier) DO UPDATE SET identifier=EXCLUDED.identifier
		RETURNING id`, sessionID, identifier).Scan(&mediaID)
	if err != nil {
		return fmt.Errorf("resolve media id: %w", err)
	}

	col := string(kind)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO dj_media_counts(media_id, %[1]s) VALUES ($1, 1)
		ON CONFLICT (media_id) DO UPDATE SET %[1]s = dj_media_counts.%[1]s + 1, updated_at=NOW()`, col), mediaID); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", col, err)
	}
	if userID != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO dj_media_user_counts(media_id, user_id, %[1]s) VALUES ($1, $2, 1)
			ON CONFLICT (media_id, user_id) DO UPDATE SET %[1]s = dj_media_user_counts.%[1]s + 1, updated_at=NOW()`, col), mediaID, userID); err != nil {
			return fmt.Errorf("upsert user %s: %w", col, err)
		}
	}
	return tx.Commit()
}

// IncrementSkipButton counts skip presses per user, independent of any track.
func (s *PostgresStore) IncrementSkipButton(ctx context.Context, sessionID, userID string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO dj_skip_presses(session_id, user_id, presses) VALUES ($1, $2, 1)
		ON CONFLICT (session_id, user_id) DO UPDATE SET presses = dj_skip_presses.presses + 1, updated_at=NOW()`, sessionID, userID)
	return err
}

type TopTrack struct {
	Identifier string
	Plays      int64
	Skips      int64
}

// TopTracks ranks media by kind. An empty sessionID aggregates across sessions.
func (s *PostgresStore) TopTracks(ctx context.Context, sessionID string, kind Kind, limit int) ([]TopTrack, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("unknown counter kind %q", kind)
	}
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`SELECT m.identifier, SUM(c.plays) AS plays, SUM(c.skips) AS skips
		FROM dj_media m JOIN dj_media_counts c ON c.media_id = m.id
		WHERE ($1 = '' OR m.session_id = $1)
		GROUP BY m.identifier
		ORDER BY %s DESC, m.identifier ASC
		LIMIT $2`, string(kind))
	rows, err := s.DB.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopTrack
	for rows.Next() {
		var t TopTrack
		if err := rows.Scan(&t.Identifier, &t.Plays, &t.Skips); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SkipPresses returns per-user skip button presses for a session, highest first.
func (s *PostgresStore) SkipPresses(ctx context.Context, sessionID string) (map[string]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, presses FROM dj_skip_presses WHERE session_id=$1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var user string
		var n int64
		if err := rows.Scan(&user, &n); err != nil {
			return nil, err
		}
		out[user] = n
	}
	return out, rows.Err()
}
