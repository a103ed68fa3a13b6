// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for dsn.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies the embedded baseline schema statement by statement.
// Every statement is idempotent, so this is the fallback when versioned migrations fail.
func Migrate(ctx context.Context, db *sql.DB) error {
	raw, err := migrationFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		return fmt.Errorf("read baseline schema: %w", err)
	}
	for i, stmt := range splitStatements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, l := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(l), "--") {
				continue
			}
			lines = append(lines, l)
		}
		if s := strings.TrimSpace(strings.Join(lines, "\n")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetGuildVoice returns the configured voice key for a guild, or "" when none is set.
func GetGuildVoice(ctx context.Context, dbx *sql.DB, guildID string) (string, error) {
	var v sql.NullString
	err := dbx.QueryRowContext(ctx, `SELECT voice_key FROM guild_settings WHERE guild_id=$1`, guildID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String, nil
}

// SetGuildVoice stores the voice key for a guild. An empty key clears the override.
func SetGuildVoice(ctx context.Context, dbx *sql.DB, guildID, voice string) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO guild_settings(guild_id, voice_key, updated_at) VALUES ($1, NULLIF($2, ''), NOW())
		ON CONFLICT (guild_id) DO UPDATE SET voice_key=EXCLUDED.voice_key, updated_at=NOW()`, guildID, voice)
	return err
}

// GuildSettings adapts a *sql.DB to the voice lookups used by the commentary pipeline and chat bridge.
type GuildSettings struct {
	DB *sql.DB
}

func (g GuildSettings) GuildVoice(ctx context.Context, guildID string) (string, error) {
	return GetGuildVoice(ctx, g.DB, guildID)
}

func (g GuildSettings) SetGuildVoice(ctx context.Context, guildID, voice string) error {
	return SetGuildVoice(ctx, g.DB, guildID, voice)
}
