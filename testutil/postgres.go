package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/dj-tender/db"
)

// SetupTestDB connects to TEST_PG_DSN with the schema applied. Tests are
// skipped when the variable is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		t.Fatalf("ping test database: %v", err)
	}
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return conn
}

// DropSessionRows removes every stats row recorded under session once the test ends.
func DropSessionRows(t *testing.T, conn *sql.DB, session string) {
	t.Helper()
	t.Cleanup(func() {
		for _, table := range []string{"dj_skip_presses", "dj_media"} {
			if _, err := conn.Exec(`DELETE FROM `+table+` WHERE session_id=$1`, session); err != nil {
				t.Logf("cleanup %s: %v", table, err)
			}
		}
	})
}
