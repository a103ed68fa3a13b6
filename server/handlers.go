// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/dj-tender/dj"
)

// Sessions is the orchestrator surface the API reads and controls.
type Sessions interface {
	Sessions() []dj.Status
	Skip(guildID, userID string) error
	Stop(guildID string) error
}

// Pinger reports whether an upstream dependency is reachable.
type Pinger interface {
	Available(ctx context.Context) bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	sessions Sessions
	llm      Pinger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// Any of them may be nil; the affected endpoints then report unavailable.
func NewHandlers(db *sql.DB, sessions Sessions, llm Pinger) *Handlers {
	return &Handlers{db: db, sessions: sessions, llm: llm}
}
