package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/dj"
	"github.com/onnwee/dj-tender/telemetry"
)

// HandleSessions lists live DJ sessions.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sessions == nil {
		writeJSON(w, http.StatusOK, []dj.Status{})
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Sessions())
}

// HandleSessionAction serves POST /sessions/{guild}/skip and DELETE /sessions/{guild}.
func (h *Handlers) HandleSessionAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	guild, action, _ := strings.Cut(rest, "/")
	if guild == "" || h.sessions == nil {
		http.NotFound(w, r)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With("component", "http", "guild", guild)

	var err error
	switch {
	case r.Method == http.MethodPost && action == "skip":
		user := r.URL.Query().Get("user")
		if user == "" {
			user = "api"
		}
		err = h.sessions.Skip(guild, user)
	case r.Method == http.MethodDelete && action == "":
		err = h.sessions.Stop(guild)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch {
	case err == nil:
		log.Info("session action", "action", r.Method+" "+action)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, dj.ErrNoSession):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dj.ErrNothingPlaying):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error("session action failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleVoices lists the commentary voice keys.
func (h *Handlers) HandleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, commentary.VoiceKeys())
}
