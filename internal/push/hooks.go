package push

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Hooks exposes the push event and click handlers the gateway mounts. They
// run outside the cache policies: a push event resolves to the notification
// that should be displayed, a click to the session routing decision.
type Hooks struct {
	origin string
}

// NewHooks creates hooks that resolve clicks against the given origin.
func NewHooks(origin string) *Hooks {
	return &Hooks{origin: origin}
}

// HandleEvent parses a raw push payload and responds with the notification to
// display. Malformed payloads degrade to the default notification, never to an
// error.
func (h *Hooks) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("failed to read push payload", "component", "push", "error", err)
		payload = nil
	}

	n := Parse(payload)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(n); err != nil {
		slog.Error("failed to encode notification", "component", "push", "error", err)
	}
}

type clickRequest struct {
	Action       string   `json:"action"`
	OpenSessions []string `json:"openSessions"`
}

// HandleClick resolves a notification click to a routing decision.
func (h *Hooks) HandleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid click request", http.StatusBadRequest)
		return
	}

	decision := ResolveClick(req.Action, h.origin, req.OpenSessions)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(decision); err != nil {
		slog.Error("failed to encode click decision", "component", "push", "error", err)
	}
}
