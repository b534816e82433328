// Package viewstate is the persistent view-state store. It wraps the durable
// substrate with best-effort semantics: reads report absence instead of
// failing, writes log and degrade when storage is unavailable, and the
// caller's in-memory state stays authoritative for the session either way.
package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/sparklabs/sparkshell/internal/store"
)

// Persisted field keys. Navigation keys are owned by the state machine;
// credential keys are owned by the auth session and read here only for
// forced-logout cleanup.
const (
	KeyCurrentView       = "currentView"
	KeyActiveTab         = "activeTab"
	KeySelectedMissionID = "selectedMissionId"
	KeyLastActiveTab     = "lastActiveTab"
	KeyScrollPositions   = "scrollPositions"

	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyCurrentUser  = "current_user"
	KeyDeviceID     = "device_id"
)

// Backend is the durable key/value surface the store needs.
// Implemented by store.SQLiteStore.
type Backend interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

// Store exposes the best-effort persistence contract over a Backend.
type Store struct {
	backend Backend
}

// New creates a view-state store over the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the stored value for key and whether it was present.
// Storage failures are logged and reported as absence, never propagated.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	value, err := s.backend.GetValue(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("view-state read failed",
				"component", "viewstate",
				"key", key,
				"error", err,
			)
		}
		return "", false
	}
	return value, true
}

// Set writes a value for key. Failures are logged and swallowed; the
// in-memory copy held by the caller remains authoritative.
func (s *Store) Set(ctx context.Context, key, value string) {
	if err := s.backend.SetValue(ctx, key, value); err != nil {
		slog.Warn("view-state write failed",
			"component", "viewstate",
			"key", key,
			"error", err,
		)
	}
}

// Remove deletes a key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) {
	if err := s.backend.DeleteValue(ctx, key); err != nil {
		slog.Warn("view-state remove failed",
			"component", "viewstate",
			"key", key,
			"error", err,
		)
	}
}

// GetInt returns the stored integer for key. A missing or unparseable value
// is reported as absence.
func (s *Store) GetInt(ctx context.Context, key string) (int, bool) {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("view-state value not an integer",
			"component", "viewstate",
			"key", key,
			"value", raw,
		)
		return 0, false
	}
	return n, true
}

// SetInt writes an integer value for key.
func (s *Store) SetInt(ctx context.Context, key string, value int) {
	s.Set(ctx, key, strconv.Itoa(value))
}

// GetJSON decodes the stored JSON value for key into out. Corrupt values are
// logged and reported as absence, per the store contract.
func (s *Store) GetJSON(ctx context.Context, key string, out any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("view-state value is corrupt JSON",
			"component", "viewstate",
			"key", key,
			"error", err,
		)
		return false
	}
	return true
}

// SetJSON writes value as JSON under key. Marshal failures are logged and
// swallowed like any other write failure.
func (s *Store) SetJSON(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("view-state value not marshalable",
			"component", "viewstate",
			"key", key,
			"error", err,
		)
		return
	}
	s.Set(ctx, key, string(data))
}
