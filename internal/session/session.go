// Package session manages the authenticated session: the access/refresh token
// pair, the signed-in user, and the per-install device identity. Credentials
// are mirrored into the persistent view-state store so a session survives a
// process restart; the in-memory copy is authoritative while running.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sparklabs/sparkshell/internal/viewstate"
)

// User is the signed-in identity as returned by the auth endpoints.
type User struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	AvatarURL     string `json:"avatar_url"`
	Level         int    `json:"level"`
	LevelTitle    string `json:"level_title"`
	CurrentPoints int    `json:"current_points"`
	TotalPoints   int    `json:"total_points"`
	CurrentStreak int    `json:"current_streak"`
}

// Session holds the live credentials and identity.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// Manager owns the session lifecycle. All methods are safe for concurrent use.
type Manager struct {
	state *viewstate.Store

	mu      sync.RWMutex
	current Session
}

// NewManager creates a session manager over the given view-state store.
func NewManager(state *viewstate.Store) *Manager {
	return &Manager{state: state}
}

// Restore rebuilds the session from persisted credentials. All three
// credential fields must be present; a partial set is treated as signed-out
// and the leftovers are cleared.
func (m *Manager) Restore(ctx context.Context) bool {
	token, hasToken := m.state.Get(ctx, viewstate.KeyAuthToken)
	refresh, hasRefresh := m.state.Get(ctx, viewstate.KeyRefreshToken)

	var user User
	hasUser := m.state.GetJSON(ctx, viewstate.KeyCurrentUser, &user)

	if !hasToken || !hasRefresh || !hasUser {
		m.clearCredentials(ctx)
		return false
	}

	m.mu.Lock()
	m.current = Session{AccessToken: token, RefreshToken: refresh, User: &user}
	m.mu.Unlock()

	slog.Info("session restored",
		"component", "session",
		"user_id", user.ID,
	)
	return true
}

// Login installs a fresh session and resets the persisted navigation state to
// the home tab, clearing any leftover mission flow from a previous user.
func (m *Manager) Login(ctx context.Context, s Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.state.Set(ctx, viewstate.KeyAuthToken, s.AccessToken)
	m.state.Set(ctx, viewstate.KeyRefreshToken, s.RefreshToken)
	if s.User != nil {
		m.state.SetJSON(ctx, viewstate.KeyCurrentUser, s.User)
	}

	m.state.Set(ctx, viewstate.KeyActiveTab, "home")
	m.state.Set(ctx, viewstate.KeyCurrentView, "main")
	m.state.Remove(ctx, viewstate.KeySelectedMissionID)
	m.state.Remove(ctx, viewstate.KeyLastActiveTab)
	m.state.Remove(ctx, viewstate.KeyScrollPositions)
}

// SetTokens replaces the token pair in place after a successful refresh.
func (m *Manager) SetTokens(ctx context.Context, access, refresh string) {
	m.mu.Lock()
	m.current.AccessToken = access
	if refresh != "" {
		m.current.RefreshToken = refresh
	}
	refresh = m.current.RefreshToken
	m.mu.Unlock()

	m.state.Set(ctx, viewstate.KeyAuthToken, access)
	m.state.Set(ctx, viewstate.KeyRefreshToken, refresh)
}

// AccessToken returns the current access token, empty when signed out.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.AccessToken
}

// RefreshToken returns the current refresh token, empty when signed out.
func (m *Manager) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.RefreshToken
}

// User returns the signed-in user, nil when signed out.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.User
}

// Authenticated reports whether a complete session is present.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.AccessToken != "" && m.current.RefreshToken != "" && m.current.User != nil
}

// Logout clears the session and re-seeds the navigation state for the next
// sign-in.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()

	m.clearCredentials(ctx)
	m.state.Set(ctx, viewstate.KeyActiveTab, "home")
	m.state.Set(ctx, viewstate.KeyCurrentView, "main")

	slog.Info("session cleared", "component", "session")
}

// ForceLogout is Logout triggered by unrecoverable auth loss rather than user
// intent. The reason is logged for diagnosis.
func (m *Manager) ForceLogout(ctx context.Context, reason string) {
	slog.Warn("forced logout",
		"component", "session",
		"reason", reason,
	)
	m.Logout(ctx)
}

// TokenExpiry returns the access token's expiry claim without verifying the
// signature. Verification belongs to the server; this is for diagnostics only.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	token := m.AccessToken()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// DeviceID returns the per-install device identity, minting and persisting one
// on first use.
func (m *Manager) DeviceID(ctx context.Context) string {
	if id, ok := m.state.Get(ctx, viewstate.KeyDeviceID); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	m.state.Set(ctx, viewstate.KeyDeviceID, id)
	return id
}

func (m *Manager) clearCredentials(ctx context.Context) {
	m.state.Remove(ctx, viewstate.KeyAuthToken)
	m.state.Remove(ctx, viewstate.KeyRefreshToken)
	m.state.Remove(ctx, viewstate.KeyCurrentUser)
}
