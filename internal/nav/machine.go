// Package nav is the view navigation state machine: the single source of
// truth for which screen and tab is visible, transition validation, and the
// side-effect orchestration around the mission lifecycle. Every completed
// transition is mirrored write-through into the persistent view-state store.
package nav

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sparklabs/sparkshell/internal/missionapi"
	"github.com/sparklabs/sparkshell/internal/viewstate"
)

// View is a full-screen navigational state distinct from the bottom-tab
// selection.
type View string

const (
	ViewMain                View = "main"
	ViewProfileEdit         View = "profile-edit"
	ViewSettings            View = "settings"
	ViewPasswordChange      View = "password-change"
	ViewHelp                View = "help"
	ViewAppInfo             View = "app-info"
	ViewMissionDetail       View = "mission-detail"
	ViewMissionVerification View = "mission-verification"
	ViewMissionSuccess      View = "mission-success"
)

// Tab is one of the persistent bottom-navigation destinations, active only
// while the current view is main.
type Tab string

const (
	TabHome     Tab = "home"
	TabExplore  Tab = "explore"
	TabMissions Tab = "missions"
	TabRewards  Tab = "rewards"
	TabProfile  Tab = "profile"
)

// MissionResult is produced by mission completion and consumed by the success
// screen. It is transient: never persisted, cleared when leaving the screen.
type MissionResult struct {
	PointsEarned int
	StreakCount  int
	LevelUp      bool
	NewLevel     int
}

// defaultMissionResult is the synthesized result used when verification is
// submitted without one. The success screen requires a non-nil result, so the
// machine falls back rather than rendering an invalid state.
func defaultMissionResult() *MissionResult {
	return &MissionResult{PointsEarned: 20, StreakCount: 7, LevelUp: false}
}

// Notifier presents user-facing failure feedback. Notify is non-blocking and
// auto-dismisses; Confirm presents an actionable dialog and invokes onConfirm
// only if the user accepts.
type Notifier interface {
	Notify(message string)
	Confirm(message string, onConfirm func())
}

// QueryInvalidator drops cached query results after mission mutations.
// Invalidation is deliberately coarse: every mission-related query goes,
// trading cache freshness granularity for correctness.
type QueryInvalidator interface {
	InvalidateMissionQueries(userID int)
}

// Scroller abstracts the scrollable viewport. AfterRender defers work until
// the next render pass so restored offsets land after layout settles.
type Scroller interface {
	Offset() int
	ScrollTo(offset int)
	AfterRender(fn func())
}

// MissionStarter is the mutation surface the machine drives.
// Implemented by missionapi.API.
type MissionStarter interface {
	StartMission(ctx context.Context, missionID, userID int) (*missionapi.Mission, error)
}

// Machine is the navigation state machine. Transitions are strictly
// sequential: a transition, including its persistence writes, completes
// before the next one is processed.
type Machine struct {
	state       *viewstate.Store
	missions    MissionStarter
	notifier    Notifier
	invalidator QueryInvalidator
	scroller    Scroller

	mu                sync.Mutex
	currentView       View
	previousView      View
	activeTab         Tab
	previousActiveTab Tab
	selectedMissionID *int
	lastActiveTab     Tab
	missionResult     *MissionResult
	scrollPositions   map[Tab]int
}

// NewMachine creates a machine with all collaborators injected. The initial
// state is the main view on the home tab until Restore is called.
func NewMachine(state *viewstate.Store, missions MissionStarter, notifier Notifier, invalidator QueryInvalidator, scroller Scroller) *Machine {
	return &Machine{
		state:           state,
		missions:        missions,
		notifier:        notifier,
		invalidator:     invalidator,
		scroller:        scroller,
		currentView:     ViewMain,
		activeTab:       TabHome,
		scrollPositions: make(map[Tab]int),
	}
}

// Restore rebuilds in-memory state from the persisted mirror. Each field is
// read independently with its own default, so a partially-written persisted
// state (crash between two writes) still restores to something coherent.
func (m *Machine) Restore(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if raw, ok := m.state.Get(ctx, viewstate.KeyActiveTab); ok && validTab(Tab(raw)) {
		m.activeTab = Tab(raw)
	}
	if raw, ok := m.state.Get(ctx, viewstate.KeyCurrentView); ok && validView(View(raw)) {
		m.currentView = View(raw)
	}
	if id, ok := m.state.GetInt(ctx, viewstate.KeySelectedMissionID); ok {
		m.selectedMissionID = &id
	}
	if raw, ok := m.state.Get(ctx, viewstate.KeyLastActiveTab); ok && validTab(Tab(raw)) {
		m.lastActiveTab = Tab(raw)
	}
	var scrolls map[Tab]int
	if m.state.GetJSON(ctx, viewstate.KeyScrollPositions, &scrolls) && scrolls != nil {
		m.scrollPositions = scrolls
	}

	// A mission view without a selected mission cannot render; fall back to
	// main rather than restoring an invalid state.
	if (m.currentView == ViewMissionDetail || m.currentView == ViewMissionVerification) && m.selectedMissionID == nil {
		slog.Warn("restored mission view without selected mission, falling back to main",
			"component", "nav",
			"view", string(m.currentView),
		)
		m.currentView = ViewMain
		m.state.Set(ctx, viewstate.KeyCurrentView, string(ViewMain))
	}

	// The success screen's result is transient and gone after a reload.
	if m.currentView == ViewMissionSuccess {
		m.missionResult = defaultMissionResult()
	}

	slog.Info("navigation state restored",
		"component", "nav",
		"view", string(m.currentView),
		"tab", string(m.activeTab),
	)
}

// CurrentView returns the active view.
func (m *Machine) CurrentView() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentView
}

// PreviousView returns the view active before the most recent transition.
func (m *Machine) PreviousView() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousView
}

// ActiveTab returns the selected bottom tab.
func (m *Machine) ActiveTab() Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTab
}

// SelectedMissionID returns the mission under detail/verification, nil outside
// a mission flow.
func (m *Machine) SelectedMissionID() *int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedMissionID
}

// MissionResult returns the result consumed by the success screen. On the
// success screen it is never nil: a missing result yields the documented
// fallback.
func (m *Machine) MissionResult() *MissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentView == ViewMissionSuccess && m.missionResult == nil {
		return defaultMissionResult()
	}
	return m.missionResult
}

// ScrollPosition returns the recorded offset for tab and whether one exists.
func (m *Machine) ScrollPosition(tab Tab) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset, ok := m.scrollPositions[tab]
	return offset, ok
}

// setView records a view transition and mirrors it to storage.
// Callers must hold m.mu.
func (m *Machine) setView(ctx context.Context, view View) {
	m.previousView = m.currentView
	m.currentView = view
	m.state.Set(ctx, viewstate.KeyCurrentView, string(view))
}

// setSelectedMission mirrors the selection to storage; nil clears it.
// Callers must hold m.mu.
func (m *Machine) setSelectedMission(ctx context.Context, id *int) {
	m.selectedMissionID = id
	if id == nil {
		m.state.Remove(ctx, viewstate.KeySelectedMissionID)
		return
	}
	m.state.SetInt(ctx, viewstate.KeySelectedMissionID, *id)
}

// setLastActiveTab mirrors the return-to tab to storage; empty clears it.
// Callers must hold m.mu.
func (m *Machine) setLastActiveTab(ctx context.Context, tab Tab) {
	m.lastActiveTab = tab
	if tab == "" {
		m.state.Remove(ctx, viewstate.KeyLastActiveTab)
		return
	}
	m.state.Set(ctx, viewstate.KeyLastActiveTab, string(tab))
}

// setActiveTabLocked updates the tab and its persisted mirror.
// Callers must hold m.mu.
func (m *Machine) setActiveTabLocked(ctx context.Context, tab Tab) {
	m.previousActiveTab = m.activeTab
	m.activeTab = tab
	m.state.Set(ctx, viewstate.KeyActiveTab, string(tab))
}

func validView(v View) bool {
	switch v {
	case ViewMain, ViewProfileEdit, ViewSettings, ViewPasswordChange, ViewHelp,
		ViewAppInfo, ViewMissionDetail, ViewMissionVerification, ViewMissionSuccess:
		return true
	}
	return false
}

func validTab(t Tab) bool {
	switch t {
	case TabHome, TabExplore, TabMissions, TabRewards, TabProfile:
		return true
	}
	return false
}
