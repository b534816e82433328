package nav

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sparklabs/sparkshell/internal/apiclient"
	"github.com/sparklabs/sparkshell/internal/missionapi"
	"github.com/sparklabs/sparkshell/internal/viewstate"
)

// SelectMission opens the mission detail screen from the home or missions
// tab, remembering the tab to return to when the flow ends.
func (m *Machine) SelectMission(ctx context.Context, missionID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLastActiveTab(ctx, m.activeTab)
	m.setSelectedMission(ctx, &missionID)
	m.setView(ctx, ViewMissionDetail)
}

// ContinueMission resumes an in-progress mission, skipping the detail screen
// and landing directly on verification.
func (m *Machine) ContinueMission(ctx context.Context, missionID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLastActiveTab(ctx, m.activeTab)
	m.setSelectedMission(ctx, &missionID)
	m.setView(ctx, ViewMissionVerification)
}

// StartMission confirms the start from mission detail. Success routes back to
// the missions tab with the flow state cleared; failure branches on the
// backend error code.
func (m *Machine) StartMission(ctx context.Context, userID int) {
	m.mu.Lock()
	if m.selectedMissionID == nil {
		m.mu.Unlock()
		slog.Warn("start mission without a selection", "component", "nav")
		return
	}
	missionID := *m.selectedMissionID
	m.mu.Unlock()

	_, err := m.missions.StartMission(ctx, missionID, userID)
	if err != nil {
		m.handleStartFailure(ctx, err)
		return
	}

	m.invalidator.InvalidateMissionQueries(userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setActiveTabLocked(ctx, TabMissions)
	m.setSelectedMission(ctx, nil)
	m.setLastActiveTab(ctx, "")
	m.setView(ctx, ViewMain)
}

// handleStartFailure maps the mission-start error to user-facing behavior.
// Only the in-progress case demands an explicit confirmation; every other
// branch is a passive notification. The confirmation's accept action performs
// the same state reset as a successful start.
func (m *Machine) handleStartFailure(ctx context.Context, err error) {
	if errors.Is(err, apiclient.ErrNetwork) {
		m.notifier.Notify("Connection problem. Check your network and try again.")
		return
	}

	switch missionapi.ErrorCode(err) {
	case missionapi.CodeDailyLimitExceeded:
		m.notifier.Notify("You've reached today's mission limit. Try again tomorrow!")
	case missionapi.CodeMissionInProgress:
		m.notifier.Confirm("You already have a mission in progress. Go to your missions?", func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.setActiveTabLocked(ctx, TabMissions)
			m.setSelectedMission(ctx, nil)
			m.setLastActiveTab(ctx, "")
			m.setView(ctx, ViewMain)
		})
	case missionapi.CodeMissionNotFound:
		m.notifier.Notify("That mission no longer exists. Pick another one.")
	default:
		message := "Could not start the mission. Please try again."
		if server := missionapi.ErrorMessage(err); server != "" {
			message = server
		}
		m.notifier.Notify(message)
	}
}

// VerifyMission moves from mission detail to verification.
func (m *Machine) VerifyMission(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentView != ViewMissionDetail {
		slog.Warn("verify transition outside mission detail",
			"component", "nav",
			"view", string(m.currentView),
		)
		return
	}
	m.setView(ctx, ViewMissionVerification)
}

// SubmitVerification records the completion result and shows the success
// screen. A missing result is replaced by the documented fallback so the
// success screen always has something to render.
func (m *Machine) SubmitVerification(ctx context.Context, result *MissionResult, userID int) {
	m.invalidator.InvalidateMissionQueries(userID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if result == nil {
		result = defaultMissionResult()
	}
	m.missionResult = result
	m.setView(ctx, ViewMissionSuccess)
}

// BackFromVerification abandons verification. It always routes to the
// missions tab and clears the flow state, regardless of where the user
// entered from.
func (m *Machine) BackFromVerification(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setActiveTabLocked(ctx, TabMissions)
	m.setSelectedMission(ctx, nil)
	m.setLastActiveTab(ctx, "")
	m.setView(ctx, ViewMain)
}

// BackToMain returns from detail or success to the main view, restoring the
// tab the flow started from.
func (m *Machine) BackToMain(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab := m.lastActiveTab
	if tab == "" {
		tab = TabHome
	}
	m.setActiveTabLocked(ctx, tab)
	m.setSelectedMission(ctx, nil)
	m.setLastActiveTab(ctx, "")
	m.missionResult = nil
	m.setView(ctx, ViewMain)
}

// OpenSettings shows the settings screen.
func (m *Machine) OpenSettings(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setView(ctx, ViewSettings)
}

// OpenSettingsSection routes to a settings sub-page. An unrecognized section
// stays on settings and surfaces a notification instead of changing views.
func (m *Machine) OpenSettingsSection(ctx context.Context, section string) {
	m.mu.Lock()
	var target View
	switch section {
	case "profile":
		target = ViewProfileEdit
	case "password":
		target = ViewPasswordChange
	case "help":
		target = ViewHelp
	case "about":
		target = ViewAppInfo
	default:
		m.mu.Unlock()
		m.notifier.Notify("This feature isn't available yet.")
		return
	}
	m.setView(ctx, target)
	m.mu.Unlock()
}

// BackToSettings returns from a settings sub-page to the settings screen.
func (m *Machine) BackToSettings(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setView(ctx, ViewSettings)
}

// CloseSettings leaves settings for the main view.
func (m *Machine) CloseSettings(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setView(ctx, ViewMain)
}

// SetActiveTab switches bottom tabs, applying the scroll bookkeeping rule:
// the outgoing tab's offset is recorded, and the incoming tab either resets
// to the top (first visit) or restores its recorded offset after the next
// render pass.
func (m *Machine) SetActiveTab(ctx context.Context, tab Tab) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tab == m.activeTab {
		return
	}

	m.scrollPositions[m.activeTab] = m.scroller.Offset()
	m.state.SetJSON(ctx, viewstate.KeyScrollPositions, m.scrollPositions)

	if offset, known := m.scrollPositions[tab]; known {
		m.scroller.AfterRender(func() {
			m.scroller.ScrollTo(offset)
		})
	} else {
		m.scroller.ScrollTo(0)
	}

	m.setActiveTabLocked(ctx, tab)
}
