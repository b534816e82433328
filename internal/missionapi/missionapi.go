// Package missionapi provides typed mission endpoints over the request
// pipeline. Payload shapes are treated as opaque backend contracts; the shell
// only interprets the error codes the state machine branches on.
package missionapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sparklabs/sparkshell/internal/apiclient"
)

// Error codes returned by the mission-start mutation that the navigation
// state machine branches on.
const (
	CodeDailyLimitExceeded = "DAILY_LIMIT_EXCEEDED"
	CodeMissionInProgress  = "MISSION_IN_PROGRESS"
	CodeMissionNotFound    = "MISSION_NOT_FOUND"
)

// Mission is a unit of user-assigned activity with a reward-point value.
type Mission struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Points      int    `json:"points"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// CompletionResult is produced by mission completion and consumed by the
// success screen.
type CompletionResult struct {
	PointsEarned int  `json:"pointsEarned"`
	StreakCount  int  `json:"streakCount"`
	LevelUp      bool `json:"levelUp"`
	NewLevel     int  `json:"newLevel,omitempty"`
}

// Pipeline is the request surface the mission API needs.
// Implemented by apiclient.Client.
type Pipeline interface {
	Do(ctx context.Context, method, path string, body any, out any) error
}

// API wraps the mission endpoints.
type API struct {
	pipeline Pipeline
}

// New creates a mission API over the given pipeline.
func New(pipeline Pipeline) *API {
	return &API{pipeline: pipeline}
}

// TodayMissions returns the user's missions for today.
func (a *API) TodayMissions(ctx context.Context, userID int) ([]Mission, error) {
	var missions []Mission
	err := a.pipeline.Do(ctx, http.MethodGet,
		fmt.Sprintf("/missions/today?userId=%d", userID), nil, &missions)
	return missions, err
}

// OngoingMissions returns the user's in-progress missions.
func (a *API) OngoingMissions(ctx context.Context, userID int) ([]Mission, error) {
	var missions []Mission
	err := a.pipeline.Do(ctx, http.MethodGet,
		fmt.Sprintf("/missions/ongoing?userId=%d", userID), nil, &missions)
	return missions, err
}

// StartMission starts the mission for the user.
func (a *API) StartMission(ctx context.Context, missionID, userID int) (*Mission, error) {
	var mission Mission
	err := a.pipeline.Do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%d/start?userId=%d", missionID, userID), nil, &mission)
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

// CompleteMission submits mission completion and returns the earned result.
// The result may be nil when the backend omits it; the state machine
// synthesizes a fallback in that case.
func (a *API) CompleteMission(ctx context.Context, missionID, userID int) (*CompletionResult, error) {
	var result CompletionResult
	err := a.pipeline.Do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%d/complete?userId=%d", missionID, userID), nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AbandonMission abandons an in-progress mission.
func (a *API) AbandonMission(ctx context.Context, missionID, userID int) error {
	return a.pipeline.Do(ctx, http.MethodPost,
		fmt.Sprintf("/missions/%d/abandon?userId=%d", missionID, userID), nil, nil)
}

// ErrorCode extracts the backend error code from err, empty when err is not a
// logical API failure or carries no code.
func ErrorCode(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// ErrorMessage extracts the server-provided message from err, empty when absent.
func ErrorMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
