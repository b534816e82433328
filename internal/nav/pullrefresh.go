package nav

import (
	"context"
	"log/slog"
	"sync"
)

// Pull-to-refresh gesture tuning. Distance accumulates at half the drag rate
// and the refresh arms once the dampened distance crosses the threshold.
const (
	defaultPullThreshold  = 80.0
	defaultPullResistance = 0.5
)

// PullState is a snapshot of an in-flight pull gesture, consumed by the
// refresh indicator.
type PullState struct {
	Pulling      bool
	PullDistance float64
	CanRefresh   bool
	Refreshing   bool
}

// PullRefresh tracks the pull-to-refresh gesture: a downward drag that starts
// with the viewport scrolled to the top, accumulates dampened distance, and
// triggers the injected refresh callback on release once past the threshold.
type PullRefresh struct {
	onRefresh  func(ctx context.Context) error
	threshold  float64
	resistance float64
	enabled    bool

	mu         sync.Mutex
	armed      bool
	startY     float64
	pulling    bool
	distance   float64
	canRefresh bool
	refreshing bool
}

// NewPullRefresh creates a tracker with the default threshold and resistance.
// onRefresh runs on a released gesture that crossed the threshold; its error
// is logged, never surfaced, so a failed refresh ends the gesture quietly.
func NewPullRefresh(onRefresh func(ctx context.Context) error) *PullRefresh {
	return &PullRefresh{
		onRefresh:  onRefresh,
		threshold:  defaultPullThreshold,
		resistance: defaultPullResistance,
		enabled:    true,
	}
}

// SetEnabled toggles gesture tracking. Disabling mid-gesture discards it.
func (p *PullRefresh) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled {
		p.resetLocked()
	}
}

// State returns a snapshot of the current gesture.
func (p *PullRefresh) State() PullState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PullState{
		Pulling:      p.pulling,
		PullDistance: p.distance,
		CanRefresh:   p.canRefresh,
		Refreshing:   p.refreshing,
	}
}

// Start begins a gesture at vertical position y. The gesture only arms when
// the viewport is scrolled to the very top; anywhere else the drag is an
// ordinary scroll and every later Move is ignored.
func (p *PullRefresh) Start(scrollOffset int, y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled {
		return
	}
	p.armed = scrollOffset == 0
	if !p.armed {
		return
	}
	p.startY = y
}

// Move updates the gesture with a new vertical position. Upward movement is
// ignored; downward movement accumulates distance dampened by the resistance
// factor and capped at twice the threshold.
func (p *PullRefresh) Move(y float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || !p.armed || p.refreshing {
		return
	}

	delta := y - p.startY
	if delta <= 0 {
		return
	}

	distance := delta * p.resistance
	if limit := p.threshold * 2; distance > limit {
		distance = limit
	}
	p.pulling = true
	p.distance = distance
	p.canRefresh = distance >= p.threshold
}

// End releases the gesture. A release past the threshold runs the refresh
// callback exactly once and resets when it returns; a release short of it
// resets immediately.
func (p *PullRefresh) End(ctx context.Context) {
	p.mu.Lock()
	if !p.pulling {
		p.mu.Unlock()
		return
	}

	trigger := p.canRefresh && !p.refreshing
	if !trigger {
		p.resetLocked()
		p.mu.Unlock()
		return
	}

	p.refreshing = true
	p.pulling = false
	p.distance = 0
	p.mu.Unlock()

	if err := p.onRefresh(ctx); err != nil {
		slog.Warn("pull refresh failed",
			"component", "nav",
			"error", err,
		)
	}

	p.mu.Lock()
	p.resetLocked()
	p.mu.Unlock()
}

// resetLocked clears the gesture. Callers must hold p.mu.
func (p *PullRefresh) resetLocked() {
	p.armed = false
	p.pulling = false
	p.distance = 0
	p.canRefresh = false
	p.refreshing = false
}
