// Package threshold decides, for locally owned entities, when the true
// simulated state has drifted far enough from what remote peers are
// extrapolating that a fresh authoritative update must be published.
package threshold

import (
	"errors"
	"fmt"

	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/drmath"
)

var ErrNotTracked = errors.New("entity not tracked by monitor")

// Reason explains a publish decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInitial
	ReasonForced
	ReasonPosition
	ReasonOrientation
	ReasonHeartbeat
)

var reasonNames = map[Reason]string{
	ReasonNone:        "none",
	ReasonInitial:     "initial",
	ReasonForced:      "forced",
	ReasonPosition:    "position",
	ReasonOrientation: "orientation",
	ReasonHeartbeat:   "heartbeat",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Decision is the result of one Check.
type Decision struct {
	EntityID deadreckoning.EntityID
	Publish  bool
	Reason   Reason
	State    deadreckoning.State // the state to publish, valid when Publish
	Position float64             // positional divergence measured this check
	Angle    float64             // angular divergence measured this check
	Reset    bool                // first publish after a clock reset, set by the caller
}

type tracked struct {
	cfg       config.DeadReckoningConfig
	reference deadreckoning.State
	hasRef    bool
	forced    bool
}

// Monitor holds the last published reference per owned entity.
type Monitor struct {
	entities map[deadreckoning.EntityID]*tracked
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		entities: make(map[deadreckoning.EntityID]*tracked),
	}
}

// Track starts monitoring id. A zero config means every change publishes
// and there is no heartbeat.
func (m *Monitor) Track(id deadreckoning.EntityID, cfg config.DeadReckoningConfig) {
	m.entities[id] = &tracked{cfg: cfg}
}

// Untrack forgets id and its reference.
func (m *Monitor) Untrack(id deadreckoning.EntityID) {
	delete(m.entities, id)
}

// Tracking reports whether id is monitored.
func (m *Monitor) Tracking(id deadreckoning.EntityID) bool {
	_, ok := m.entities[id]
	return ok
}

// Reference returns the last published state for id.
func (m *Monitor) Reference(id deadreckoning.EntityID) (deadreckoning.State, bool) {
	t, ok := m.entities[id]
	if !ok || !t.hasRef {
		return deadreckoning.State{}, false
	}
	return t.reference, true
}

// Rearm drops the reference for id so the next Check publishes.
func (m *Monitor) Rearm(id deadreckoning.EntityID) error {
	t, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("rearm %d: %w", id, ErrNotTracked)
	}
	t.hasRef = false
	return nil
}

// RearmAll drops every reference.
func (m *Monitor) RearmAll() {
	for _, t := range m.entities {
		t.hasRef = false
	}
}

// ForcePublish makes the next Check for id publish regardless of divergence.
func (m *Monitor) ForcePublish(id deadreckoning.EntityID) error {
	t, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("force publish %d: %w", id, ErrNotTracked)
	}
	t.forced = true
	return nil
}

// Rebase shifts every reference timestamp by shift seconds.
func (m *Monitor) Rebase(shift float64) {
	for _, t := range m.entities {
		if t.hasRef {
			t.reference.Timestamp += shift
		}
	}
}

// Check compares truth against the reference extrapolated to now. It only
// looks at the current tick: a divergence that came and went between checks
// is never reported later.
func (m *Monitor) Check(id deadreckoning.EntityID, truth deadreckoning.State, now float64) (Decision, error) {
	t, ok := m.entities[id]
	if !ok {
		return Decision{EntityID: id}, fmt.Errorf("check %d: %w", id, ErrNotTracked)
	}

	truth.Timestamp = now
	decision := Decision{EntityID: id}

	switch {
	case !t.hasRef:
		decision.Reason = ReasonInitial
	case t.forced:
		decision.Reason = ReasonForced
	default:
		predicted, _ := deadreckoning.Extrapolate(t.reference, now-t.reference.Timestamp, t.maxExtrapolation())
		decision.Position = drmath.Distance(predicted.Position, truth.Position)
		decision.Angle = drmath.AngularDistance(predicted.Orientation, truth.Orientation)

		switch {
		case decision.Position > t.cfg.PositionThreshold:
			decision.Reason = ReasonPosition
		case decision.Angle > t.cfg.OrientationThreshold:
			decision.Reason = ReasonOrientation
		case t.cfg.HeartbeatInterval > 0 && now-t.reference.Timestamp > t.cfg.HeartbeatInterval:
			decision.Reason = ReasonHeartbeat
		}
	}

	if decision.Reason == ReasonNone {
		return decision, nil
	}

	decision.Publish = true
	decision.State = truth
	t.reference = truth
	t.hasRef = true
	t.forced = false
	return decision, nil
}

// maxExtrapolation mirrors what receivers clamp to, so predictions match what
// peers actually display. Unconfigured entities predict no motion.
func (t *tracked) maxExtrapolation() float64 {
	return t.cfg.MaxExtrapolationTime
}
