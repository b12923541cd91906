// Package orchestrator drives dead reckoning once per simulation tick: it
// drains authoritative updates, advances every entity's phase, publishes
// poses, and asks the threshold monitor whether owned entities need a fresh
// update sent.
package orchestrator

import (
	"errors"
	"fmt"
	"log"

	"github.com/automoto/drsync/components"
	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/drmath"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/smoothing"
	"github.com/automoto/drsync/statemodel"
	"github.com/automoto/drsync/threshold"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrClockBackward = errors.New("simulation clock moved backward")
	ErrInvalidTick   = errors.New("invalid tick time")
	ErrOwnedLocally  = errors.New("entity is owned locally")
	ErrNotOwned      = errors.New("entity is not owned locally")
)

// GroundClamper snaps ground-relative entities onto the terrain.
type GroundClamper interface {
	ClampToGround(id deadreckoning.EntityID, position mgl64.Vec3) mgl64.Vec3
}

// Options configures an Orchestrator. The zero value is usable.
type Options struct {
	Logger            *log.Logger
	MaxUpdatesPerTick int // 0 = drain everything each tick
	Ground            GroundClamper
	Profiles          config.ProfileSet // resolves AuthoritativeUpdate.Profile
}

// Orchestrator owns one entity world plus its blender, monitor, and inbox.
// Everything except the inbox must be used from a single goroutine.
type Orchestrator struct {
	model   *statemodel.Model
	blender *smoothing.Blender
	monitor *threshold.Monitor
	inbox   *Inbox
	opts    Options
	logger  *log.Logger

	now     float64
	started bool
	report  *TickReport
}

// New creates an orchestrator with no entities.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		model:   statemodel.New(logger),
		blender: smoothing.NewBlender(),
		monitor: threshold.NewMonitor(),
		inbox:   NewInbox(),
		opts:    opts,
		logger:  logger,
	}
}

// Inbox returns the queue network goroutines push updates into.
func (o *Orchestrator) Inbox() *Inbox {
	return o.inbox
}

// Model exposes the entity state table.
func (o *Orchestrator) Model() *statemodel.Model {
	return o.model
}

// Now returns the time of the last tick.
func (o *Orchestrator) Now() float64 {
	return o.now
}

// Register adds an entity. Owned entities are tracked by the threshold
// monitor; a nil config gives the Static fallback.
func (o *Orchestrator) Register(id deadreckoning.EntityID, reg statemodel.Registration) error {
	if err := o.model.Register(id, reg); err != nil {
		return err
	}
	if reg.Owned {
		var cfg config.DeadReckoningConfig
		if reg.Config != nil {
			cfg = *reg.Config
		}
		o.monitor.Track(id, cfg)
	}
	return nil
}

// Unregister removes an entity along with its blend session and reference.
func (o *Orchestrator) Unregister(id deadreckoning.EntityID) error {
	o.blender.Cancel(id)
	o.monitor.Untrack(id)
	return o.model.Unregister(id)
}

// SetTrueState records the locally simulated state of an owned entity. It is
// read by the next Tick.
func (o *Orchestrator) SetTrueState(id deadreckoning.EntityID, s deadreckoning.State) error {
	entry, ok := o.model.Entry(id)
	if !ok {
		return fmt.Errorf("set true state %d: %w", id, statemodel.ErrNotFound)
	}
	if !o.model.Owned(id) {
		return fmt.Errorf("set true state %d: %w", id, ErrNotOwned)
	}
	if !s.Finite() || s.Orientation.Len() == 0 {
		return fmt.Errorf("set true state %d: %w", id, statemodel.ErrInvalidState)
	}

	s.Orientation = s.Orientation.Normalize()
	components.Truth.SetValue(entry, components.TruthData{State: s, Valid: true})
	return nil
}

// GetCurrentPose returns the pose computed by the last tick.
func (o *Orchestrator) GetCurrentPose(id deadreckoning.EntityID) (drmath.Pose, error) {
	entry, ok := o.model.Entry(id)
	if !ok {
		return drmath.Pose{}, fmt.Errorf("pose %d: %w", id, statemodel.ErrNotFound)
	}
	drs := components.DRState.Get(entry)
	if drs.Phase == netconfig.PhaseIdle {
		return drmath.Pose{}, fmt.Errorf("pose %d: %w", id, statemodel.ErrNoState)
	}
	return drs.Pose, nil
}

// Phase returns the entity's current phase.
func (o *Orchestrator) Phase(id deadreckoning.EntityID) (netconfig.Phase, error) {
	entry, ok := o.model.Entry(id)
	if !ok {
		return netconfig.PhaseIdle, fmt.Errorf("phase %d: %w", id, statemodel.ErrNotFound)
	}
	return components.DRState.Get(entry).Phase, nil
}

// ForcePublish makes the next tick publish the owned entity's state.
func (o *Orchestrator) ForcePublish(id deadreckoning.EntityID) error {
	if !o.model.Owned(id) {
		return fmt.Errorf("force publish %d: %w", id, ErrNotOwned)
	}
	return o.monitor.ForcePublish(id)
}

// Reset must be called when the clock jumps (resume after pause, rewind, or
// seek) before the next Tick at now. Stored timestamps are shifted so elapsed
// times are preserved, blends are dropped, the next update for every entity is
// accepted regardless of timestamp, and owned entities republish.
func (o *Orchestrator) Reset(now float64) error {
	if !drmath.FiniteFloat(now) {
		return fmt.Errorf("reset to %v: %w", now, ErrInvalidTick)
	}

	if o.started {
		shift := now - o.now
		o.model.Rebase(shift)
		o.monitor.Rebase(shift)
	}

	o.blender.CancelAll()
	o.model.MarkAllReset()
	o.monitor.RearmAll()
	for _, id := range o.model.IDs() {
		entry, ok := o.model.Entry(id)
		if !ok {
			continue
		}
		if drs := components.DRState.Get(entry); drs.Phase == netconfig.PhaseSmoothing {
			drs.Phase = netconfig.PhaseDeadReckoning
		}
	}

	o.now = now
	o.started = true
	o.logger.Printf("[orchestrator] reset clock to %.3f", now)
	return nil
}
