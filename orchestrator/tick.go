package orchestrator

import (
	"errors"
	"fmt"

	"github.com/automoto/drsync/components"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/drmath"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/smoothing"
	"github.com/automoto/drsync/statemodel"
	"github.com/automoto/drsync/tags"
	"github.com/yohamta/donburi"
)

// Tick advances the simulation to now. dt is the time since the previous
// tick. A clock that moves backward or carries non-finite values leaves every
// entity untouched.
func (o *Orchestrator) Tick(dt, now float64) (TickReport, error) {
	if !drmath.FiniteFloat(dt) || !drmath.FiniteFloat(now) || dt < 0 {
		return TickReport{}, fmt.Errorf("tick dt=%v now=%v: %w", dt, now, ErrInvalidTick)
	}
	if o.started && now < o.now {
		return TickReport{}, fmt.Errorf("tick now=%v after %v: %w", now, o.now, ErrClockBackward)
	}

	o.now = now
	o.started = true

	report := TickReport{Now: now, DeltaTime: dt}
	o.report = &report
	defer func() { o.report = nil }()

	for _, u := range o.inbox.Drain(o.opts.MaxUpdatesPerTick) {
		o.applyUpdate(u, now)
	}
	report.Pending = o.inbox.Len()

	o.model.Each(func(id deadreckoning.EntityID, entry *donburi.Entry) {
		if entry.HasComponent(tags.Owned) {
			o.updateOwned(id, entry, now)
			return
		}
		o.updateRemote(id, entry, now)
	})

	o.processEvents()
	return report, nil
}

func (o *Orchestrator) applyUpdate(u AuthoritativeUpdate, now float64) {
	id := u.EntityID
	if !o.model.Registered(id) {
		// A malformed first update must not leave an Idle entity behind.
		if err := statemodel.Validate(u.State); err != nil {
			o.logger.Printf("[orchestrator] dropped update for unknown entity %d: %v", id, err)
			o.report.Invalid++
			return
		}
		if err := o.registerImplicit(u); err != nil {
			o.logger.Printf("[orchestrator] dropped update for entity %d: %v", id, err)
			o.report.Invalid++
			return
		}
	}
	if o.model.Owned(id) {
		o.logger.Printf("[orchestrator] rejected update for entity %d: %v", id, ErrOwnedLocally)
		o.report.RejectedOwned++
		return
	}

	entry, _ := o.model.Entry(id)
	drs := components.DRState.Get(entry)
	settings := components.Settings.Get(entry)

	// The pose shown at now under the old reference is where a blend starts.
	from, hadPose := o.poseAt(id, entry, now)

	mode := statemodel.ApplyNormal
	if u.Reset {
		mode = statemodel.ApplyReset
	}
	if _, err := o.model.Apply(id, u.State, mode); err != nil {
		switch {
		case errors.Is(err, statemodel.ErrStale):
			o.report.Stale++
		case errors.Is(err, statemodel.ErrInvalidState):
			o.report.Invalid++
		default:
			o.logger.Printf("[orchestrator] apply failed for entity %d: %v", id, err)
		}
		return
	}
	o.report.Applied++

	wasFrozen := drs.Phase == netconfig.PhaseFrozen
	target := effectiveState(components.Authoritative.Get(entry).State, settings)

	drs.Phase = netconfig.PhaseDeadReckoning
	if hadPose && o.blender.Start(id, from, target, now, smoothing.ParamsFrom(settings.Config)) {
		drs.Phase = netconfig.PhaseSmoothing
	}

	if wasFrozen {
		ev := ResumedDeadReckoning{EntityID: id, At: now}
		o.report.Resumed = append(o.report.Resumed, ev)
		ResumedEvent.Publish(o.model.World(), ev)
	}
}

func (o *Orchestrator) registerImplicit(u AuthoritativeUpdate) error {
	reg := statemodel.Registration{}
	if u.Profile != "" {
		cfg, ok := o.opts.Profiles.Lookup(u.Profile)
		if !ok {
			o.logger.Printf("[orchestrator] unknown profile %q for entity %d, using static fallback", u.Profile, u.EntityID)
		} else {
			reg.Config = cfg
		}
	}
	if err := o.Register(u.EntityID, reg); err != nil {
		return err
	}
	o.report.Registered++
	return nil
}

// poseAt is the unclamped pose the current pipeline yields at now, before
// any update in this tick replaces the reference.
func (o *Orchestrator) poseAt(id deadreckoning.EntityID, entry *donburi.Entry, now float64) (drmath.Pose, bool) {
	if pose, status := o.blender.Evaluate(id, now); status != smoothing.NoSession {
		return pose, true
	}

	auth := components.Authoritative.Get(entry)
	if !auth.HasState {
		return drmath.Pose{}, false
	}
	settings := components.Settings.Get(entry)
	pose, _ := o.extrapolate(effectiveState(auth.State, settings), settings, now)
	return pose, true
}

func (o *Orchestrator) updateRemote(id deadreckoning.EntityID, entry *donburi.Entry, now float64) {
	drs := components.DRState.Get(entry)
	auth := components.Authoritative.Get(entry)
	if !auth.HasState {
		drs.Phase = netconfig.PhaseIdle
		return
	}
	settings := components.Settings.Get(entry)

	var pose drmath.Pose
	blended := false
	if drs.Phase == netconfig.PhaseSmoothing {
		p, status := o.blender.Evaluate(id, now)
		if status == smoothing.Blending {
			pose = p
			blended = true
		} else {
			drs.Phase = netconfig.PhaseDeadReckoning
		}
	}

	if !blended {
		var clamped bool
		pose, clamped = o.extrapolate(effectiveState(auth.State, settings), settings, now)
		switch {
		case clamped && drs.Phase != netconfig.PhaseFrozen:
			drs.Phase = netconfig.PhaseFrozen
			ev := EnteredFrozen{EntityID: id, At: now}
			o.report.Frozen = append(o.report.Frozen, ev)
			EnteredFrozenEvent.Publish(o.model.World(), ev)
		case !clamped && drs.Phase == netconfig.PhaseFrozen:
			// Only reachable after Reset moved the clock back.
			drs.Phase = netconfig.PhaseDeadReckoning
		}
	}

	if settings.Config.GroundClamp && o.opts.Ground != nil {
		pose.Position = o.opts.Ground.ClampToGround(id, pose.Position)
	}
	drs.Pose = pose
}

// extrapolate runs dead reckoning for now. Static-classified states never
// freeze.
func (o *Orchestrator) extrapolate(s deadreckoning.State, settings *components.SettingsData, now float64) (drmath.Pose, bool) {
	if s.Algorithm == netconfig.Static || deadreckoning.IsStatic(s) {
		return s.Pose(), false
	}
	return deadreckoning.Extrapolate(s, now-s.Timestamp, settings.Config.MaxExtrapolationTime)
}

func (o *Orchestrator) updateOwned(id deadreckoning.EntityID, entry *donburi.Entry, now float64) {
	drs := components.DRState.Get(entry)
	truth := components.Truth.Get(entry)
	if !truth.Valid {
		drs.Phase = netconfig.PhaseIdle
		return
	}
	drs.Pose = truth.State.Pose()
	drs.Phase = netconfig.PhaseDeadReckoning

	decision, err := o.monitor.Check(id, truth.State, now)
	if err != nil {
		o.logger.Printf("[orchestrator] threshold check failed for entity %d: %v", id, err)
		return
	}
	if !decision.Publish {
		return
	}

	// Receivers must accept the first state after a rewind despite its
	// older timestamp.
	decision.Reset = components.Authoritative.Get(entry).ResetPending

	// The model keeps what peers were last told.
	if _, err := o.model.Apply(id, decision.State, statemodel.ApplyReset); err != nil {
		o.logger.Printf("[orchestrator] could not record published state for entity %d: %v", id, err)
	}
	o.report.Publishes = append(o.report.Publishes, decision)
	PublishEvent.Publish(o.model.World(), decision)
}

// effectiveState applies the Static fallback for unconfigured entities.
func effectiveState(s deadreckoning.State, settings *components.SettingsData) deadreckoning.State {
	s.Algorithm = settings.Algorithm(s.Algorithm)
	return s
}
