// Package smoothing blends an entity's displayed pose toward a newly received
// authoritative state so updates never cause a visible jump.
//
// A session interpolates from a fixed start pose to the moving extrapolation
// of the new reference state. The blend weight follows the configured easing
// curve: "linear" is evaluated in float64 as elapsed/duration, the other
// curves use gween's ease functions. Weights are clamped to [0, 1], weight 0
// returns the start pose exactly, and the session ends as soon as
// now-start reaches duration, returning the reference extrapolation exactly.
package smoothing

import (
	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/drmath"
	"github.com/tanema/gween/ease"
)

// endTolerance absorbs float rounding in now-start so a session scheduled to
// end at exactly start+duration does end there.
const endTolerance = 1e-9

// Status reports what Evaluate produced.
type Status int

const (
	// NoSession means no blend is active; the caller extrapolates directly.
	NoSession Status = iota
	// Blending means the pose is an interpolation.
	Blending
	// Finished means the session just ended; the pose is the exact
	// extrapolation of the target and the session has been discarded.
	Finished
)

// Params configures a session.
type Params struct {
	Duration         float64 // seconds
	MaxExtrapolation float64 // clamp for the target extrapolation
	Easing           string  // config.Easing* name, empty = linear
}

// ParamsFrom builds session parameters from an entity's config.
func ParamsFrom(c config.DeadReckoningConfig) Params {
	return Params{
		Duration:         c.BlendDuration,
		MaxExtrapolation: c.MaxExtrapolationTime,
		Easing:           c.Easing,
	}
}

// Session is one in-flight blend.
type Session struct {
	From   drmath.Pose
	Target deadreckoning.State
	Start  float64
	Params Params
}

// TargetPose extrapolates the session's reference state to now.
func (s *Session) TargetPose(now float64) drmath.Pose {
	pose, _ := deadreckoning.Extrapolate(s.Target, now-s.Target.Timestamp, s.Params.MaxExtrapolation)
	return pose
}

// Blender owns at most one session per entity.
type Blender struct {
	sessions map[deadreckoning.EntityID]*Session
}

// NewBlender creates a blender with no sessions.
func NewBlender() *Blender {
	return &Blender{
		sessions: make(map[deadreckoning.EntityID]*Session),
	}
}

// Start begins a blend from the given pose toward target, replacing any
// existing session for id. A non-positive duration starts nothing, cancels
// any existing session, and returns false.
func (b *Blender) Start(id deadreckoning.EntityID, from drmath.Pose, target deadreckoning.State, now float64, p Params) bool {
	if p.Duration <= 0 {
		delete(b.sessions, id)
		return false
	}
	b.sessions[id] = &Session{
		From:   from,
		Target: target,
		Start:  now,
		Params: p,
	}
	return true
}

// Evaluate returns the blended pose for id at now.
func (b *Blender) Evaluate(id deadreckoning.EntityID, now float64) (drmath.Pose, Status) {
	s, ok := b.sessions[id]
	if !ok {
		return drmath.Pose{}, NoSession
	}

	target := s.TargetPose(now)
	elapsed := now - s.Start
	if elapsed >= s.Params.Duration-endTolerance {
		delete(b.sessions, id)
		return target, Finished
	}

	w := Weight(s.Params.Easing, elapsed, s.Params.Duration)
	return drmath.BlendPose(s.From, target, w), Blending
}

// Cancel discards the session for id, if any.
func (b *Blender) Cancel(id deadreckoning.EntityID) {
	delete(b.sessions, id)
}

// CancelAll discards every session.
func (b *Blender) CancelAll() {
	clear(b.sessions)
}

// Active reports whether id has a session.
func (b *Blender) Active(id deadreckoning.EntityID) bool {
	_, ok := b.sessions[id]
	return ok
}

// Session returns a copy of the session for id.
func (b *Blender) Session(id deadreckoning.EntityID) (Session, bool) {
	s, ok := b.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Rebase shifts every session start and target timestamp by shift seconds.
func (b *Blender) Rebase(shift float64) {
	for _, s := range b.sessions {
		s.Start += shift
		s.Target.Timestamp += shift
	}
}

// Len returns the number of active sessions.
func (b *Blender) Len() int {
	return len(b.sessions)
}

// Weight maps elapsed time to a blend weight in [0, 1].
func Weight(easing string, elapsed, duration float64) float64 {
	if duration <= 0 || elapsed >= duration {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}

	var w float64
	switch easing {
	case config.EasingInOutQuad:
		w = float64(ease.InOutQuad(float32(elapsed), 0, 1, float32(duration)))
	case config.EasingInOutCubic:
		w = float64(ease.InOutCubic(float32(elapsed), 0, 1, float32(duration)))
	case config.EasingInOutSine:
		w = float64(ease.InOutSine(float32(elapsed), 0, 1, float32(duration)))
	default:
		w = elapsed / duration
	}
	return drmath.Clamp(w, 0, 1)
}
