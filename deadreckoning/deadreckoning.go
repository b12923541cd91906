// Package deadreckoning extrapolates an entity's pose from its last
// authoritative kinematic state. Everything here is a pure function of its
// inputs so replays reproduce bit-identical poses.
package deadreckoning

import (
	"github.com/automoto/drsync/shared/drmath"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/go-gl/mathgl/mgl64"
)

// EntityID identifies an entity for its whole lifetime.
type EntityID uint64

// State is the authoritative kinematic state published by an entity's owner.
// Receivers replace it wholesale; fields are never merged.
type State struct {
	Position           mgl64.Vec3
	Orientation        mgl64.Quat
	LinearVelocity     mgl64.Vec3
	AngularVelocity    mgl64.Vec3 // body frame, rad/s
	LinearAcceleration mgl64.Vec3
	Timestamp          float64 // simulation seconds
	Algorithm          netconfig.AlgorithmKind
}

// Pose returns the stored pose without extrapolation.
func (s State) Pose() drmath.Pose {
	return drmath.Pose{Position: s.Position, Orientation: s.Orientation}
}

// Finite reports whether every vector and the orientation are free of NaN/Inf.
func (s State) Finite() bool {
	return drmath.FiniteVec(s.Position) &&
		drmath.FiniteQuat(s.Orientation) &&
		drmath.FiniteVec(s.LinearVelocity) &&
		drmath.FiniteVec(s.AngularVelocity) &&
		drmath.FiniteVec(s.LinearAcceleration) &&
		drmath.FiniteFloat(s.Timestamp)
}

// IsStatic reports whether the state carries no motion at all, in which case
// extrapolation can be skipped regardless of the algorithm.
func IsStatic(s State) bool {
	return drmath.IsZeroVec(s.LinearVelocity) &&
		drmath.IsZeroVec(s.AngularVelocity) &&
		drmath.IsZeroVec(s.LinearAcceleration)
}

// Extrapolate returns the pose of s after elapsed seconds. elapsed is clamped
// to [0, maxExtrapolation]; clamped is true when elapsed exceeded the bound
// and the returned pose is the frozen pose at maxExtrapolation.
func Extrapolate(s State, elapsed, maxExtrapolation float64) (pose drmath.Pose, clamped bool) {
	if !drmath.FiniteFloat(elapsed) || elapsed < 0 {
		elapsed = 0
	}
	if maxExtrapolation < 0 {
		maxExtrapolation = 0
	}
	if elapsed > maxExtrapolation {
		elapsed = maxExtrapolation
		clamped = true
	}

	pose = s.Pose()
	if elapsed == 0 {
		return pose, clamped
	}

	switch s.Algorithm {
	case netconfig.FPW:
		pose.Position = s.Position.Add(s.LinearVelocity.Mul(elapsed))
	case netconfig.RVW:
		pose.Position = secondOrder(s, elapsed)
	case netconfig.FVW:
		pose.Position = secondOrder(s, elapsed)
		pose.Orientation = drmath.IntegrateOrientation(s.Orientation, s.AngularVelocity, elapsed)
	}
	return pose, clamped
}

// secondOrder computes p + v·t + ½·a·t².
func secondOrder(s State, t float64) mgl64.Vec3 {
	return s.Position.
		Add(s.LinearVelocity.Mul(t)).
		Add(s.LinearAcceleration.Mul(0.5 * t * t))
}
