// Package drmath holds the pose type and the vector/quaternion helpers used by
// dead reckoning, smoothing, and threshold checks. Built on mgl64 so the same
// math runs on peers and the relay.
package drmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a position plus orientation.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// IdentityPose returns a pose at the origin with identity orientation.
func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// FiniteFloat reports whether f is neither NaN nor ±Inf.
func FiniteFloat(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FiniteVec reports whether every component of v is finite.
func FiniteVec(v mgl64.Vec3) bool {
	return FiniteFloat(v[0]) && FiniteFloat(v[1]) && FiniteFloat(v[2])
}

// FiniteQuat reports whether every component of q is finite.
func FiniteQuat(q mgl64.Quat) bool {
	return FiniteFloat(q.W) && FiniteVec(q.V)
}

// IsZeroVec reports whether v is exactly zero.
func IsZeroVec(v mgl64.Vec3) bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

// Distance returns the euclidean distance between two positions.
func Distance(a, b mgl64.Vec3) float64 {
	return a.Sub(b).Len()
}

// AngularDistance returns the rotation angle in radians, in [0, π], needed to
// go from a to b. q and -q are the same rotation and yield 0.
func AngularDistance(a, b mgl64.Quat) float64 {
	dot := math.Abs(a.Normalize().Dot(b.Normalize()))
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot)
}

// IntegrateOrientation rotates q by a body-frame angular velocity omega
// (rad/s) applied for t seconds: q ⊗ exp(½·ω·t).
func IntegrateOrientation(q mgl64.Quat, omega mgl64.Vec3, t float64) mgl64.Quat {
	rate := omega.Len()
	angle := rate * t
	if angle == 0 {
		return q
	}
	axis := omega.Mul(1 / rate)
	return q.Mul(mgl64.QuatRotate(angle, axis)).Normalize()
}

// Lerp interpolates positions with weight w in [0, 1]. w == 1 yields b exactly.
func Lerp(a, b mgl64.Vec3, w float64) mgl64.Vec3 {
	return a.Mul(1 - w).Add(b.Mul(w))
}

// Slerp interpolates orientations along the shortest arc.
func Slerp(a, b mgl64.Quat, w float64) mgl64.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl64.QuatSlerp(a, b, w)
}

// BlendPose blends from toward to with weight w. w <= 0 returns from and
// w >= 1 returns to, both unchanged.
func BlendPose(from, to Pose, w float64) Pose {
	if w <= 0 {
		return from
	}
	if w >= 1 {
		return to
	}
	return Pose{
		Position:    Lerp(from.Position, to.Position, w),
		Orientation: Slerp(from.Orientation, to.Orientation, w),
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
