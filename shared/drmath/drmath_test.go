package drmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const eps = 1e-9

func TestAngularDistance(t *testing.T) {
	ident := mgl64.QuatIdent()
	quarter := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})

	tests := []struct {
		name string
		a, b mgl64.Quat
		want float64
	}{
		{"same", ident, ident, 0},
		{"quarter turn", ident, quarter, math.Pi / 2},
		{"negated is same rotation", quarter, quarter.Scale(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngularDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("AngularDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntegrateOrientation(t *testing.T) {
	q := IntegrateOrientation(mgl64.QuatIdent(), mgl64.Vec3{0, math.Pi / 2, 0}, 1)
	got := q.Rotate(mgl64.Vec3{1, 0, 0})
	want := mgl64.Vec3{0, 0, -1}
	if Distance(got, want) > 1e-9 {
		t.Errorf("rotated x axis = %v, want %v", got, want)
	}

	// Zero angular velocity must return the input untouched.
	in := mgl64.QuatRotate(0.3, mgl64.Vec3{1, 0, 0})
	if out := IntegrateOrientation(in, mgl64.Vec3{}, 5); out != in {
		t.Errorf("zero omega changed orientation: %v -> %v", in, out)
	}
}

func TestBlendPoseBoundaries(t *testing.T) {
	from := Pose{Position: mgl64.Vec3{0, 0, 0}, Orientation: mgl64.QuatIdent()}
	to := Pose{Position: mgl64.Vec3{10, 0, 0}, Orientation: mgl64.QuatRotate(1, mgl64.Vec3{0, 0, 1})}

	if got := BlendPose(from, to, 0); got != from {
		t.Errorf("w=0: got %v, want %v", got, from)
	}
	if got := BlendPose(from, to, 1); got != to {
		t.Errorf("w=1: got %v, want %v", got, to)
	}

	mid := BlendPose(from, to, 0.5)
	if math.Abs(mid.Position.X()-5) > eps {
		t.Errorf("w=0.5 position = %v, want 5", mid.Position.X())
	}
	if d := AngularDistance(mid.Orientation, from.Orientation); math.Abs(d-0.5) > 1e-6 {
		t.Errorf("w=0.5 angle from start = %v, want 0.5", d)
	}
}

func TestSlerpTakesShortestArc(t *testing.T) {
	a := mgl64.QuatIdent()
	b := mgl64.QuatRotate(0.2, mgl64.Vec3{0, 1, 0}).Scale(-1)

	mid := Slerp(a, b, 0.5)
	if d := AngularDistance(a, mid); math.Abs(d-0.1) > 1e-6 {
		t.Errorf("half-way angle = %v, want 0.1", d)
	}
}

func TestFiniteChecks(t *testing.T) {
	if !FiniteVec(mgl64.Vec3{1, 2, 3}) {
		t.Error("finite vector reported non-finite")
	}
	if FiniteVec(mgl64.Vec3{1, math.NaN(), 3}) {
		t.Error("NaN vector reported finite")
	}
	if FiniteQuat(mgl64.Quat{W: math.Inf(1)}) {
		t.Error("Inf quaternion reported finite")
	}
}
