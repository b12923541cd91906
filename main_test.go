package main

import (
	"testing"

	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/drmath"
	"github.com/automoto/drsync/shared/netconfig"
)

func TestCirclePathExtrapolatesOnTrack(t *testing.T) {
	const dt = 0.05
	for now := 0.0; now < 5; now += 0.5 {
		s := circlePath(1, 3, 20, 8, now)
		s.Algorithm = netconfig.FVW

		predicted, _ := deadreckoning.Extrapolate(s, dt, 1)
		actual := circlePath(1, 3, 20, 8, now+dt)

		// Second-order prediction error over one short step is tiny.
		if d := drmath.Distance(predicted.Position, actual.Position); d > 1e-3 {
			t.Errorf("t=%v: position off by %v", now, d)
		}
		if a := drmath.AngularDistance(predicted.Orientation, actual.Orientation); a > 1e-6 {
			t.Errorf("t=%v: orientation off by %v rad", now, a)
		}
	}
}
