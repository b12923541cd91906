package components

import (
	"github.com/automoto/drsync/shared/drmath"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// DRStateData is recomputed every tick and never persisted.
type DRStateData struct {
	Pose  drmath.Pose
	Phase netconfig.Phase
}

var DRState = donburi.NewComponentType[DRStateData]()
