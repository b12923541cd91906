package components

import (
	"github.com/automoto/drsync/deadreckoning"
	"github.com/yohamta/donburi"
)

// TruthData is the locally simulated state of an owned entity, supplied by
// the simulation before each tick.
type TruthData struct {
	State deadreckoning.State
	Valid bool
}

var Truth = donburi.NewComponentType[TruthData]()
