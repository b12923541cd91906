package components

import (
	"github.com/automoto/drsync/deadreckoning"
	"github.com/yohamta/donburi"
)

// IdentityData links a world entry back to its stable entity ID.
type IdentityData struct {
	ID deadreckoning.EntityID
}

var Identity = donburi.NewComponentType[IdentityData]()
