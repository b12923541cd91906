package components

import (
	"github.com/automoto/drsync/deadreckoning"
	"github.com/yohamta/donburi"
)

// AuthoritativeData stores the last accepted authoritative state.
type AuthoritativeData struct {
	State        deadreckoning.State
	HasState     bool // False while the entity is Idle
	ResetPending bool // Next update is accepted regardless of timestamp
}

var Authoritative = donburi.NewComponentType[AuthoritativeData]()
