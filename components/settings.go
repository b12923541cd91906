package components

import (
	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/yohamta/donburi"
)

// SettingsData holds the dead reckoning config resolved at registration.
type SettingsData struct {
	Config     config.DeadReckoningConfig
	Configured bool // False = Static fallback, nothing is extrapolated
}

var Settings = donburi.NewComponentType[SettingsData]()

// Algorithm returns the algorithm to extrapolate with. Unconfigured entities
// always use Static.
func (s *SettingsData) Algorithm(requested netconfig.AlgorithmKind) netconfig.AlgorithmKind {
	if !s.Configured {
		return netconfig.Static
	}
	return requested
}
