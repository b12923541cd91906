package config

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConfig is returned by Validate for unusable dead reckoning settings.
var ErrInvalidConfig = errors.New("invalid dead reckoning config")

// Easing curve names understood by the smoothing blender.
const (
	EasingLinear     = "linear"
	EasingInOutQuad  = "inOutQuad"
	EasingInOutCubic = "inOutCubic"
	EasingInOutSine  = "inOutSine"
)

// EasingNames lists every supported easing curve.
var EasingNames = []string{EasingLinear, EasingInOutQuad, EasingInOutCubic, EasingInOutSine}

// DeadReckoningConfig contains the per-entity dead reckoning settings. There
// are no built-in numeric defaults: values come from flags or saved profiles.
type DeadReckoningConfig struct {
	// Publishing (owning side)
	PositionThreshold    float64 `json:"positionThreshold"`    // world units
	OrientationThreshold float64 `json:"orientationThreshold"` // radians
	HeartbeatInterval    float64 `json:"heartbeatInterval"`    // seconds, 0 = no heartbeat

	// Extrapolation (receiving side)
	MaxExtrapolationTime float64 `json:"maxExtrapolationTime"` // seconds

	// Smoothing
	BlendDuration float64 `json:"blendDuration"` // seconds, 0 = snap
	Easing        string  `json:"easing"`        // one of EasingNames, empty = linear

	// Ground-relative entities are clamped to terrain after extrapolation
	GroundClamp bool `json:"groundClamp"`
}

// Validate checks that the config can drive extrapolation and publishing.
func (c DeadReckoningConfig) Validate() error {
	if c.PositionThreshold <= 0 {
		return fmt.Errorf("%w: positionThreshold must be > 0, got %v", ErrInvalidConfig, c.PositionThreshold)
	}
	if c.OrientationThreshold <= 0 {
		return fmt.Errorf("%w: orientationThreshold must be > 0, got %v", ErrInvalidConfig, c.OrientationThreshold)
	}
	if c.MaxExtrapolationTime <= 0 {
		return fmt.Errorf("%w: maxExtrapolationTime must be > 0, got %v", ErrInvalidConfig, c.MaxExtrapolationTime)
	}
	if c.BlendDuration < 0 {
		return fmt.Errorf("%w: blendDuration must be >= 0, got %v", ErrInvalidConfig, c.BlendDuration)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeatInterval must be >= 0, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.Easing != "" && !knownEasing(c.Easing) {
		return fmt.Errorf("%w: unknown easing %q", ErrInvalidConfig, c.Easing)
	}
	return nil
}

func knownEasing(name string) bool {
	for _, n := range EasingNames {
		if n == name {
			return true
		}
	}
	return false
}

// ProfileSet holds named dead reckoning profiles, e.g. "vehicle", "infantry".
type ProfileSet map[string]DeadReckoningConfig

// Lookup returns a copy of the named profile.
func (p ProfileSet) Lookup(name string) (*DeadReckoningConfig, bool) {
	c, ok := p[name]
	if !ok {
		return nil, false
	}
	return &c, true
}

// Names returns profile names in sorted order.
func (p ProfileSet) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every profile.
func (p ProfileSet) Validate() error {
	for _, name := range p.Names() {
		if err := p[name].Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	return nil
}

// NetworkConfig contains relay and tick settings shared by peers and the relay.
type NetworkConfig struct {
	TickRate          int    // ticks per second
	MaxUpdatesPerTick int    // inbox drain cap per tick, 0 = drain everything
	RelayPort         uint   // relay listen port
	IDBlockSize       uint64 // entity IDs handed to each peer on join
}

// Global configuration instances
var (
	Net      NetworkConfig
	Profiles ProfileSet
)

func init() {
	Net = NetworkConfig{
		TickRate:          20,
		MaxUpdatesPerTick: 0,
		RelayPort:         7373,
		IDBlockSize:       1 << 20,
	}

	// Filled from the profile store or flags at startup.
	Profiles = ProfileSet{}
}
