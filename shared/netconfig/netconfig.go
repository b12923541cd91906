// Package netconfig defines lightweight enums shared between peers, the relay,
// and the dead reckoning core. It must have zero third-party dependencies so
// every binary can import it.
package netconfig

// AlgorithmKind selects how an entity's pose is extrapolated between updates.
type AlgorithmKind int

const (
	// Static holds the stored pose; no extrapolation.
	Static AlgorithmKind = iota
	// FPW integrates linear velocity only, orientation fixed.
	FPW
	// RVW integrates velocity and acceleration, orientation fixed.
	RVW
	// FVW integrates velocity and acceleration, and rotates by angular velocity.
	FVW
)

// AlgorithmNames maps AlgorithmKind to its wire/config name.
var AlgorithmNames = map[AlgorithmKind]string{
	Static: "static",
	FPW:    "fpw",
	RVW:    "rvw",
	FVW:    "fvw",
}

func (k AlgorithmKind) String() string {
	if name, ok := AlgorithmNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is one of the known algorithm kinds.
func (k AlgorithmKind) Valid() bool {
	_, ok := AlgorithmNames[k]
	return ok
}

// ParseAlgorithm returns the kind for a config name, or Static and false.
func ParseAlgorithm(name string) (AlgorithmKind, bool) {
	for k, n := range AlgorithmNames {
		if n == name {
			return k, true
		}
	}
	return Static, false
}

// Phase is the per-entity dead reckoning phase driven by the orchestrator.
type Phase int

const (
	PhaseIdle          Phase = iota // Registered, no authoritative state yet
	PhaseDeadReckoning              // Normal extrapolation
	PhaseSmoothing                  // Blend toward a newer update in progress
	PhaseFrozen                     // Exceeded max extrapolation time
)

var phaseNames = map[Phase]string{
	PhaseIdle:          "idle",
	PhaseDeadReckoning: "dead_reckoning",
	PhaseSmoothing:     "smoothing",
	PhaseFrozen:        "frozen",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}
