// Package protocol converts between wire messages and dead reckoning states.
// Both peers and the relay use it so they agree on the layout.
package protocol

import (
	"errors"
	"fmt"

	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/messages"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/go-gl/mathgl/mgl64"
)

// Version is checked by the relay on join.
const Version = "drsync/1"

var ErrBadMessage = errors.New("malformed entity update")

// FromState builds the wire form of s.
func FromState(id deadreckoning.EntityID, s deadreckoning.State, profile string) messages.EntityUpdate {
	return messages.EntityUpdate{
		EntityID:           uint64(id),
		Timestamp:          s.Timestamp,
		Position:           s.Position,
		Orientation:        [4]float64{s.Orientation.W, s.Orientation.V[0], s.Orientation.V[1], s.Orientation.V[2]},
		LinearVelocity:     s.LinearVelocity,
		AngularVelocity:    s.AngularVelocity,
		LinearAcceleration: s.LinearAcceleration,
		Algorithm:          uint8(s.Algorithm),
		Profile:            profile,
	}
}

// ToState decodes an update. Non-finite values, a zero orientation, or an
// unknown algorithm are rejected with ErrBadMessage.
func ToState(m messages.EntityUpdate) (deadreckoning.EntityID, deadreckoning.State, error) {
	id := deadreckoning.EntityID(m.EntityID)
	s := deadreckoning.State{
		Position:           m.Position,
		Orientation:        mgl64.Quat{W: m.Orientation[0], V: mgl64.Vec3{m.Orientation[1], m.Orientation[2], m.Orientation[3]}},
		LinearVelocity:     m.LinearVelocity,
		AngularVelocity:    m.AngularVelocity,
		LinearAcceleration: m.LinearAcceleration,
		Timestamp:          m.Timestamp,
		Algorithm:          netconfig.AlgorithmKind(m.Algorithm),
	}

	if !s.Algorithm.Valid() {
		return id, s, fmt.Errorf("entity %d: %w: algorithm %d", id, ErrBadMessage, m.Algorithm)
	}
	if !s.Finite() {
		return id, s, fmt.Errorf("entity %d: %w: non-finite values", id, ErrBadMessage)
	}
	if s.Orientation.Len() == 0 {
		return id, s, fmt.Errorf("entity %d: %w: zero orientation", id, ErrBadMessage)
	}
	return id, s, nil
}

// Removed builds an EntityRemoved message.
func Removed(id deadreckoning.EntityID) messages.EntityRemoved {
	return messages.EntityRemoved{EntityID: uint64(id)}
}

