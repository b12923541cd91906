// Package statemodel keeps the last authoritative state of every registered
// entity in a flat donburi world keyed by entity ID.
package statemodel

import (
	"errors"
	"fmt"
	"log"

	"github.com/automoto/drsync/archetypes"
	"github.com/automoto/drsync/components"
	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/tags"
	"github.com/yohamta/donburi"
)

var (
	ErrNotFound          = errors.New("entity not registered")
	ErrAlreadyRegistered = errors.New("entity already registered")
	ErrNoState           = errors.New("entity has no authoritative state")
	ErrStale             = errors.New("stale update")
	ErrInvalidState      = errors.New("invalid state")
)

// ApplyMode controls timestamp ordering checks in Apply.
type ApplyMode int

const (
	// ApplyNormal rejects updates older than the stored state.
	ApplyNormal ApplyMode = iota
	// ApplyReset accepts any timestamp; used after pause, rewind, or seek.
	ApplyReset
)

// Registration describes how an entity is registered.
type Registration struct {
	Config *config.DeadReckoningConfig // nil = Static fallback
	Owned  bool
}

// ApplyResult describes an accepted update.
type ApplyResult struct {
	Previous    deadreckoning.State
	HadPrevious bool
}

// Model is the entity state table.
type Model struct {
	world  donburi.World
	index  map[deadreckoning.EntityID]donburi.Entity
	order  []deadreckoning.EntityID
	logger *log.Logger
}

// New creates an empty model. A nil logger uses log.Default().
func New(logger *log.Logger) *Model {
	if logger == nil {
		logger = log.Default()
	}
	return &Model{
		world:  donburi.NewWorld(),
		index:  make(map[deadreckoning.EntityID]donburi.Entity),
		logger: logger,
	}
}

// World exposes the underlying donburi world for queries.
func (m *Model) World() donburi.World {
	return m.world
}

// Register creates an Idle entry for id.
func (m *Model) Register(id deadreckoning.EntityID, reg Registration) error {
	if _, ok := m.index[id]; ok {
		return fmt.Errorf("register %d: %w", id, ErrAlreadyRegistered)
	}

	settings := components.SettingsData{}
	if reg.Config != nil {
		if err := reg.Config.Validate(); err != nil {
			return fmt.Errorf("register %d: %w", id, err)
		}
		settings.Config = *reg.Config
		settings.Configured = true
	}

	var entry *donburi.Entry
	if reg.Owned {
		entry = archetypes.OwnedEntity.Spawn(m.world)
	} else {
		entry = archetypes.RemoteEntity.Spawn(m.world)
	}

	components.Identity.SetValue(entry, components.IdentityData{ID: id})
	components.Settings.SetValue(entry, settings)
	components.DRState.SetValue(entry, components.DRStateData{Phase: netconfig.PhaseIdle})

	m.index[id] = entry.Entity()
	m.order = append(m.order, id)
	return nil
}

// Unregister destroys the entry for id.
func (m *Model) Unregister(id deadreckoning.EntityID) error {
	entity, ok := m.index[id]
	if !ok {
		return fmt.Errorf("unregister %d: %w", id, ErrNotFound)
	}

	if m.world.Valid(entity) {
		m.world.Remove(entity)
	}
	delete(m.index, id)

	for i, other := range m.order {
		if other == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Registered reports whether id has an entry.
func (m *Model) Registered(id deadreckoning.EntityID) bool {
	_, ok := m.index[id]
	return ok
}

// Entry returns the world entry for id.
func (m *Model) Entry(id deadreckoning.EntityID) (*donburi.Entry, bool) {
	entity, ok := m.index[id]
	if !ok || !m.world.Valid(entity) {
		return nil, false
	}
	return m.world.Entry(entity), true
}

// Apply replaces the stored state for id wholesale. Stale and invalid updates
// leave the stored state untouched.
func (m *Model) Apply(id deadreckoning.EntityID, s deadreckoning.State, mode ApplyMode) (ApplyResult, error) {
	entry, ok := m.Entry(id)
	if !ok {
		return ApplyResult{}, fmt.Errorf("apply %d: %w", id, ErrNotFound)
	}

	if err := Validate(s); err != nil {
		m.logger.Printf("[statemodel] rejected update for entity %d: %v", id, err)
		return ApplyResult{}, fmt.Errorf("apply %d: %w", id, err)
	}

	auth := components.Authoritative.Get(entry)
	force := mode == ApplyReset || auth.ResetPending
	if auth.HasState && !force && s.Timestamp < auth.State.Timestamp {
		return ApplyResult{}, fmt.Errorf("apply %d: %w: t=%v older than stored t=%v",
			id, ErrStale, s.Timestamp, auth.State.Timestamp)
	}

	result := ApplyResult{Previous: auth.State, HadPrevious: auth.HasState}

	s.Orientation = s.Orientation.Normalize()
	auth.State = s
	auth.HasState = true
	auth.ResetPending = false
	return result, nil
}

// Validate reports ErrInvalidState for non-finite values, a zero-length
// orientation, or an unknown algorithm.
func Validate(s deadreckoning.State) error {
	if !s.Finite() {
		return fmt.Errorf("%w: non-finite values", ErrInvalidState)
	}
	if s.Orientation.Len() == 0 {
		return fmt.Errorf("%w: zero-length orientation", ErrInvalidState)
	}
	if !s.Algorithm.Valid() {
		return fmt.Errorf("%w: unknown algorithm %d", ErrInvalidState, s.Algorithm)
	}
	return nil
}

// Get returns the stored authoritative state for id.
func (m *Model) Get(id deadreckoning.EntityID) (deadreckoning.State, error) {
	entry, ok := m.Entry(id)
	if !ok {
		return deadreckoning.State{}, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	auth := components.Authoritative.Get(entry)
	if !auth.HasState {
		return deadreckoning.State{}, fmt.Errorf("get %d: %w", id, ErrNoState)
	}
	return auth.State, nil
}

// Settings returns the settings resolved at registration.
func (m *Model) Settings(id deadreckoning.EntityID) (components.SettingsData, error) {
	entry, ok := m.Entry(id)
	if !ok {
		return components.SettingsData{}, fmt.Errorf("settings %d: %w", id, ErrNotFound)
	}
	return *components.Settings.Get(entry), nil
}

// Owned reports whether id is registered as locally owned.
func (m *Model) Owned(id deadreckoning.EntityID) bool {
	entry, ok := m.Entry(id)
	return ok && entry.HasComponent(tags.Owned)
}

// MarkReset makes the next update for id bypass the timestamp check.
func (m *Model) MarkReset(id deadreckoning.EntityID) error {
	entry, ok := m.Entry(id)
	if !ok {
		return fmt.Errorf("mark reset %d: %w", id, ErrNotFound)
	}
	components.Authoritative.Get(entry).ResetPending = true
	return nil
}

// MarkAllReset marks every entity for a reset apply.
func (m *Model) MarkAllReset() {
	for _, id := range m.order {
		_ = m.MarkReset(id)
	}
}

// Rebase shifts every stored timestamp by shift seconds so elapsed time
// since the last update is preserved across a clock jump.
func (m *Model) Rebase(shift float64) {
	m.Each(func(_ deadreckoning.EntityID, entry *donburi.Entry) {
		auth := components.Authoritative.Get(entry)
		if auth.HasState {
			auth.State.Timestamp += shift
		}
	})
}

// IDs returns registered IDs in registration order.
func (m *Model) IDs() []deadreckoning.EntityID {
	out := make([]deadreckoning.EntityID, len(m.order))
	copy(out, m.order)
	return out
}

// Each visits every entity in registration order.
func (m *Model) Each(fn func(id deadreckoning.EntityID, entry *donburi.Entry)) {
	for _, id := range m.IDs() {
		if entry, ok := m.Entry(id); ok {
			fn(id, entry)
		}
	}
}

// Len returns the number of registered entities.
func (m *Model) Len() int {
	return len(m.order)
}
