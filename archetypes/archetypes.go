package archetypes

import (
	"github.com/automoto/drsync/components"
	"github.com/automoto/drsync/tags"
	"github.com/yohamta/donburi"
)

var (
	RemoteEntity = newArchetype(
		tags.Remote,
		components.Identity,
		components.Authoritative,
		components.Settings,
		components.DRState,
	)
	OwnedEntity = newArchetype(
		tags.Owned,
		components.Identity,
		components.Authoritative,
		components.Settings,
		components.DRState,
		components.Truth,
	)
)

type archetype struct {
	components []donburi.IComponentType
}

func newArchetype(cs ...donburi.IComponentType) *archetype {
	return &archetype{
		components: cs,
	}
}

func (a *archetype) Spawn(world donburi.World, cs ...donburi.IComponentType) *donburi.Entry {
	all := make([]donburi.IComponentType, 0, len(a.components)+len(cs))
	all = append(all, a.components...)
	all = append(all, cs...)
	return world.Entry(world.Create(all...))
}
