package messages

// EntityUpdate carries one authoritative state. Peers send it for entities
// they own; the relay forwards it to everyone else.
type EntityUpdate struct {
	EntityID           uint64
	Timestamp          float64
	Position           [3]float64
	Orientation        [4]float64 // w, x, y, z
	LinearVelocity     [3]float64
	AngularVelocity    [3]float64 // body frame, rad/s
	LinearAcceleration [3]float64
	Algorithm          uint8
	Profile            string // DR profile receivers register the entity with
	Reset              bool   // sent after a rewind or seek; accepted regardless of timestamp
}

// EntityUpdateBatch is what the relay sends once per tick: the latest update
// for every entity that changed, at most one per entity.
type EntityUpdateBatch struct {
	Updates []EntityUpdate
}

// EntityRemoved is broadcast when an entity is destroyed or its owner leaves.
type EntityRemoved struct {
	EntityID uint64
}
