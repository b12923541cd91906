package orchestrator

import (
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/threshold"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
)

// EnteredFrozen fires once when an entity's extrapolation hits its bound.
type EnteredFrozen struct {
	EntityID deadreckoning.EntityID
	At       float64
}

// ResumedDeadReckoning fires when an update arrives for a frozen entity.
type ResumedDeadReckoning struct {
	EntityID deadreckoning.EntityID
	At       float64
}

// PublishDecision tells the network layer to send State for an owned entity.
type PublishDecision = threshold.Decision

var (
	EnteredFrozenEvent = events.NewEventType[EnteredFrozen]()
	ResumedEvent       = events.NewEventType[ResumedDeadReckoning]()
	PublishEvent       = events.NewEventType[PublishDecision]()
)

// OnEnteredFrozen subscribes fn to freeze diagnostics. Handlers run on the
// sim thread at the end of Tick.
func (o *Orchestrator) OnEnteredFrozen(fn func(EnteredFrozen)) {
	EnteredFrozenEvent.Subscribe(o.model.World(), func(_ donburi.World, ev EnteredFrozen) {
		fn(ev)
	})
}

// OnResumed subscribes fn to resume diagnostics.
func (o *Orchestrator) OnResumed(fn func(ResumedDeadReckoning)) {
	ResumedEvent.Subscribe(o.model.World(), func(_ donburi.World, ev ResumedDeadReckoning) {
		fn(ev)
	})
}

// OnPublish subscribes fn to publish decisions for owned entities.
func (o *Orchestrator) OnPublish(fn func(PublishDecision)) {
	PublishEvent.Subscribe(o.model.World(), func(_ donburi.World, ev PublishDecision) {
		fn(ev)
	})
}

func (o *Orchestrator) processEvents() {
	w := o.model.World()
	ResumedEvent.ProcessEvents(w)
	EnteredFrozenEvent.ProcessEvents(w)
	PublishEvent.ProcessEvents(w)
}

// TickReport summarises one Tick.
type TickReport struct {
	Now           float64
	DeltaTime     float64
	Applied       int
	Stale         int
	Invalid       int
	RejectedOwned int
	Registered    int // implicit registrations from first updates
	Pending       int // updates left in the inbox by MaxUpdatesPerTick
	Publishes     []PublishDecision
	Frozen        []EnteredFrozen
	Resumed       []ResumedDeadReckoning
}
