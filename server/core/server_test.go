package core

import (
	"io"
	"log"
	"math"
	"sync"
	"testing"

	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/orchestrator"
	"github.com/automoto/drsync/shared/messages"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/shared/protocol"
	"github.com/go-gl/mathgl/mgl64"
)

type fakePeer struct {
	id string

	mu   sync.Mutex
	sent []any
}

func (p *fakePeer) Id() string { return p.id }

func (p *fakePeer) SendMessage(msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) take() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.sent
	p.sent = nil
	return out
}

func testServer(maxPerTick int) *Server {
	return NewServer(config.NetworkConfig{
		TickRate:          20,
		MaxUpdatesPerTick: maxPerTick,
		IDBlockSize:       100,
	}, "test relay", protocol.Version)
}

func join(t *testing.T, s *Server, id string) (*fakePeer, messages.JoinAccepted) {
	t.Helper()
	p := &fakePeer{id: id}
	s.onConnect(p)
	s.onJoin(p, messages.JoinRequest{Version: protocol.Version, PeerName: id})

	sent := p.take()
	if len(sent) == 0 {
		t.Fatalf("%s got no join reply", id)
	}
	accepted, ok := sent[0].(messages.JoinAccepted)
	if !ok {
		t.Fatalf("%s join reply = %#v, want JoinAccepted", id, sent[0])
	}
	// Put any late-join snapshot back for the caller.
	p.sent = sent[1:]
	return p, accepted
}

func entityUpdate(id uint64, x, ts float64) messages.EntityUpdate {
	return protocol.FromState(deadreckoning.EntityID(id), deadreckoning.State{
		Position:       mgl64.Vec3{x, 0, 0},
		Orientation:    mgl64.QuatIdent(),
		LinearVelocity: mgl64.Vec3{1, 0, 0},
		Timestamp:      ts,
		Algorithm:      netconfig.FPW,
	}, "vehicle")
}

func batches(t *testing.T, sent []any) []messages.EntityUpdate {
	t.Helper()
	var out []messages.EntityUpdate
	for _, m := range sent {
		b, ok := m.(messages.EntityUpdateBatch)
		if !ok {
			t.Fatalf("unexpected message %#v", m)
		}
		out = append(out, b.Updates...)
	}
	return out
}

func TestJoinAssignsDisjointBlocks(t *testing.T) {
	s := testServer(0)
	_, a := join(t, s, "a")
	_, b := join(t, s, "b")

	if a.SiteID == "" || a.SiteID == b.SiteID {
		t.Errorf("site IDs %q and %q not unique", a.SiteID, b.SiteID)
	}
	if a.IDBase == 0 || a.IDBlock != 100 || b.IDBase != a.IDBase+100 {
		t.Errorf("blocks a=[%d,+%d) b=[%d,+%d)", a.IDBase, a.IDBlock, b.IDBase, b.IDBlock)
	}
	if s.PeerCount() != 2 {
		t.Errorf("PeerCount() = %d", s.PeerCount())
	}
}

func TestJoinRejectsWrongVersion(t *testing.T) {
	s := testServer(0)
	p := &fakePeer{id: "old"}
	s.onConnect(p)
	s.onJoin(p, messages.JoinRequest{Version: "drsync/0"})

	sent := p.take()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if _, ok := sent[0].(messages.JoinRejected); !ok {
		t.Errorf("reply = %#v, want JoinRejected", sent[0])
	}
}

func TestRelayCoalescesPerTick(t *testing.T) {
	s := testServer(0)
	a, acc := join(t, s, "a")
	b, _ := join(t, s, "b")
	id := acc.IDBase + 1

	s.onUpdate(a, entityUpdate(id, 1, 1.0))
	s.onUpdate(a, entityUpdate(id, 2, 1.1))
	s.onUpdate(a, entityUpdate(id, 0, 0.5)) // stale
	s.Flush()

	got := batches(t, b.take())
	if len(got) != 1 {
		t.Fatalf("b received %d updates, want 1 coalesced", len(got))
	}
	if got[0].Position[0] != 2 || got[0].Timestamp != 1.1 {
		t.Errorf("forwarded update = %+v, want latest x=2 t=1.1", got[0])
	}
	if len(a.take()) != 0 {
		t.Error("owner received its own update")
	}

	s.Flush()
	if len(b.take()) != 0 {
		t.Error("update forwarded twice")
	}
}

func TestRelayDropsForeignIDs(t *testing.T) {
	s := testServer(0)
	a, accA := join(t, s, "a")
	b, _ := join(t, s, "b")

	// a tries to speak for an entity in b's block and outside any block.
	s.onUpdate(a, entityUpdate(accA.IDBase+100, 1, 1))
	s.onUpdate(a, entityUpdate(3, 1, 1))
	s.Flush()

	if n := len(b.take()); n != 0 {
		t.Errorf("b received %d messages for foreign IDs", n)
	}
	if s.EntityCount() != 0 {
		t.Errorf("EntityCount() = %d, want 0", s.EntityCount())
	}
}

func TestBandwidthCap(t *testing.T) {
	s := testServer(2)
	a, acc := join(t, s, "a")
	b, _ := join(t, s, "b")

	for i := uint64(0); i < 5; i++ {
		s.onUpdate(a, entityUpdate(acc.IDBase+i, float64(i), 1))
	}

	for tick, want := range []int{2, 2, 1, 0} {
		s.Flush()
		if got := len(batches(t, b.take())); got != want {
			t.Errorf("tick %d forwarded %d updates, want %d", tick, got, want)
		}
	}
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	s := testServer(0)
	a, acc := join(t, s, "a")
	s.onUpdate(a, entityUpdate(acc.IDBase, 7, 1))
	s.onUpdate(a, entityUpdate(acc.IDBase+1, 8, 1))
	s.Flush()

	late, _ := join(t, s, "late")
	got := batches(t, late.take())
	if len(got) != 2 {
		t.Fatalf("late joiner snapshot has %d updates, want 2", len(got))
	}
	if got[0].Position[0] != 7 || got[0].Profile != "vehicle" {
		t.Errorf("snapshot[0] = %+v", got[0])
	}
}

func TestDisconnectRemovesEntities(t *testing.T) {
	s := testServer(0)
	a, acc := join(t, s, "a")
	b, _ := join(t, s, "b")
	s.onUpdate(a, entityUpdate(acc.IDBase, 1, 1))
	s.onUpdate(a, entityUpdate(acc.IDBase+1, 1, 1))

	s.onDisconnect(a, nil)

	var removed []uint64
	for _, m := range b.take() {
		if r, ok := m.(messages.EntityRemoved); ok {
			removed = append(removed, r.EntityID)
		}
	}
	if len(removed) != 2 || removed[0] != acc.IDBase || removed[1] != acc.IDBase+1 {
		t.Errorf("removals = %v, want both of a's entities in order", removed)
	}
	if s.EntityCount() != 0 {
		t.Errorf("EntityCount() = %d after disconnect", s.EntityCount())
	}

	// Pending updates of a departed peer are never forwarded.
	s.Flush()
	if n := len(b.take()); n != 0 {
		t.Errorf("b received %d messages after owner left", n)
	}
}

func TestRemovedByOwnerOnly(t *testing.T) {
	s := testServer(0)
	a, acc := join(t, s, "a")
	b, _ := join(t, s, "b")
	s.onUpdate(a, entityUpdate(acc.IDBase, 1, 1))

	s.onRemoved(b, messages.EntityRemoved{EntityID: acc.IDBase})
	if s.EntityCount() != 1 {
		t.Fatal("non-owner removed an entity")
	}

	s.onRemoved(a, messages.EntityRemoved{EntityID: acc.IDBase})
	if s.EntityCount() != 0 {
		t.Error("owner removal ignored")
	}
}

func TestRelayHonorsReset(t *testing.T) {
	s := testServer(0)
	a, acc := join(t, s, "a")
	b, _ := join(t, s, "b")
	id := acc.IDBase

	s.onUpdate(a, entityUpdate(id, 5, 10))
	s.Flush()
	b.take()

	// The owner rewound to t=2. Without the flag the update is stale.
	rewound := entityUpdate(id, 1, 2)
	s.onUpdate(a, rewound)
	s.Flush()
	if n := len(b.take()); n != 0 {
		t.Fatalf("stale update forwarded %d messages", n)
	}

	rewound.Reset = true
	s.onUpdate(a, rewound)
	// A normal update in the same tick keeps the forwarded state marked.
	s.onUpdate(a, entityUpdate(id, 2, 2.5))
	s.Flush()

	got := batches(t, b.take())
	if len(got) != 1 {
		t.Fatalf("b received %d updates, want 1", len(got))
	}
	if got[0].Timestamp != 2.5 || !got[0].Reset {
		t.Errorf("forwarded update = %+v, want t=2.5 marked as reset", got[0])
	}
}

// peerSim is one peer's orchestrator whose clock started at the session time
// the relay sent on join.
type peerSim struct {
	orch  *orchestrator.Orchestrator
	start float64
	ticks int
}

func newPeerSim(accepted messages.JoinAccepted, profiles config.ProfileSet) *peerSim {
	return &peerSim{
		orch: orchestrator.New(orchestrator.Options{
			Logger:   log.New(io.Discard, "", 0),
			Profiles: profiles,
		}),
		start: accepted.SimTime,
	}
}

func (p *peerSim) now(tickRate int) float64 {
	return p.start + float64(p.ticks)/float64(tickRate)
}

// step feeds the relay's messages into the inbox and ticks once.
func (p *peerSim) step(t *testing.T, tickRate int, sent []any) {
	t.Helper()
	for _, m := range batches(t, sent) {
		id, state, err := protocol.ToState(m)
		if err != nil {
			t.Fatal(err)
		}
		p.orch.Inbox().Push(orchestrator.AuthoritativeUpdate{EntityID: id, State: state, Profile: m.Profile})
	}
	dt := 0.0
	if p.ticks > 0 {
		dt = 1 / float64(tickRate)
	}
	if _, err := p.orch.Tick(dt, p.now(tickRate)); err != nil {
		t.Fatal(err)
	}
	p.ticks++
}

func TestPeersShareSessionClock(t *testing.T) {
	const tickRate = 20
	s := testServer(0)
	profiles := config.ProfileSet{"vehicle": {
		PositionThreshold:    0.1,
		OrientationThreshold: 0.05,
		MaxExtrapolationTime: 5,
	}}

	a, accA := join(t, s, "a")
	simA := newPeerSim(accA, profiles)
	// Peer a runs alone for 30 seconds before b joins.
	for i := 0; i < 30*tickRate; i++ {
		s.Tick()
		simA.step(t, tickRate, a.take())
	}
	b, accB := join(t, s, "b")
	simB := newPeerSim(accB, profiles)
	if accA.SimTime != 0 || accB.SimTime != 30 {
		t.Fatalf("join session times = %v, %v; want 0, 30", accA.SimTime, accB.SimTime)
	}

	// Each peer publishes an entity moving at 10 m/s, stamped with its own clock.
	idA, idB := deadreckoning.EntityID(accA.IDBase), deadreckoning.EntityID(accB.IDBase)
	publish := func(p *fakePeer, id deadreckoning.EntityID, now float64) {
		s.onUpdate(p, protocol.FromState(id, deadreckoning.State{
			Orientation:    mgl64.QuatIdent(),
			LinearVelocity: mgl64.Vec3{10, 0, 0},
			Timestamp:      now,
			Algorithm:      netconfig.FPW,
		}, "vehicle"))
	}
	publish(a, idA, simA.now(tickRate))
	publish(b, idB, simB.now(tickRate))

	for i := 0; i <= tickRate; i++ {
		s.Tick()
		simA.step(t, tickRate, a.take())
		simB.step(t, tickRate, b.take())
	}

	// One second of extrapolation on both sides: nothing clamps to zero
	// elapsed and nothing freezes.
	for _, c := range []struct {
		name string
		sim  *peerSim
		id   deadreckoning.EntityID
	}{
		{"a sees b", simA, idB},
		{"b sees a", simB, idA},
	} {
		pose, err := c.sim.orch.GetCurrentPose(c.id)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if x := pose.Position.X(); math.Abs(x-10) > 1e-6 {
			t.Errorf("%s: x = %v, want 10", c.name, x)
		}
		if phase, _ := c.sim.orch.Phase(c.id); phase != netconfig.PhaseDeadReckoning {
			t.Errorf("%s: phase = %v, want dead reckoning", c.name, phase)
		}
	}
}
