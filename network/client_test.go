package network

import (
	"math"
	"testing"

	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/orchestrator"
	"github.com/automoto/drsync/shared/messages"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/shared/protocol"
	"github.com/go-gl/mathgl/mgl64"
)

func TestHandleBatchFeedsInbox(t *testing.T) {
	inbox := orchestrator.NewInbox()
	c := NewClient(inbox, "infantry")

	good := protocol.FromState(5, deadreckoning.State{
		Position:    mgl64.Vec3{1, 0, 0},
		Orientation: mgl64.QuatIdent(),
		Timestamp:   2,
		Algorithm:   netconfig.FPW,
	}, "vehicle")
	rewound := good
	rewound.EntityID = 7
	rewound.Reset = true
	bad := good
	bad.EntityID = 6
	bad.Position[0] = math.Inf(1)

	c.handleBatch(messages.EntityUpdateBatch{Updates: []messages.EntityUpdate{good, bad, rewound}})

	got := inbox.Drain(0)
	if len(got) != 2 {
		t.Fatalf("inbox holds %d updates, want 2", len(got))
	}
	if got[0].EntityID != 5 || got[0].Profile != "vehicle" || got[0].State.Timestamp != 2 || got[0].Reset {
		t.Errorf("queued update = %+v", got[0])
	}
	if got[1].EntityID != 7 || !got[1].Reset {
		t.Errorf("rewound update = %+v, want reset flag kept", got[1])
	}
}

func TestJoinAndRemovals(t *testing.T) {
	c := NewClient(orchestrator.NewInbox(), "")

	c.handleJoinAccepted(messages.JoinAccepted{SiteID: "abc", IDBase: 100, IDBlock: 10, TickRate: 30})
	if c.State() != StateJoined {
		t.Errorf("state = %v, want joined", c.State())
	}
	if base, size := c.IDBlock(); base != 100 || size != 10 {
		t.Errorf("IDBlock() = %d, %d", base, size)
	}

	c.handleRemoved(messages.EntityRemoved{EntityID: 3})
	c.handleRemoved(messages.EntityRemoved{EntityID: 4})
	removed := c.DrainRemovals()
	if len(removed) != 2 || removed[0].EntityID != 3 {
		t.Errorf("DrainRemovals() = %+v", removed)
	}
	if len(c.DrainRemovals()) != 0 {
		t.Error("second drain returned removals")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewClient(orchestrator.NewInbox(), "")
	if err := c.Publish(orchestrator.PublishDecision{EntityID: 1}); err == nil {
		t.Error("Publish without a connection succeeded")
	}
}

func TestSessionTimeStartsAtJoin(t *testing.T) {
	c := NewClient(orchestrator.NewInbox(), "")
	if now := c.SessionTime(); now != 0 {
		t.Errorf("SessionTime() before join = %v, want 0", now)
	}

	c.handleJoinAccepted(messages.JoinAccepted{IDBase: 1, IDBlock: 1, TickRate: 20, SimTime: 42})
	if now := c.SessionTime(); now < 42 || now > 43 {
		t.Errorf("SessionTime() after join = %v, want just past 42", now)
	}
}
