package orchestrator

import (
	"sync"

	"github.com/automoto/drsync/deadreckoning"
)

// AuthoritativeUpdate is a decoded update handed over by the network layer.
type AuthoritativeUpdate struct {
	EntityID deadreckoning.EntityID
	State    deadreckoning.State
	Profile  string // DR profile used if this update registers the entity
	Reset    bool   // accept regardless of timestamp (playback seek)
}

// Inbox is a multi-producer, single-consumer FIFO. Network goroutines Push;
// only the simulation thread drains it, at the start of each tick.
type Inbox struct {
	mu      sync.Mutex
	pending []AuthoritativeUpdate
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Push appends an update. Safe for concurrent use.
func (q *Inbox) Push(u AuthoritativeUpdate) {
	q.mu.Lock()
	q.pending = append(q.pending, u)
	q.mu.Unlock()
}

// Drain removes and returns up to max updates in arrival order. max <= 0
// drains everything.
func (q *Inbox) Drain(max int) []AuthoritativeUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	out := make([]AuthoritativeUpdate, n)
	copy(out, q.pending[:n])

	rest := copy(q.pending, q.pending[n:])
	clear(q.pending[rest:])
	q.pending = q.pending[:rest]
	return out
}

// Len returns the number of queued updates.
func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
