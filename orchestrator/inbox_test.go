package orchestrator

import (
	"sync"
	"testing"

	"github.com/automoto/drsync/deadreckoning"
)

func TestInboxFIFO(t *testing.T) {
	q := NewInbox()
	for id := deadreckoning.EntityID(1); id <= 5; id++ {
		q.Push(AuthoritativeUpdate{EntityID: id})
	}

	first := q.Drain(3)
	if len(first) != 3 || q.Len() != 2 {
		t.Fatalf("Drain(3) returned %d, %d left; want 3 and 2", len(first), q.Len())
	}
	rest := q.Drain(0)
	got := append(first, rest...)
	for i, u := range got {
		if u.EntityID != deadreckoning.EntityID(i+1) {
			t.Fatalf("position %d holds entity %d, want %d", i, u.EntityID, i+1)
		}
	}
	if q.Drain(0) != nil {
		t.Error("Drain on empty inbox returned updates")
	}
}

func TestInboxConcurrentPush(t *testing.T) {
	q := NewInbox()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(AuthoritativeUpdate{EntityID: deadreckoning.EntityID(p*perProducer + i)})
			}
		}(p)
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		drained += len(q.Drain(16))
		select {
		case <-done:
			drained += len(q.Drain(0))
			if drained != producers*perProducer {
				t.Fatalf("drained %d updates, want %d", drained, producers*perProducer)
			}
			return
		default:
		}
	}
}
