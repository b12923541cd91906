package orchestrator

import (
	"log"
	"time"
)

// Loop ticks an orchestrator at a fixed rate. Simulation time is derived from
// the tick count, never the wall clock, so a run replays identically. Peers
// start at the relay's session time so their timestamps share one base.
type Loop struct {
	orch     *Orchestrator
	tickRate int
	start    float64
	tick     uint64
	stopChan chan struct{}

	// BeforeTick runs on the loop goroutine before each Tick; owned
	// entities set their true state here.
	BeforeTick func(now float64)
	// AfterTick receives every tick's report.
	AfterTick func(report TickReport)
}

func NewLoop(orch *Orchestrator, tickRate int, start float64) *Loop {
	if tickRate <= 0 {
		tickRate = 1
	}
	return &Loop{
		orch:     orch,
		tickRate: tickRate,
		start:    start,
		stopChan: make(chan struct{}),
	}
}

// Run blocks until Stop is called.
func (l *Loop) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(l.tickRate))
	defer ticker.Stop()

	log.Printf("[orchestrator] loop started at %d ticks/second", l.tickRate)

	for {
		select {
		case <-l.stopChan:
			log.Println("[orchestrator] loop stopped")
			return
		case <-ticker.C:
			l.step()
		}
	}
}

func (l *Loop) Stop() {
	close(l.stopChan)
}

// Now returns the simulation time of the next tick.
func (l *Loop) Now() float64 {
	return l.start + float64(l.tick)/float64(l.tickRate)
}

func (l *Loop) step() {
	now := l.Now()
	dt := 0.0
	if l.tick > 0 {
		dt = 1 / float64(l.tickRate)
	}

	if l.BeforeTick != nil {
		l.BeforeTick(now)
	}

	report, err := l.orch.Tick(dt, now)
	l.tick++
	if err != nil {
		log.Printf("[orchestrator] tick %d: %v", l.tick-1, err)
		return
	}

	if l.AfterTick != nil {
		l.AfterTick(report)
	}
}
