package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/network"
	"github.com/automoto/drsync/orchestrator"
	"github.com/automoto/drsync/shared/netconfig"
	"github.com/automoto/drsync/statemodel"
	"github.com/automoto/drsync/terrain"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	appName     = "drsync"
	cliProfile  = "cli"
	joinTimeout = 10 * time.Second
)

type peerFlags struct {
	addr       string
	name       string
	entities   int
	tickRate   int
	maxUpdates int
	profile    string
	save       bool
	algorithm  string
	terrain    string
	offset     float64
	radius     float64
	speed      float64
	dr         config.DeadReckoningConfig
}

func parseFlags() peerFlags {
	var f peerFlags
	flag.StringVar(&f.addr, "addr", fmt.Sprintf("localhost:%d", config.Net.RelayPort), "Relay address")
	flag.StringVar(&f.name, "name", "peer", "Peer display name")
	flag.IntVar(&f.entities, "entities", 1, "Number of owned entities to simulate")
	flag.IntVar(&f.tickRate, "tickrate", config.Net.TickRate, "Simulation ticks per second")
	flag.IntVar(&f.maxUpdates, "max-updates", config.Net.MaxUpdatesPerTick, "Inbox updates applied per tick (0 = all)")
	flag.StringVar(&f.profile, "profile", "", "Saved DR profile to use for owned entities")
	flag.BoolVar(&f.save, "save-profile", false, "Save the DR flags below under -profile and exit")
	flag.StringVar(&f.algorithm, "algorithm", netconfig.FVW.String(), "Algorithm for owned entities (static, fpw, rvw, fvw)")
	flag.StringVar(&f.terrain, "terrain", "", "TMX map used to clamp ground-relative entities")
	flag.Float64Var(&f.offset, "ground-offset", 0, "Height added to terrain elevation")
	flag.Float64Var(&f.radius, "radius", 20, "Radius of the simulated circular paths")
	flag.Float64Var(&f.speed, "speed", 8, "Speed along the simulated paths")

	flag.Float64Var(&f.dr.PositionThreshold, "pos-threshold", 0, "Position divergence that triggers a publish")
	flag.Float64Var(&f.dr.OrientationThreshold, "rot-threshold", 0, "Orientation divergence (radians) that triggers a publish")
	flag.Float64Var(&f.dr.HeartbeatInterval, "heartbeat", 0, "Seconds between forced publishes (0 = none)")
	flag.Float64Var(&f.dr.MaxExtrapolationTime, "max-extrapolation", 0, "Seconds of extrapolation before freezing")
	flag.Float64Var(&f.dr.BlendDuration, "blend", 0, "Seconds to blend toward a new update (0 = snap)")
	flag.StringVar(&f.dr.Easing, "easing", config.EasingLinear, "Blend easing curve")
	flag.BoolVar(&f.dr.GroundClamp, "ground-clamp", false, "Clamp owned entities to terrain on receivers")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	algorithm, ok := netconfig.ParseAlgorithm(f.algorithm)
	if !ok {
		log.Fatalf("Invalid -algorithm %q", f.algorithm)
	}

	store, err := config.OpenProfileStore(appName)
	if err != nil {
		log.Fatalf("Failed to open profile store: %v", err)
	}
	profiles, err := store.LoadProfiles()
	if err != nil {
		log.Fatalf("Failed to load profiles: %v", err)
	}
	config.Profiles = profiles

	if f.save {
		if f.profile == "" {
			log.Fatal("-save-profile needs -profile")
		}
		config.Profiles[f.profile] = f.dr
		if err := store.SaveProfiles(config.Profiles); err != nil {
			log.Fatalf("Failed to save profile: %v", err)
		}
		return
	}

	// Without -profile the DR flags act as the "cli" profile.
	profile := f.profile
	if profile == "" {
		profile = cliProfile
		config.Profiles[cliProfile] = f.dr
	}
	drConfig, ok := config.Profiles.Lookup(profile)
	if !ok {
		log.Fatalf("Unknown profile %q (saved: %v)", profile, config.Profiles.Names())
	}
	if err := drConfig.Validate(); err != nil {
		log.Fatalf("Dead reckoning settings for profile %q: %v", profile, err)
	}
	if f.tickRate <= 0 {
		f.tickRate = config.Net.TickRate
	}

	opts := orchestrator.Options{
		MaxUpdatesPerTick: f.maxUpdates,
		Profiles:          config.Profiles,
	}
	if f.terrain != "" {
		ground, err := terrain.LoadGround(f.terrain, f.offset)
		if err != nil {
			log.Fatalf("Failed to load terrain: %v", err)
		}
		opts.Ground = ground
	}
	orch := orchestrator.New(opts)

	client := network.NewClient(orch.Inbox(), profile)
	client.Connect(f.addr, f.name)
	if err := waitForJoin(client); err != nil {
		log.Fatalf("Failed to join relay: %v", err)
	}

	base, size := client.IDBlock()
	if uint64(f.entities) > size {
		log.Fatalf("Asked for %d entities but the relay granted %d IDs", f.entities, size)
	}
	owned := make([]deadreckoning.EntityID, f.entities)
	for i := range owned {
		owned[i] = deadreckoning.EntityID(base + uint64(i))
		if err := orch.Register(owned[i], statemodel.Registration{Config: drConfig, Owned: true}); err != nil {
			log.Fatalf("Failed to register entity %d: %v", owned[i], err)
		}
	}

	orch.OnPublish(func(d orchestrator.PublishDecision) {
		if err := client.Publish(d); err != nil {
			log.Printf("[peer] publish entity %d failed: %v", d.EntityID, err)
		}
	})
	orch.OnEnteredFrozen(func(ev orchestrator.EnteredFrozen) {
		log.Printf("[peer] entity %d froze at %.2fs", ev.EntityID, ev.At)
	})
	orch.OnResumed(func(ev orchestrator.ResumedDeadReckoning) {
		log.Printf("[peer] entity %d resumed at %.2fs", ev.EntityID, ev.At)
	})

	// Start on the relay's session clock so timestamps agree across peers.
	loop := orchestrator.NewLoop(orch, f.tickRate, client.SessionTime())
	loop.BeforeTick = func(now float64) {
		for i, id := range owned {
			state := circlePath(i, len(owned), f.radius, f.speed, now)
			state.Algorithm = algorithm
			if err := orch.SetTrueState(id, state); err != nil {
				log.Printf("[peer] %v", err)
			}
		}
	}

	var totals orchestrator.TickReport
	var published, ticks int
	loop.AfterTick = func(report orchestrator.TickReport) {
		for _, r := range client.DrainRemovals() {
			id := deadreckoning.EntityID(r.EntityID)
			if err := orch.Unregister(id); err != nil {
				log.Printf("[peer] remove entity %d: %v", id, err)
			}
		}

		totals.Applied += report.Applied
		totals.Stale += report.Stale
		totals.Invalid += report.Invalid
		published += len(report.Publishes)
		ticks++
		if ticks%(f.tickRate*5) == 0 {
			log.Printf("[peer] t=%.1fs entities=%d published=%d applied=%d stale=%d invalid=%d pending=%d",
				report.Now, orch.Model().Len(), published, totals.Applied, totals.Stale, totals.Invalid, report.Pending)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down peer...")
		for _, id := range owned {
			_ = client.SendRemoved(id)
		}
		loop.Stop()
	}()

	log.Printf("Peer %q simulating %d entities at %d ticks/second", f.name, len(owned), f.tickRate)
	loop.Run()
	client.Disconnect()
}

func waitForJoin(client *network.Client) error {
	deadline := time.Now().Add(joinTimeout)
	for time.Now().Before(deadline) {
		switch client.State() {
		case network.StateJoined:
			return nil
		case network.StateError:
			return client.LastError()
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no join reply within %v", joinTimeout)
}

// circlePath moves entity i of n around a circle centred on the origin,
// phase-shifted so entities spread out. Velocity, acceleration, and yaw rate
// are exact for the path.
func circlePath(i, n int, radius, speed, now float64) deadreckoning.State {
	if radius <= 0 {
		radius = 1
	}
	omega := speed / radius
	phase := 2 * math.Pi * float64(i) / float64(n)
	angle := omega*now + phase

	sin, cos := math.Sincos(angle)
	return deadreckoning.State{
		Position:           mgl64.Vec3{radius * cos, 0, radius * sin},
		Orientation:        mgl64.QuatRotate(-angle, mgl64.Vec3{0, 1, 0}),
		LinearVelocity:     mgl64.Vec3{-speed * sin, 0, speed * cos},
		AngularVelocity:    mgl64.Vec3{0, -omega, 0},
		LinearAcceleration: mgl64.Vec3{-speed * omega * cos, 0, -speed * omega * sin},
		Timestamp:          now,
	}
}
