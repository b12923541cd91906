package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/server/core"
	"github.com/automoto/drsync/shared/protocol"
)

func main() {
	port := flag.Uint("port", config.Net.RelayPort, "Relay port")
	tickRate := flag.Int("tickrate", config.Net.TickRate, "Relay tick rate (flushes per second)")
	maxUpdates := flag.Int("max-updates", config.Net.MaxUpdatesPerTick, "Updates forwarded per tick (0 = unlimited)")
	idBlock := flag.Uint64("id-block", config.Net.IDBlockSize, "Entity IDs assigned to each peer")
	name := flag.String("name", "drsync relay", "Relay display name")
	version := flag.String("version", protocol.Version, "Required peer protocol version (empty = accept any)")
	flag.Parse()

	cfg := config.Net
	cfg.RelayPort = *port
	cfg.TickRate = *tickRate
	cfg.MaxUpdatesPerTick = *maxUpdates
	cfg.IDBlockSize = *idBlock

	server := core.NewServer(cfg, *name, *version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down relay...")
		server.Stop()
		os.Exit(0)
	}()

	log.Printf("Starting relay %q on port %d (tick rate: %d/s, version: %s)",
		*name, cfg.RelayPort, cfg.TickRate, *version)
	if err := server.Start(cfg.RelayPort); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}
