package core

import (
	"errors"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/automoto/drsync/config"
	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/shared/messages"
	"github.com/automoto/drsync/shared/protocol"
	"github.com/automoto/drsync/statemodel"
	"github.com/google/uuid"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

// Peer is the relay's view of one connection. *router.NetworkClient
// satisfies it.
type Peer interface {
	Id() string
	SendMessage(msg any) error
}

type peerState struct {
	peer   Peer
	name   string
	siteID string
	idBase uint64
	joined bool
}

type outgoing struct {
	peer Peer
	msg  any
}

// Server relays authoritative updates between peers. It keeps the latest
// state of every entity, drops stale or malformed updates, and forwards at
// most one update per entity per tick.
type Server struct {
	name      string
	version   string
	cfg       config.NetworkConfig
	loop      *GameLoop
	transport *transports.WsServerTransport

	mu           sync.Mutex
	model        *statemodel.Model
	peers        map[string]*peerState
	owners       map[deadreckoning.EntityID]string // entity -> peer id
	profiles     map[deadreckoning.EntityID]string
	pending      map[deadreckoning.EntityID]messages.EntityUpdate
	pendingOrder []deadreckoning.EntityID
	nextIDBase   uint64
	tick         uint64 // relay ticks since start; the session clock
}

// NewServer creates a relay. An empty version accepts any peer.
func NewServer(cfg config.NetworkConfig, name, version string) *Server {
	if cfg.IDBlockSize == 0 {
		cfg.IDBlockSize = 1 << 20
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}
	s := &Server{
		name:     name,
		version:  version,
		cfg:      cfg,
		model:    statemodel.New(log.Default()),
		peers:    make(map[string]*peerState),
		owners:   make(map[deadreckoning.EntityID]string),
		profiles: make(map[deadreckoning.EntityID]string),
		pending:  make(map[deadreckoning.EntityID]messages.EntityUpdate),
		// Block 0 is reserved for the relay itself.
		nextIDBase: cfg.IDBlockSize,
	}
	s.loop = NewGameLoop(s, cfg.TickRate)
	return s
}

// Start begins the relay on the given port
func (s *Server) Start(port uint) error {
	s.setupRouterCallbacks()

	go s.loop.Run()

	s.transport = transports.NewWsServerTransport(port, "", nil)
	return s.transport.Start()
}

// Stop gracefully shuts down the relay
func (s *Server) Stop() {
	s.loop.Stop()
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		s.onConnect(client)
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		s.onDisconnect(client, err)
	})

	router.On(func(client *router.NetworkClient, req messages.JoinRequest) {
		s.onJoin(client, req)
	})

	router.On(func(client *router.NetworkClient, msg messages.EntityUpdate) {
		s.onUpdate(client, msg)
	})

	router.On(func(client *router.NetworkClient, msg messages.EntityRemoved) {
		s.onRemoved(client, msg)
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		log.Printf("[relay] client error: %v", err)
	})
}

func (s *Server) onConnect(p Peer) {
	log.Printf("[relay] peer connected: %s", p.Id())

	s.mu.Lock()
	s.peers[p.Id()] = &peerState{peer: p}
	s.mu.Unlock()
}

func (s *Server) onJoin(p Peer, req messages.JoinRequest) {
	s.mu.Lock()
	ps, ok := s.peers[p.Id()]
	var out []outgoing
	switch {
	case !ok:
		out = append(out, outgoing{p, messages.JoinRejected{Reason: "unknown connection"}})
	case ps.joined:
		out = append(out, outgoing{p, messages.JoinRejected{Reason: "already joined"}})
	case s.version != "" && req.Version != s.version:
		out = append(out, outgoing{p, messages.JoinRejected{Reason: "version mismatch: relay runs " + s.version}})
	case s.nextIDBase > math.MaxUint64-s.cfg.IDBlockSize:
		out = append(out, outgoing{p, messages.JoinRejected{Reason: "entity ID space exhausted"}})
	default:
		ps.joined = true
		ps.name = req.PeerName
		ps.siteID = uuid.NewString()
		ps.idBase = s.nextIDBase
		s.nextIDBase += s.cfg.IDBlockSize

		out = append(out, outgoing{p, messages.JoinAccepted{
			SiteID:     ps.siteID,
			IDBase:     ps.idBase,
			IDBlock:    s.cfg.IDBlockSize,
			ServerName: s.name,
			TickRate:   s.cfg.TickRate,
			SimTime:    s.simTimeLocked(),
		}})
		if snapshot := s.snapshotLocked(); len(snapshot.Updates) > 0 {
			out = append(out, outgoing{p, snapshot})
		}
		log.Printf("[relay] peer %s joined as %q site=%s ids=[%d,%d)",
			p.Id(), ps.name, ps.siteID, ps.idBase, ps.idBase+s.cfg.IDBlockSize)
	}
	s.mu.Unlock()

	s.send(out)
}

// snapshotLocked returns the current state of every entity for a late joiner.
func (s *Server) snapshotLocked() messages.EntityUpdateBatch {
	var batch messages.EntityUpdateBatch
	for _, id := range s.model.IDs() {
		state, err := s.model.Get(id)
		if err != nil {
			continue
		}
		batch.Updates = append(batch.Updates, protocol.FromState(id, state, s.profiles[id]))
	}
	return batch
}

func (s *Server) onUpdate(p Peer, msg messages.EntityUpdate) {
	id, state, err := protocol.ToState(msg)
	if err != nil {
		log.Printf("[relay] dropped update from %s: %v", p.Id(), err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.peers[p.Id()]
	if !ok || !ps.joined {
		log.Printf("[relay] dropped update from %s: not joined", p.Id())
		return
	}
	if !s.inBlockLocked(ps, id) {
		log.Printf("[relay] dropped update from %s: entity %d outside its ID block", p.Id(), id)
		return
	}
	if owner, ok := s.owners[id]; ok && owner != p.Id() {
		log.Printf("[relay] dropped update from %s: entity %d owned by %s", p.Id(), id, owner)
		return
	}

	if !s.model.Registered(id) {
		if err := s.model.Register(id, statemodel.Registration{}); err != nil {
			log.Printf("[relay] register entity %d: %v", id, err)
			return
		}
	}
	mode := statemodel.ApplyNormal
	if msg.Reset {
		mode = statemodel.ApplyReset
	}
	if _, err := s.model.Apply(id, state, mode); err != nil {
		if !errors.Is(err, statemodel.ErrStale) {
			log.Printf("[relay] %v", err)
		}
		return
	}
	stored, _ := s.model.Get(id)

	s.owners[id] = p.Id()
	s.profiles[id] = msg.Profile
	forwarded := protocol.FromState(id, stored, msg.Profile)
	forwarded.Reset = msg.Reset
	if prev, queued := s.pending[id]; !queued {
		s.pendingOrder = append(s.pendingOrder, id)
	} else if prev.Reset {
		// Receivers still hold the pre-reset state until this reaches them.
		forwarded.Reset = true
	}
	s.pending[id] = forwarded
}

func (s *Server) inBlockLocked(ps *peerState, id deadreckoning.EntityID) bool {
	return uint64(id) >= ps.idBase && uint64(id)-ps.idBase < s.cfg.IDBlockSize
}

func (s *Server) onRemoved(p Peer, msg messages.EntityRemoved) {
	id := deadreckoning.EntityID(msg.EntityID)

	s.mu.Lock()
	if owner, ok := s.owners[id]; !ok || owner != p.Id() {
		s.mu.Unlock()
		log.Printf("[relay] ignored removal of entity %d from %s", id, p.Id())
		return
	}
	out := s.removeEntityLocked(id, p.Id())
	s.mu.Unlock()

	s.send(out)
}

func (s *Server) onDisconnect(p Peer, err error) {
	if err != nil {
		log.Printf("[relay] peer %s disconnected with error: %v", p.Id(), err)
	} else {
		log.Printf("[relay] peer %s disconnected", p.Id())
	}

	s.mu.Lock()
	delete(s.peers, p.Id())
	var out []outgoing
	for _, id := range s.model.IDs() {
		if s.owners[id] == p.Id() {
			out = append(out, s.removeEntityLocked(id, p.Id())...)
		}
	}
	s.mu.Unlock()

	if len(out) > 0 {
		log.Printf("[relay] removed entities of peer %s", p.Id())
	}
	s.send(out)
}

// removeEntityLocked forgets id and returns the removal broadcast for every
// joined peer other than the owner.
func (s *Server) removeEntityLocked(id deadreckoning.EntityID, owner string) []outgoing {
	_ = s.model.Unregister(id)
	delete(s.owners, id)
	delete(s.profiles, id)
	if _, queued := s.pending[id]; queued {
		delete(s.pending, id)
		for i, other := range s.pendingOrder {
			if other == id {
				s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
				break
			}
		}
	}

	var out []outgoing
	for _, ps := range s.joinedPeersLocked() {
		if ps.peer.Id() != owner {
			out = append(out, outgoing{ps.peer, protocol.Removed(id)})
		}
	}
	return out
}

// joinedPeersLocked returns joined peers sorted by site ID so sends happen in
// a stable order.
func (s *Server) joinedPeersLocked() []*peerState {
	var out []*peerState
	for _, ps := range s.peers {
		if ps.joined {
			out = append(out, ps)
		}
	}
	sortPeers(out)
	return out
}

// Tick advances the session clock by one relay tick and flushes.
func (s *Server) Tick() {
	s.mu.Lock()
	s.tick++
	s.mu.Unlock()

	s.Flush()
}

// SimTime returns the session clock in seconds. Peers start their own
// simulation clocks from it on join.
func (s *Server) SimTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simTimeLocked()
}

func (s *Server) simTimeLocked() float64 {
	return float64(s.tick) / float64(s.cfg.TickRate)
}

// Flush forwards pending updates, at most MaxUpdatesPerTick of them, to every
// joined peer except each entity's owner. Updates past the cap wait for the
// next tick and may be superseded meanwhile.
func (s *Server) Flush() {
	s.mu.Lock()
	n := len(s.pendingOrder)
	if limit := s.cfg.MaxUpdatesPerTick; limit > 0 && limit < n {
		n = limit
	}
	ids := s.pendingOrder[:n]

	var out []outgoing
	for _, ps := range s.joinedPeersLocked() {
		var batch messages.EntityUpdateBatch
		for _, id := range ids {
			if s.owners[id] == ps.peer.Id() {
				continue
			}
			batch.Updates = append(batch.Updates, s.pending[id])
		}
		if len(batch.Updates) > 0 {
			out = append(out, outgoing{ps.peer, batch})
		}
	}

	for _, id := range ids {
		delete(s.pending, id)
	}
	s.pendingOrder = append([]deadreckoning.EntityID(nil), s.pendingOrder[n:]...)
	s.mu.Unlock()

	s.send(out)
}

func sortPeers(peers []*peerState) {
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].siteID < peers[j].siteID
	})
}

func (s *Server) send(out []outgoing) {
	for _, o := range out {
		if err := o.peer.SendMessage(o.msg); err != nil {
			log.Printf("[relay] send to %s failed: %v", o.peer.Id(), err)
		}
	}
}

// PeerCount returns the number of joined peers
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.joinedPeersLocked())
}

// EntityCount returns the number of entities with a known state
func (s *Server) EntityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Len()
}
