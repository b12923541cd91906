package network

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/automoto/drsync/deadreckoning"
	"github.com/automoto/drsync/orchestrator"
	"github.com/automoto/drsync/shared/messages"
	"github.com/automoto/drsync/shared/protocol"
	"github.com/coder/websocket"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateJoined
	StateError
)

const removedBuffer = 256

// Client connects a peer to the relay. Decoded updates go straight into the
// orchestrator inbox; removals are queued for the sim thread.
// All shared fields are protected by mu (router callbacks run on necs goroutines).
type Client struct {
	mu sync.RWMutex

	state      ClientState
	lastError  error
	siteID     string
	idBase     uint64
	idBlock    uint64
	serverName string
	tickRate   int
	simTime    float64   // relay session time at join
	joinedAt   time.Time // local wall time the join reply arrived
	conn       *websocket.Conn

	inbox   *orchestrator.Inbox
	profile string // attached to every published update

	removedCh chan messages.EntityRemoved
}

// NewClient creates a client feeding inbox. profile names the DR profile
// receivers should use for this peer's entities.
func NewClient(inbox *orchestrator.Inbox, profile string) *Client {
	return &Client{
		state:     StateDisconnected,
		inbox:     inbox,
		profile:   profile,
		removedCh: make(chan messages.EntityRemoved, removedBuffer),
	}
}

// Connect dials the relay in a background goroutine and initiates the join handshake.
func (c *Client) Connect(address, peerName string) {
	c.mu.Lock()
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	router.OnConnect(func(_ *router.NetworkClient) {
		log.Println("[client] connected to relay")
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()

		if err := c.SendMessage(messages.JoinRequest{
			Version:  protocol.Version,
			PeerName: peerName,
		}); err != nil {
			c.setError(fmt.Errorf("failed to send join request: %w", err))
		}
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinAccepted) {
		c.handleJoinAccepted(msg)
	})

	router.On(func(_ *router.NetworkClient, msg messages.JoinRejected) {
		log.Printf("[client] join rejected: %s", msg.Reason)
		c.setError(fmt.Errorf("join rejected: %s", msg.Reason))
	})

	router.On(func(_ *router.NetworkClient, batch messages.EntityUpdateBatch) {
		c.handleBatch(batch)
	})

	router.On(func(_ *router.NetworkClient, msg messages.EntityRemoved) {
		c.handleRemoved(msg)
	})

	router.OnDisconnect(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] disconnected: %v", err)
		c.mu.Lock()
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.conn = nil
		c.mu.Unlock()
	})

	router.OnError(func(_ *router.NetworkClient, err error) {
		log.Printf("[client] error: %v", err)
	})

	go func() {
		transport := transports.NewWsClientTransport("ws://" + address)
		err := transport.Start(func(conn *websocket.Conn) {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
		})
		if err != nil {
			c.setError(fmt.Errorf("connection failed: %w", err))
		}
	}()
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}

	router.ResetRouter()
}

func (c *Client) handleJoinAccepted(msg messages.JoinAccepted) {
	log.Printf("[client] join accepted: site=%s ids=[%d,%d) server=%s tickRate=%d",
		msg.SiteID, msg.IDBase, msg.IDBase+msg.IDBlock, msg.ServerName, msg.TickRate)
	c.mu.Lock()
	c.siteID = msg.SiteID
	c.idBase = msg.IDBase
	c.idBlock = msg.IDBlock
	c.serverName = msg.ServerName
	c.tickRate = msg.TickRate
	c.simTime = msg.SimTime
	c.joinedAt = time.Now()
	c.state = StateJoined
	c.mu.Unlock()
}

func (c *Client) handleBatch(batch messages.EntityUpdateBatch) {
	for _, m := range batch.Updates {
		id, s, err := protocol.ToState(m)
		if err != nil {
			log.Printf("[client] dropped update: %v", err)
			continue
		}
		c.inbox.Push(orchestrator.AuthoritativeUpdate{
			EntityID: id,
			State:    s,
			Profile:  m.Profile,
			Reset:    m.Reset,
		})
	}
}

func (c *Client) handleRemoved(msg messages.EntityRemoved) {
	select {
	case c.removedCh <- msg:
	default:
		log.Printf("[client] removal queue full, dropped entity %d", msg.EntityID)
	}
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) SiteID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.siteID
}

// IDBlock returns the entity ID range assigned on join.
func (c *Client) IDBlock() (base, size uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idBase, c.idBlock
}

func (c *Client) TickRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickRate
}

// SessionTime estimates the relay's session clock now: the time sent on join
// plus local time elapsed since. Zero before joining.
func (c *Client) SessionTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.joinedAt.IsZero() {
		return 0
	}
	return c.simTime + time.Since(c.joinedAt).Seconds()
}

// Publish sends an owned entity's state to the relay.
func (c *Client) Publish(d orchestrator.PublishDecision) error {
	msg := protocol.FromState(d.EntityID, d.State, c.profile)
	msg.Reset = d.Reset
	return c.SendMessage(msg)
}

// SendRemoved tells the relay an owned entity is gone.
func (c *Client) SendRemoved(id deadreckoning.EntityID) error {
	return c.SendMessage(protocol.Removed(id))
}

func (c *Client) SendMessage(msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := router.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	return conn.Write(context.Background(), websocket.MessageBinary, payload)
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = err
	c.mu.Unlock()
}

// DrainRemovals returns all pending removals, non-blocking.
func (c *Client) DrainRemovals() []messages.EntityRemoved {
	return drainChan(c.removedCh)
}

func drainChan[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
