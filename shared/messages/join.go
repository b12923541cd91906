package messages

// JoinRequest is sent by a peer after connecting to request joining the session.
type JoinRequest struct {
	Version  string
	PeerName string
}

// JoinAccepted is sent by the relay when a peer's join request is accepted.
// The peer may create entities with IDs in [IDBase, IDBase+IDBlock).
type JoinAccepted struct {
	SiteID     string
	IDBase     uint64
	IDBlock    uint64
	ServerName string
	TickRate   int
	SimTime    float64 // relay simulation time when the join was accepted
}

// JoinRejected is sent by the relay when a peer's join request is rejected.
type JoinRejected struct {
	Reason string
}
