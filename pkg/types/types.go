package types

import (
	"net"
	"strconv"
	"time"
)

// NodeIdentity identifies this chat node on the network.
// It is built once at startup, after the stream listener is bound.
type NodeIdentity struct {
	Name       string
	Address    net.IP
	StreamPort int
}

// Endpoint returns the stream listening endpoint as "ip:port"
func (id NodeIdentity) Endpoint() string {
	return net.JoinHostPort(id.Address.String(), strconv.Itoa(id.StreamPort))
}

// String returns "name@ip:port"
func (id NodeIdentity) String() string {
	return id.Name + "@" + id.Endpoint()
}

// PeerInfo is a read-only view of one registered peer connection
type PeerInfo struct {
	Name        string // Peer display name (empty until HELLO is received)
	RemoteAddr  string // Remote TCP endpoint of the stream
	ListenAddr  string // Peer's own stream listening endpoint, learned from HELLO
	Outbound    bool   // True when this node dialed the connection
	ConnectedAt time.Time
}
