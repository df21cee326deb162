package peer

import (
	"sync"

	"github.com/samber/lo"

	"github.com/lanchat/pkg/types"
)

// BroadcastResult summarizes one fan-out
type BroadcastResult struct {
	Delivered int
	Failed    []*Conn
}

// Registry is the set of live peer connections.
// All iteration happens on a snapshot so that removals triggered while
// writing never touch the slice being walked.
type Registry struct {
	conns     []*Conn
	connsLock sync.RWMutex

	// selfPort and selfEndpoint identify this node's stream listener.
	// Broadcast never writes to a connection bound to selfEndpoint, nor to an
	// unbound one whose remote port is selfPort.
	selfPort     int
	selfEndpoint string
}

// NewRegistry creates an empty registry for a node listening on selfPort
func NewRegistry(selfPort int) *Registry {
	return &Registry{selfPort: selfPort}
}

// SetSelf records the local stream endpoint and port used by the echo filter
func (r *Registry) SetSelf(endpoint string, port int) {
	r.connsLock.Lock()
	defer r.connsLock.Unlock()
	r.selfEndpoint = endpoint
	r.selfPort = port
}

// loopsToSelf reports whether c leads back to this node. A connection bound to
// a peer endpoint is judged by that endpoint only, since peers on other hosts
// may share the stream port.
func loopsToSelf(c *Conn, selfEndpoint string, selfPort int) bool {
	if bound := c.ListenAddr(); bound != "" {
		return bound == selfEndpoint
	}
	return selfPort != 0 && c.RemotePort() == selfPort
}

// Add registers conn. Returns false if a connection with the same remote endpoint is already present.
func (r *Registry) Add(c *Conn) bool {
	r.connsLock.Lock()
	defer r.connsLock.Unlock()
	for _, existing := range r.conns {
		if existing == c || (c.Remote != "" && existing.Remote == c.Remote) {
			return false
		}
	}
	r.conns = append(r.conns, c)
	return true
}

// Remove unregisters conn. Returns false when it was not registered, which callers treat as a no-op.
func (r *Registry) Remove(c *Conn) bool {
	r.connsLock.Lock()
	defer r.connsLock.Unlock()
	for i, existing := range r.conns {
		if existing == c {
			r.conns = append(r.conns[:i:i], r.conns[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the registered connections in insertion order
func (r *Registry) Snapshot() []*Conn {
	r.connsLock.RLock()
	defer r.connsLock.RUnlock()
	out := make([]*Conn, len(r.conns))
	copy(out, r.conns)
	return out
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.connsLock.RLock()
	defer r.connsLock.RUnlock()
	return len(r.conns)
}

// Peers returns a read-only view of every registered connection
func (r *Registry) Peers() []types.PeerInfo {
	return lo.Map(r.Snapshot(), func(c *Conn, _ int) types.PeerInfo {
		return c.Info()
	})
}

// Lookup finds a live connection bound to the given peer listen endpoint
func (r *Registry) Lookup(listenAddr string) (*Conn, bool) {
	if listenAddr == "" {
		return nil, false
	}
	return lo.Find(r.Snapshot(), func(c *Conn) bool {
		return c.IsAlive() && c.ListenAddr() == listenAddr
	})
}

// Bind records the peer identity announced on c.
// If another live registered connection is already bound to listenAddr it is
// returned with dup=true; the caller decides which link survives.
func (r *Registry) Bind(c *Conn, name, listenAddr string) (existing *Conn, dup bool) {
	r.connsLock.Lock()
	defer r.connsLock.Unlock()
	c.SetPeer(name, listenAddr)
	for _, other := range r.conns {
		if other != c && other.IsAlive() && other.ListenAddr() == listenAddr {
			return other, true
		}
	}
	return nil, false
}

// Broadcast writes line to every live connection that is not excluded and
// does not loop back to this node. A failed write does not stop the fan-out;
// failed connections are removed and closed once every target has been attempted.
func (r *Registry) Broadcast(line string, exclude func(*Conn) bool) BroadcastResult {
	r.connsLock.RLock()
	selfPort, selfEndpoint := r.selfPort, r.selfEndpoint
	r.connsLock.RUnlock()

	var result BroadcastResult
	for _, c := range r.Snapshot() {
		if !c.IsAlive() {
			continue
		}
		if loopsToSelf(c, selfEndpoint, selfPort) {
			continue
		}
		if exclude != nil && exclude(c) {
			continue
		}
		if err := c.WriteLine(line); err != nil {
			result.Failed = append(result.Failed, c)
			continue
		}
		result.Delivered++
	}

	for _, c := range result.Failed {
		r.Remove(c)
		_ = c.Close()
	}
	return result
}
