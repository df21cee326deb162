package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/mesh"
	"github.com/lanchat/pkg/peer"
	"github.com/lanchat/pkg/protocol"
)

// Discovered connects to the node named by a presence announcement
func (s *ChatServer) Discovered(ann protocol.Announcement) error {
	_, err := s.Connect(ann.IP.String(), ann.Port)
	return err
}

// Connect opens a stream to the node listening on ip:port and joins it to the mesh.
// A live link already bound to that endpoint is returned as is. A failed dial
// leaves the registry untouched and is not retried.
func (s *ChatServer) Connect(ip string, port int) (*peer.Conn, error) {
	if s.listener == nil {
		return nil, ErrNotStarted
	}
	if s.isClosed() {
		return nil, ErrShuttingDown
	}
	endpoint := net.JoinHostPort(ip, strconv.Itoa(port))
	if endpoint == s.identity.Endpoint() {
		return nil, ErrSelfConnect
	}
	if c, ok := s.registry.Lookup(endpoint); ok {
		logging.Debugf("[mesh] already linked (endpoint=%s peer=%s)", endpoint, c.Name())
		return c, nil
	}
	if !s.beginDial(endpoint) {
		return nil, ErrDialInProgress
	}
	defer s.endDial(endpoint)

	link, err := mesh.Dial(ip, port, s.cfg.GetDialTimeout())
	s.collector.RecordDial(err == nil)
	if err != nil {
		logging.Logf("[mesh] dial failed (endpoint=%s err=%v)", endpoint, err)
		return nil, err
	}
	return s.register(link.Conn, true, link.Addr, link.ConnectedAt)
}

func (s *ChatServer) beginDial(endpoint string) bool {
	s.dialingLock.Lock()
	defer s.dialingLock.Unlock()
	if _, ok := s.dialing[endpoint]; ok {
		return false
	}
	s.dialing[endpoint] = struct{}{}
	return true
}

func (s *ChatServer) endDial(endpoint string) {
	s.dialingLock.Lock()
	defer s.dialingLock.Unlock()
	delete(s.dialing, endpoint)
}

// register adds a fresh stream to the registry: HELLO first, then the router
// goroutine, then this node's join notice to every peer including the new one.
// listenAddr is the dialed endpoint for outbound streams and empty otherwise.
func (s *ChatServer) register(conn net.Conn, outbound bool, listenAddr string, connectedAt time.Time) (*peer.Conn, error) {
	c := peer.NewConn(conn, outbound, s.cfg.GetWriteTimeout())
	c.ConnectedAt = connectedAt
	if listenAddr != "" {
		c.SetPeer("", listenAddr)
	}

	hello := protocol.NewHello(s.identity.Name, s.identity.Endpoint())
	if err := c.WriteLine(hello.String()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	s.stateLock.Lock()
	if s.closed {
		s.stateLock.Unlock()
		_ = c.Close()
		return nil, ErrShuttingDown
	}
	if !s.registry.Add(c) {
		s.stateLock.Unlock()
		_ = c.Close()
		return nil, fmt.Errorf("connection %s already registered", c.Remote)
	}
	s.wg.Add(1)
	s.stateLock.Unlock()

	s.collector.RecordPeerAdded()
	s.collector.RecordSent(string(protocol.KindHello), 1, 0)
	logging.Logf("[registry] peer added (remote=%s direction=%s peers=%d)", c.Remote, direction(outbound), s.registry.Len())

	go s.servePeer(c)

	join := protocol.NewJoin(s.identity.Name)
	s.broadcast(join, nil)
	return c, nil
}

// broadcast writes msg to every registered peer except exclude and accounts for the result
func (s *ChatServer) broadcast(msg protocol.Message, exclude *peer.Conn) peer.BroadcastResult {
	var skip func(*peer.Conn) bool
	if exclude != nil {
		skip = func(c *peer.Conn) bool { return c == exclude }
	}
	result := s.registry.Broadcast(msg.String(), skip)
	s.collector.RecordSent(string(msg.Kind), result.Delivered, len(result.Failed))
	for _, failed := range result.Failed {
		s.collector.RecordPeerLost()
		logging.Logf("[registry] peer removed after write failure (remote=%s peer=%s)", failed.Remote, failed.Name())
		s.forgetEndpoint(failed.ListenAddr())
	}
	return result
}
