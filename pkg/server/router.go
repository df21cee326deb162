package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/mesh"
	"github.com/lanchat/pkg/metrics"
	"github.com/lanchat/pkg/peer"
	"github.com/lanchat/pkg/protocol"
	"github.com/lanchat/pkg/seen"
)

// servePeer reads newline-delimited lines from c until the stream ends, then
// removes c from the registry. There is no reconnection.
func (s *ChatServer) servePeer(c *peer.Conn) {
	defer s.wg.Done()
	defer s.dropPeer(c)

	initial := 4096
	if s.cfg.Peer.MaxLineBytes < initial {
		initial = s.cfg.Peer.MaxLineBytes
	}
	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, initial), s.cfg.Peer.MaxLineBytes)
	for scanner.Scan() {
		if !s.dispatch(c, scanner.Text()) {
			return
		}
	}

	err := scanner.Err()
	switch {
	case err == nil, errors.Is(err, io.EOF):
		logging.Debugf("[router] stream closed (remote=%s peer=%s)", c.Remote, c.Name())
	case errors.Is(err, bufio.ErrTooLong):
		s.collector.RecordDrop(metrics.DropMalformed)
		logging.Logf("[router] line too long, closing (remote=%s peer=%s limit=%d)", c.Remote, c.Name(), s.cfg.Peer.MaxLineBytes)
	case errors.Is(err, net.ErrClosed) || !c.IsAlive():
		logging.Debugf("[router] stream closed locally (remote=%s peer=%s)", c.Remote, c.Name())
	default:
		logging.Logf("[router] read error (remote=%s peer=%s err=%v)", c.Remote, c.Name(), err)
	}
}

// dispatch handles one line received on c. It returns false when c must be closed.
func (s *ChatServer) dispatch(c *peer.Conn, line string) bool {
	msg, ok := protocol.ParseLine(line)
	if !ok {
		s.collector.RecordDrop(metrics.DropMalformed)
		logging.Debugf("[router] malformed line dropped (remote=%s len=%d)", c.Remote, len(line))
		return true
	}
	s.collector.RecordLine(string(msg.Kind))

	if msg.Kind == protocol.KindHello {
		return s.handleHello(c, msg)
	}
	if msg.Origin == s.identity.Name {
		s.collector.RecordDrop(metrics.DropOwnOrigin)
		return true
	}

	switch msg.Kind {
	case protocol.KindJoin:
		s.handleJoin(c, msg)
	case protocol.KindChat:
		s.handleChat(c, msg)
	case protocol.KindHistory:
		s.handleHistory(msg)
	case protocol.KindExit:
		s.handleExit(msg)
	}
	return true
}

// handleHello binds the peer identity to c and settles self-loops and duplicate links
func (s *ChatServer) handleHello(c *peer.Conn, msg protocol.Message) bool {
	listenAddr := strings.TrimSpace(msg.Body)
	self := s.identity.Endpoint()
	if listenAddr == self {
		s.collector.RecordDrop(metrics.DropSelfLoop)
		logging.Logf("[mesh] closing connection to self (remote=%s)", c.Remote)
		return false
	}

	existing, dup := s.registry.Bind(c, msg.Origin, listenAddr)
	logging.Debugf("[mesh] hello (remote=%s peer=%s endpoint=%s)", c.Remote, msg.Origin, listenAddr)
	if !dup {
		return true
	}

	// Both nodes dialed each other. Keep the link dialed by the lower endpoint.
	keepNew := c.Outbound != existing.Outbound && c.Outbound == mesh.KeepOutbound(self, listenAddr)
	s.collector.RecordDrop(metrics.DropDuplicateLink)
	if keepNew {
		logging.Logf("[mesh] duplicate link (peer=%s keep=%s close=%s)", msg.Origin, c.Remote, existing.Remote)
		s.dropPeer(existing)
		return true
	}
	logging.Logf("[mesh] duplicate link (peer=%s keep=%s close=%s)", msg.Origin, existing.Remote, c.Remote)
	return false
}

func (s *ChatServer) handleJoin(c *peer.Conn, msg protocol.Message) {
	if !s.seen.Add(seen.JoinKey(msg.Origin), msg.Origin) {
		s.collector.RecordDrop(metrics.DropDuplicate)
		return
	}
	text := protocol.JoinText(msg.Origin)
	s.history.Append(history.Incoming, text)
	s.display.Show(text)
	s.broadcast(msg, c)
}

func (s *ChatServer) handleChat(c *peer.Conn, msg protocol.Message) {
	if !s.seen.Add(msg.ID, msg.Origin) {
		s.collector.RecordDrop(metrics.DropDuplicate)
		return
	}
	s.history.Append(history.Incoming, msg.Body)
	s.display.Show(msg.Body)
	if s.cfg.Chat.RelayChat {
		s.broadcast(msg, c)
	}
}

func (s *ChatServer) handleHistory(msg protocol.Message) {
	lines, err := history.Deserialize(msg.Body)
	if err != nil {
		s.collector.RecordDrop(metrics.DropBadHistory)
		logging.Logf("[router] history dump dropped (from=%s err=%v)", msg.Origin, err)
		return
	}
	s.display.ShowHistory(msg.Origin, lines)
}

func (s *ChatServer) handleExit(msg protocol.Message) {
	if s.seen.Has(msg.ID) {
		s.collector.RecordDrop(metrics.DropDuplicate)
		return
	}
	// Forget what the departed node left behind so that a rejoin is shown again.
	// The exit id itself is kept without an origin so that Forget never drops it.
	forgotten := s.seen.Forget(msg.Origin)
	s.seen.Add(msg.ID, "")
	logging.Debugf("[router] exit (peer=%s forgotten=%d)", msg.Origin, forgotten)

	text := protocol.ExitText(msg.Origin)
	s.history.Append(history.Incoming, text)
	s.display.Show(text)
}

// dropPeer closes c and removes it from the registry. Safe to call more than once.
func (s *ChatServer) dropPeer(c *peer.Conn) {
	removed := s.registry.Remove(c)
	_ = c.Close()
	if removed {
		s.collector.RecordPeerLost()
		logging.Logf("[registry] peer removed (remote=%s peer=%s peers=%d)", c.Remote, c.Name(), s.registry.Len())
	}
	s.forgetEndpoint(c.ListenAddr())
}

// forgetEndpoint re-arms discovery for endpoint once no live link to it remains
func (s *ChatServer) forgetEndpoint(endpoint string) {
	if s.discovery == nil || endpoint == "" {
		return
	}
	if _, ok := s.registry.Lookup(endpoint); ok {
		return
	}
	s.discovery.Forget(endpoint)
}
