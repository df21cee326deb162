package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/metrics"
	"github.com/lanchat/pkg/protocol"
)

const defaultMaxDatagram = 1024

// Handler receives every accepted announcement
type Handler func(protocol.Announcement)

// Listener receives presence datagrams and hands each new endpoint to its handler once.
type Listener struct {
	conn        *net.UDPConn
	localIP     net.IP
	handler     Handler
	maxDatagram int

	// OnDatagram, if set, is called with the result of every datagram (metrics.Datagram*)
	OnDatagram func(result string)

	mu       sync.Mutex
	attempts map[string]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds addr ("ip:port", usually ":8888") for presence datagrams.
// Datagrams sent from localIP are ignored.
func Listen(addr string, localIP net.IP, maxDatagram int, handler Handler) (*Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("bind discovery %s: %w", addr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("bind discovery %s: not a UDP socket", addr)
	}
	if maxDatagram <= 0 {
		maxDatagram = defaultMaxDatagram
	}
	return &Listener{
		conn:        conn,
		localIP:     localIP,
		handler:     handler,
		maxDatagram: maxDatagram,
		attempts:    make(map[string]struct{}),
		closed:      make(chan struct{}),
	}, nil
}

// Addr returns the bound address
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until Close is called
func (l *Listener) Serve() {
	buffer := make([]byte, l.maxDatagram)
	for {
		n, from, err := l.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Logf("[discovery] read error: %v", err)
			continue
		}
		l.HandleDatagram(buffer[:n], from)
	}
}

// HandleDatagram processes one datagram and returns its result (metrics.Datagram*).
// Malformed input is dropped; it never stops the listener.
func (l *Listener) HandleDatagram(data []byte, from *net.UDPAddr) string {
	result := l.handle(data, from)
	if l.OnDatagram != nil {
		l.OnDatagram(result)
	}
	return result
}

func (l *Listener) handle(data []byte, from *net.UDPAddr) string {
	if from != nil && l.localIP != nil && from.IP.Equal(l.localIP) {
		return metrics.DatagramSelf
	}
	ann, err := protocol.ParseAnnouncement(string(data))
	if err != nil {
		logging.Debugf("[discovery] dropped datagram (from=%s err=%v)", from, err)
		return metrics.DatagramMalformed
	}

	endpoint := ann.Endpoint()
	l.mu.Lock()
	_, repeated := l.attempts[endpoint]
	if !repeated {
		l.attempts[endpoint] = struct{}{}
	}
	l.mu.Unlock()
	if repeated {
		return metrics.DatagramRepeated
	}

	logging.Logf("[discovery] announcement (name=%s endpoint=%s from=%s)", ann.Name, endpoint, from)
	if l.handler != nil {
		l.handler(ann)
	}
	return metrics.DatagramAccepted
}

// Forget re-arms endpoint so that its next announcement is handled again
func (l *Listener) Forget(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, endpoint)
}

// Close stops Serve and releases the socket (idempotent)
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.conn.Close()
	})
	return err
}
