package peer

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanchat/pkg/types"
)

// ErrClosed is returned when writing to a connection that is no longer alive
var ErrClosed = errors.New("peer connection closed")

// Conn is one live stream connection to another node
type Conn struct {
	net.Conn
	Remote      string
	Outbound    bool
	ConnectedAt time.Time

	writeTimeout time.Duration
	writeMu      sync.Mutex
	alive        atomic.Bool
	closeOnce    sync.Once

	// Learned from the peer's HELLO line
	infoMu     sync.RWMutex
	name       string
	listenAddr string
}

// NewConn wraps an established stream. writeTimeout bounds every line write (0 = none).
func NewConn(conn net.Conn, outbound bool, writeTimeout time.Duration) *Conn {
	c := &Conn{
		Conn:         conn,
		Remote:       safeRemoteAddr(conn),
		Outbound:     outbound,
		ConnectedAt:  time.Now(),
		writeTimeout: writeTimeout,
	}
	c.alive.Store(true)
	return c
}

// IsAlive reports whether the connection has not been closed
func (c *Conn) IsAlive() bool {
	return c.alive.Load()
}

// RemotePort returns the remote TCP port, or 0 if unknown
func (c *Conn) RemotePort() int {
	if c.Conn == nil {
		return 0
	}
	if tcpAddr, ok := c.Conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	_, port, err := net.SplitHostPort(c.Remote)
	if err != nil {
		return 0
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return p
}

// WriteLine writes line followed by '\n'. Writes are serialized per connection.
func (c *Conn) WriteLine(line string) error {
	if !c.IsAlive() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.Conn.Write([]byte(line + "\n"))
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Time{})
	}
	if err != nil {
		return fmt.Errorf("write to %s: %w", c.Remote, err)
	}
	return nil
}

// Close marks the connection dead and closes the stream (idempotent)
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		if c.Conn != nil {
			err = c.Conn.Close()
		}
	})
	return err
}

// SetPeer records the name and listen endpoint announced by the peer
func (c *Conn) SetPeer(name, listenAddr string) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.name = name
	c.listenAddr = listenAddr
}

// Name returns the peer name, empty until HELLO is received
func (c *Conn) Name() string {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.name
}

// ListenAddr returns the peer's stream endpoint, empty until HELLO is received
func (c *Conn) ListenAddr() string {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.listenAddr
}

// Info returns a read-only snapshot of the connection
func (c *Conn) Info() types.PeerInfo {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return types.PeerInfo{
		Name:        c.name,
		RemoteAddr:  c.Remote,
		ListenAddr:  c.listenAddr,
		Outbound:    c.Outbound,
		ConnectedAt: c.ConnectedAt,
	}
}

func safeRemoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
