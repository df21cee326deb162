package peer

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	fail   bool
	closed bool
	remote *net.TCPAddr
}

func newFakeConn(port int, fail bool) *fakeConn {
	return &fakeConn{fail: fail, remote: &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: port}}
}

func (f *fakeConn) Read([]byte) (int, error) { return 0, io.EOF }

func (f *fakeConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return 0, errors.New("broken pipe")
	}
	return f.buf.Write(b)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) LocalAddr() net.Addr { return &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 8001} }
func (f *fakeConn) RemoteAddr() net.Addr { return f.remote }
func (f *fakeConn) SetDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func TestRegistry_AddRefusesSameEndpoint(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)

	first := NewConn(newFakeConn(9001, false), true, 0)
	second := NewConn(newFakeConn(9001, false), false, 0)

	req.True(r.Add(first))
	req.False(r.Add(first))
	req.False(r.Add(second))
	req.Equal(1, r.Len())
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)
	c := NewConn(newFakeConn(9001, false), true, 0)

	req.False(r.Remove(c))
	req.True(r.Add(c))
	req.True(r.Remove(c))
	req.False(r.Remove(c))
	req.Equal(0, r.Len())
}

func TestRegistry_BroadcastSurvivesFailedPeer(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)

	// Given three peers where the second one fails on write
	raw := []*fakeConn{newFakeConn(9001, false), newFakeConn(9002, true), newFakeConn(9003, false)}
	conns := make([]*Conn, 0, len(raw))
	for _, f := range raw {
		c := NewConn(f, true, time.Second)
		req.True(r.Add(c))
		conns = append(conns, c)
	}

	// When a line is broadcast
	result := r.Broadcast("CHAT:1:alice:hi", nil)

	// Then the healthy peers got it and the failing one is gone
	req.Equal(2, result.Delivered)
	req.Equal([]*Conn{conns[1]}, result.Failed)
	req.Equal("CHAT:1:alice:hi\n", raw[0].written())
	req.Equal("CHAT:1:alice:hi\n", raw[2].written())
	req.Equal(2, r.Len())
	req.NotContains(r.Snapshot(), conns[1])
	req.True(raw[1].isClosed())
	req.False(conns[1].IsAlive())
}

func TestRegistry_BroadcastSkipsOwnPortAndExcluded(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)

	self := newFakeConn(8001, false)
	other := newFakeConn(9002, false)
	source := newFakeConn(9003, false)
	sourceConn := NewConn(source, false, 0)
	r.Add(NewConn(self, true, 0))
	r.Add(NewConn(other, true, 0))
	r.Add(sourceConn)

	result := r.Broadcast("JOIN:1:bob:", func(c *Conn) bool { return c == sourceConn })

	req.Equal(1, result.Delivered)
	req.Empty(self.written())
	req.Empty(source.written())
	req.Equal("JOIN:1:bob:\n", other.written())
	req.Equal(3, r.Len())
}

func TestRegistry_BroadcastReachesPeerSharingStreamPort(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(0)
	r.SetSelf("10.0.0.1:8001", 8001)

	// Given a dialed peer on another host listening on the same port
	remote := newFakeConn(8001, false)
	dialed := NewConn(remote, true, 0)
	dialed.SetPeer("", "10.0.0.2:8001")
	r.Add(dialed)

	// And a link bound to this node's own endpoint
	loop := newFakeConn(40001, false)
	loopConn := NewConn(loop, false, 0)
	r.Add(loopConn)
	r.Bind(loopConn, "alice", "10.0.0.1:8001")

	// When a line is broadcast
	result := r.Broadcast("CHAT:1:alice:hi", nil)

	// Then only the remote peer gets it
	req.Equal(1, result.Delivered)
	req.Equal("CHAT:1:alice:hi\n", remote.written())
	req.Empty(loop.written())
}

func TestRegistry_BindAndLookup(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)

	a := NewConn(newFakeConn(9001, false), true, 0)
	b := NewConn(newFakeConn(40000, false), false, 0)
	r.Add(a)
	r.Add(b)

	// When the first link is bound
	existing, dup := r.Bind(a, "bob", "10.0.0.2:9001")
	req.False(dup)
	req.Nil(existing)

	found, ok := r.Lookup("10.0.0.2:9001")
	req.True(ok)
	req.Same(a, found)
	req.Equal("bob", a.Name())

	// When a second link announces the same endpoint it is reported as duplicate
	existing, dup = r.Bind(b, "bob", "10.0.0.2:9001")
	req.True(dup)
	req.Same(a, existing)

	// Closed links are ignored
	_ = a.Close()
	found, ok = r.Lookup("10.0.0.2:9001")
	req.True(ok)
	req.Same(b, found)

	_, ok = r.Lookup("")
	req.False(ok)
}

func TestConn_WriteAfterClose(t *testing.T) {
	req := require.New(t)
	c := NewConn(newFakeConn(9001, false), true, 0)

	req.NoError(c.Close())
	req.NoError(c.Close())
	req.ErrorIs(c.WriteLine("x"), ErrClosed)
}

func TestRegistry_Peers(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(8001)
	c := NewConn(newFakeConn(9001, false), true, 0)
	r.Add(c)
	r.Bind(c, "bob", "10.0.0.2:9001")

	peers := r.Peers()
	req.Len(peers, 1)
	req.Equal("bob", peers[0].Name)
	req.Equal("10.0.0.2:9001", peers[0].RemoteAddr)
	req.True(peers[0].Outbound)
}
