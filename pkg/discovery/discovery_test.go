package discovery

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanchat/pkg/metrics"
	"github.com/lanchat/pkg/protocol"
	"github.com/lanchat/pkg/types"
)

type recorder struct {
	mu    sync.Mutex
	calls []protocol.Announcement
}

func (r *recorder) handle(a protocol.Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, a)
}

func (r *recorder) endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.Endpoint())
	}
	return out
}

func newTestListener(t *testing.T, localIP string, rec *recorder) *Listener {
	t.Helper()
	l, err := Listen("127.0.0.1:0", net.ParseIP(localIP), 0, rec.handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func from(ip string) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: 50000}
}

func TestListener_IgnoresOwnBroadcast(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	l := newTestListener(t, "10.0.0.1", rec)

	// Sender address matches ours, whatever the payload says
	result := l.HandleDatagram([]byte("alice:10.0.0.1:8123"), from("10.0.0.1"))
	req.Equal(metrics.DatagramSelf, result)
	result = l.HandleDatagram([]byte("alias:10.0.0.7:8999"), from("10.0.0.1"))
	req.Equal(metrics.DatagramSelf, result)

	req.Empty(rec.endpoints())
}

func TestListener_ConnectsOncePerEndpoint(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	l := newTestListener(t, "10.0.0.1", rec)

	// Given repeated announcements from two peers
	l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2"))
	l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2"))
	l.HandleDatagram([]byte("carol:10.0.0.3:8300"), from("10.0.0.3"))
	result := l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2"))

	// Then each endpoint is handed over exactly once
	req.Equal(metrics.DatagramRepeated, result)
	req.Equal([]string{"10.0.0.2:8200", "10.0.0.3:8300"}, rec.endpoints())

	// A new port for the same ip is a new endpoint
	l.HandleDatagram([]byte("bob:10.0.0.2:8201"), from("10.0.0.2"))
	req.Len(rec.endpoints(), 3)
}

func TestListener_ForgetRearmsEndpoint(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	l := newTestListener(t, "10.0.0.1", rec)

	l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2"))
	l.Forget("10.0.0.2:8200")
	l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2"))

	req.Len(rec.endpoints(), 2)
}

func TestListener_MalformedDatagramsAreDropped(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}
	l := newTestListener(t, "10.0.0.1", rec)

	var results []string
	l.OnDatagram = func(result string) { results = append(results, result) }

	for _, payload := range []string{"", "bob", "bob:10.0.0.2", "bob:10.0.0.2:port", "a:b:c:d"} {
		req.Equal(metrics.DatagramMalformed, l.HandleDatagram([]byte(payload), from("10.0.0.2")))
	}
	// And the listener keeps working afterwards
	req.Equal(metrics.DatagramAccepted, l.HandleDatagram([]byte("bob:10.0.0.2:8200"), from("10.0.0.2")))

	req.Len(results, 6)
	req.Equal([]string{"10.0.0.2:8200"}, rec.endpoints())
}

func TestBroadcaster_AnnounceReachesListener(t *testing.T) {
	req := require.New(t)
	rec := &recorder{}

	// Given a listener whose own address is not the loopback sender
	l := newTestListener(t, "10.9.9.9", rec)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Serve()
	}()

	// When a datagram is sent to it (unicast stands in for the broadcast address)
	port := l.Addr().(*net.UDPAddr).Port
	b, err := NewBroadcaster(net.ParseIP("127.0.0.1"), "127.0.0.1", port)
	req.NoError(err)
	id := types.NodeIdentity{Name: "alice", Address: net.ParseIP("127.0.0.1"), StreamPort: 8123}
	req.NoError(b.Announce(id))

	// Then the handler sees alice's endpoint
	req.Eventually(func() bool {
		return len(rec.endpoints()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal("127.0.0.1:8123", rec.endpoints()[0])

	// And Close stops Serve
	req.NoError(l.Close())
	req.NoError(l.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		req.Fail("Serve did not return after Close")
	}
}
