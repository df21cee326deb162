package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/lanchat/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExportsCountersAndPeers(t *testing.T) {
	req := require.New(t)

	peers := []types.PeerInfo{
		{Name: "bob", Outbound: true, ConnectedAt: time.Now()},
		{Name: "", Outbound: false, ConnectedAt: time.Now()},
	}
	c := NewCollector("alice",
		func() []types.PeerInfo { return peers },
		func() (int, int) { return 2, 3 },
	)

	// When some events are recorded
	c.RecordLine("CHAT")
	c.RecordLine("CHAT")
	c.RecordDrop(DropOwnOrigin)
	c.RecordDial(true)
	c.RecordDial(false)
	c.RecordSent("JOIN", 2, 1)
	c.RecordDatagram(DatagramSelf)

	// Then they are exported
	expected := `
# HELP lanchat_lines_received_total Total protocol lines received by kind
# TYPE lanchat_lines_received_total counter
lanchat_lines_received_total{kind="CHAT",node="alice"} 2
`
	req.NoError(testutil.CollectAndCompare(c, strings.NewReader(expected), "lanchat_lines_received_total"))

	expected = `
# HELP lanchat_dials_failed_total Total failed outbound connection attempts
# TYPE lanchat_dials_failed_total counter
lanchat_dials_failed_total{node="alice"} 1
# HELP lanchat_dials_total Total outbound connection attempts
# TYPE lanchat_dials_total counter
lanchat_dials_total{node="alice"} 2
`
	req.NoError(testutil.CollectAndCompare(c, strings.NewReader(expected), "lanchat_dials_total", "lanchat_dials_failed_total"))

	req.Equal(1, testutil.CollectAndCount(c, "lanchat_peers_connected"))
	req.Equal(2, testutil.CollectAndCount(c, "lanchat_peer_up"))
	req.Equal(2, testutil.CollectAndCount(c, "lanchat_history_entries"))
	req.Equal(1, testutil.CollectAndCount(c, "lanchat_write_failures_total"))
}

func TestCollector_NilCallbacks(t *testing.T) {
	req := require.New(t)
	c := NewCollector("", nil, nil)

	req.Equal(0, testutil.CollectAndCount(c, "lanchat_history_entries"))
	req.Equal(1, testutil.CollectAndCount(c, "lanchat_node_info"))
}
