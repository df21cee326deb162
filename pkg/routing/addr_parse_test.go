package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePeerAddr(t *testing.T) {
	tests := []struct {
		in   string
		want PeerAddr
	}{
		{"10.0.0.2:8123", PeerAddr{Host: "10.0.0.2", Port: 8123}},
		{" alice.lan:8500 ", PeerAddr{Host: "alice.lan", Port: 8500}},
		{"8123", PeerAddr{Host: "127.0.0.1", Port: 8123}},
		{":8123", PeerAddr{Host: "127.0.0.1", Port: 8123}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePeerAddr(tt.in, "127.0.0.1")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePeerAddr_Invalid(t *testing.T) {
	for _, in := range []string{"", "alice", "10.0.0.2:", "10.0.0.2:0", "10.0.0.2:99999", "10.0.0.2:http"} {
		_, err := NormalizePeerAddr(in, "127.0.0.1")
		require.Error(t, err, in)
	}
}

func TestParsePeerAddrString(t *testing.T) {
	req := require.New(t)

	peers, rejected := ParsePeerAddrString("10.0.0.2:8123, ,bogus,10.0.0.3:8456,10.0.0.2:8123,9000", "10.0.0.1")

	req.Equal([]PeerAddr{
		{Host: "10.0.0.2", Port: 8123},
		{Host: "10.0.0.3", Port: 8456},
		{Host: "10.0.0.1", Port: 9000},
	}, peers)
	req.Equal([]string{"bogus"}, rejected)
	req.Equal("10.0.0.3:8456", peers[1].String())
}

func TestParsePeerAddrString_Empty(t *testing.T) {
	req := require.New(t)
	peers, rejected := ParsePeerAddrString("  ", "10.0.0.1")
	req.Empty(peers)
	req.Nil(rejected)
}
