// Package discovery announces this node on the local network and listens for
// the announcements of other nodes.
//
// An announcement is a single UDP datagram "name:ip:port" sent once at
// startup to the broadcast address. There is no retry and no reply: a node
// that misses it only learns about the sender through the sender's own
// listener, or through a manual connection.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/lanchat/pkg/protocol"
	"github.com/lanchat/pkg/types"
)

// Broadcaster sends the one-shot presence datagram
type Broadcaster struct {
	LocalIP net.IP
	Target  *net.UDPAddr
}

// NewBroadcaster targets broadcastAddr:port, sending from an ephemeral socket on localIP
func NewBroadcaster(localIP net.IP, broadcastAddr string, port int) (*Broadcaster, error) {
	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastAddr, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}
	return &Broadcaster{LocalIP: localIP, Target: target}, nil
}

// Announce sends "name:ip:port" for id. A failure is returned for logging only.
func (b *Broadcaster) Announce(id types.NodeIdentity) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: b.LocalIP})
	if err != nil {
		return fmt.Errorf("open announce socket: %w", err)
	}
	defer conn.Close()

	payload := protocol.FormatAnnouncement(id.Name, id.Address, id.StreamPort)
	if _, err := conn.WriteToUDP([]byte(payload), b.Target); err != nil {
		return fmt.Errorf("send announcement to %s: %w", b.Target, err)
	}
	return nil
}
