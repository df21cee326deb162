package routing

import (
	"net"
	"strconv"
)

// PeerAddr is a stream endpoint of another node given by configuration or on the command line.
type PeerAddr struct {
	Host string // IPv4 address or hostname
	Port int
}

// String returns "host:port"
func (p PeerAddr) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}
