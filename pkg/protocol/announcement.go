package protocol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformedAnnouncement is returned for discovery datagrams that do not match name:ip:port
var ErrMalformedAnnouncement = errors.New("malformed announcement")

// Announcement is the payload of a presence datagram
type Announcement struct {
	Name string
	IP   net.IP
	Port int
}

// Endpoint returns the announced stream endpoint as "ip:port"
func (a Announcement) Endpoint() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

// FormatAnnouncement formats a presence datagram: name:ip:port (no terminator)
func FormatAnnouncement(name string, ip net.IP, port int) string {
	return name + ":" + ip.String() + ":" + strconv.Itoa(port)
}

// ParseAnnouncement parses a presence datagram.
// Exactly three fields are required; the ip must be IPv4 and the port in 1..65535.
func ParseAnnouncement(data string) (Announcement, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 {
		return Announcement{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedAnnouncement, len(parts))
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return Announcement{}, fmt.Errorf("%w: empty name", ErrMalformedAnnouncement)
	}
	ip := net.ParseIP(strings.TrimSpace(parts[1]))
	if ip == nil || ip.To4() == nil {
		return Announcement{}, fmt.Errorf("%w: bad ip %q", ErrMalformedAnnouncement, parts[1])
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || port <= 0 || port > 65535 {
		return Announcement{}, fmt.Errorf("%w: bad port %q", ErrMalformedAnnouncement, parts[2])
	}
	return Announcement{Name: name, IP: ip.To4(), Port: port}, nil
}
