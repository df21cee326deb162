package routing

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

func isPortNumber(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port > 0 && port < 65536
}

// NormalizePeerAddr normalizes a peer address.
// - If address is only a port number (e.g., "8123"), prepend defaultHost.
// - If the host part is empty (e.g., ":8123"), use defaultHost.
// Returns an error when no valid port is present.
func NormalizePeerAddr(addr string, defaultHost string) (PeerAddr, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return PeerAddr{}, fmt.Errorf("empty peer address")
	}

	// No colon, check if it's a valid port number
	if !strings.Contains(addr, ":") {
		if !isPortNumber(addr) {
			return PeerAddr{}, fmt.Errorf("peer address %q has no port", addr)
		}
		port, _ := strconv.Atoi(addr)
		return PeerAddr{Host: defaultHost, Port: port}, nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return PeerAddr{}, fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	if !isPortNumber(port) {
		return PeerAddr{}, fmt.Errorf("invalid port in peer address %q", addr)
	}
	if host == "" {
		host = defaultHost
	}
	p, _ := strconv.Atoi(port)
	return PeerAddr{Host: host, Port: p}, nil
}

// ParsePeerAddrString parses the comma-separated peer list format (REMOTE_PEER_ADDR).
//
// Supported formats (comma-separated):
//  1. ip:port       -> e.g., "192.168.1.20:8123"
//  2. hostname:port -> e.g., "alice-laptop.lan:8123"
//  3. port          -> defaultHost:port (e.g., "8123")
//
// Invalid items are returned in rejected and do not stop the parse. Duplicates are dropped.
func ParsePeerAddrString(s string, defaultHost string) (peers []PeerAddr, rejected []string) {
	peers = make([]PeerAddr, 0)
	if strings.TrimSpace(s) == "" {
		return peers, nil
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := NormalizePeerAddr(part, defaultHost)
		if err != nil {
			rejected = append(rejected, part)
			continue
		}
		if _, ok := seen[addr.String()]; ok {
			continue
		}
		seen[addr.String()] = struct{}{}
		peers = append(peers, addr)
	}
	return peers, rejected
}
