// Package client dials the statically configured peers of a chat node once
// at startup. It complements presence discovery on networks where broadcast
// datagrams do not get through.
package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/lanchat/pkg/config"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/peer"
	"github.com/lanchat/pkg/routing"
)

// Connector opens a stream to another node
type Connector interface {
	Connect(ip string, port int) (*peer.Conn, error)
}

// Run connects to every peer from REMOTE_PEER_ADDR (peer.remote_peer_addr)
// plus extra, in parallel, and returns how many links were established.
// Hostnames are resolved to all their IPv4 addresses. Failures are logged and
// not retried.
func Run(ctx context.Context, cfg *config.Config, extra []string, connector Connector) (int, error) {
	var raw []string
	defaultHost := "127.0.0.1"
	if cfg != nil {
		if cfg.Peer.RemotePeerAddr != "" {
			raw = append(raw, cfg.Peer.RemotePeerAddr)
		}
		if ip := cfg.LocalIP(); ip != nil {
			defaultHost = ip.String()
		}
	}
	raw = append(raw, extra...)

	peers, rejected := routing.ParsePeerAddrString(strings.Join(raw, ","), defaultHost)
	for _, r := range rejected {
		logging.Logf("[client] ignoring invalid peer address %q", r)
	}
	if len(peers) == 0 {
		return 0, nil
	}

	// Expand peer addresses (resolve hostnames to all A records when possible)
	peers = expandPeerAddrs(ctx, peers)
	logging.Logf("[client] connecting to %d configured peer(s)", len(peers))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		connected int
		failures  []string
	)
	for _, p := range peers {
		wg.Add(1)
		go func(p routing.PeerAddr) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			_, err := connector.Connect(p.Host, p.Port)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, p.String())
				logging.Logf("Peer connection to %s failed: %v", p, err)
				return
			}
			connected++
		}(p)
	}
	wg.Wait()

	if connected == 0 && len(failures) > 0 {
		return 0, fmt.Errorf("no configured peer reachable (tried %s)", strings.Join(failures, ","))
	}
	return connected, nil
}

func expandPeerAddrs(ctx context.Context, addrs []routing.PeerAddr) []routing.PeerAddr {
	out := make([]routing.PeerAddr, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))

	addUnique := func(addr routing.PeerAddr) {
		if _, ok := seen[addr.String()]; ok {
			return
		}
		seen[addr.String()] = struct{}{}
		out = append(out, addr)
	}

	for _, addr := range addrs {
		if ip := net.ParseIP(addr.Host); ip != nil {
			addUnique(routing.PeerAddr{Host: ip.String(), Port: addr.Port})
			continue
		}

		ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", addr.Host)
		if err != nil || len(ips) == 0 {
			logging.Logf("[client] peer addr resolve failed (addr=%s err=%v)", addr, err)
			continue
		}
		logging.Debugf("[client] peer addr resolved (addr=%s ips=%v)", addr, ips)
		for _, ip := range ips {
			addUnique(routing.PeerAddr{Host: ip.String(), Port: addr.Port})
		}
	}

	return out
}
