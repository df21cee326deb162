package mesh

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/lanchat/pkg/logging"
)

// LinkInfo contains connection metadata for a freshly dialed peer link.
type LinkInfo struct {
	Addr        string // dialed ip:port
	Conn        net.Conn
	ConnectedAt time.Time
}

// Dial opens one outbound stream to ip:port. There is no retry: discovery is
// best-effort and a failed dial is left to the caller to report.
func Dial(ip string, port int, timeout time.Duration) (LinkInfo, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
	}
	link := LinkInfo{
		Addr:        addr,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	logging.Debugf("[mesh] dialed addr=%s remote=%s", addr, safeRemoteAddr(conn))
	return link, nil
}

// KeepOutbound decides which of two links between the same pair of nodes
// survives when both nodes dialed each other. The link dialed by the node
// whose endpoint sorts lower is kept, so both sides pick the same one.
func KeepOutbound(selfEndpoint, peerEndpoint string) bool {
	return selfEndpoint < peerEndpoint
}

func safeRemoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
