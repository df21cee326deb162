package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanchat/pkg/config"
	"github.com/lanchat/pkg/discovery"
	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/metrics"
	"github.com/lanchat/pkg/peer"
	"github.com/lanchat/pkg/protocol"
	"github.com/lanchat/pkg/seen"
	"github.com/lanchat/pkg/types"
)

// NewChatServer creates a chat node. Nothing is bound until Start.
// display may be nil when nothing needs to be shown (tests, headless nodes).
func NewChatServer(cfg *config.Config, display Display) (*ChatServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if display == nil {
		display = nopDisplay{}
	}

	registry := prometheus.NewRegistry()

	server := &ChatServer{
		cfg:          cfg,
		display:      display,
		registry:     peer.NewRegistry(0),
		seen:         seen.New(),
		history:      history.New(),
		promRegistry: registry,
		dialing:      make(map[string]struct{}),
		identity: types.NodeIdentity{
			Name:    strings.TrimSpace(cfg.Node.Name),
			Address: cfg.LocalIP(),
		},
	}

	// Create collector with callbacks that use this server instance
	collector := metrics.NewCollector(
		server.identity.Name,
		func() []types.PeerInfo {
			return server.registry.Peers()
		},
		func() (int, int) {
			return len(server.history.FilterByTag(history.Outgoing)), len(server.history.FilterByTag(history.Incoming))
		},
	)

	server.collector = collector
	registry.MustRegister(collector)

	return server, nil
}

// Start binds the stream listener, starts the acceptor and the presence
// listener, and sends the presence announcement.
func (s *ChatServer) Start() error {
	s.stateLock.Lock()
	if s.closed {
		s.stateLock.Unlock()
		return ErrShuttingDown
	}
	if s.started {
		s.stateLock.Unlock()
		return fmt.Errorf("node already started")
	}
	s.started = true
	s.stateLock.Unlock()

	ln, err := s.bindStream()
	if err != nil {
		return err
	}
	s.listener = ln
	s.identity.StreamPort = ln.Addr().(*net.TCPAddr).Port
	s.registry.SetSelf(s.identity.Endpoint(), s.identity.StreamPort)
	logging.SetNodeID(s.identity.String())
	logging.Logf("[listen] stream addr=%s name=%s", s.identity.Endpoint(), s.identity.Name)

	s.history.Append(history.Incoming, "You joined")

	if !s.cfg.Discovery.Disabled {
		addr := net.JoinHostPort(s.cfg.Discovery.ListenIP, fmt.Sprint(s.cfg.Discovery.Port))
		l, err := discovery.Listen(addr, s.identity.Address, s.cfg.Discovery.MaxDatagramBytes, func(ann protocol.Announcement) {
			go func() {
				if err := s.Discovered(ann); err != nil {
					logging.Logf("[discovery] connect failed (name=%s endpoint=%s err=%v)", ann.Name, ann.Endpoint(), err)
				}
			}()
		})
		if err != nil {
			_ = ln.Close()
			return err
		}
		l.OnDatagram = s.collector.RecordDatagram
		s.discovery = l
		logging.Logf("[listen] discovery addr=%s", l.Addr())
	}

	s.wg.Add(1)
	go s.acceptLoop(ln)

	if s.discovery != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.discovery.Serve()
		}()
		s.announce()
	}
	return nil
}

func (s *ChatServer) announce() {
	b, err := discovery.NewBroadcaster(s.identity.Address, s.cfg.Discovery.BroadcastAddr, s.cfg.Discovery.Port)
	if err != nil {
		logging.Logf("[discovery] announce skipped: %v", err)
		return
	}
	if err := b.Announce(s.identity); err != nil {
		logging.Logf("[discovery] announce failed (target=%s err=%v)", b.Target, err)
		return
	}
	logging.Logf("[discovery] announced (target=%s endpoint=%s)", b.Target, s.identity.Endpoint())
}

// Identity returns this node's identity. StreamPort is 0 before Start.
func (s *ChatServer) Identity() types.NodeIdentity {
	return s.identity
}

// Peers returns a snapshot of the registered peer connections
func (s *ChatServer) Peers() []types.PeerInfo {
	return s.registry.Peers()
}

// History returns the local history log
func (s *ChatServer) History() *history.Log {
	return s.history
}

// Collector returns the metrics collector of this node
func (s *ChatServer) Collector() *metrics.Collector {
	return s.collector
}

// WritePeersTable renders the registered peers as a table
func (s *ChatServer) WritePeersTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Peer", "Endpoint", "Remote", "Direction", "Since"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, p := range s.Peers() {
		name := p.Name
		if name == "" {
			name = "-"
		}
		table.Append([]string{name, p.ListenAddr, p.RemoteAddr, direction(p.Outbound), p.ConnectedAt.Format(time.TimeOnly)})
	}
	table.Render()
}

// LogPeersTable logs the peer table. Always prints regardless of log level.
func (s *ChatServer) LogPeersTable() {
	var b strings.Builder
	s.WritePeersTable(&b)
	logging.Logf("[registry] peers node=%s count=%d\n%s", s.identity.Name, s.registry.Len(), strings.TrimRight(b.String(), "\n"))
}

func direction(outbound bool) string {
	if outbound {
		return "outbound"
	}
	return "inbound"
}

// StartMetricsServer starts the metrics server. It returns http.ErrServerClosed after Shutdown.
func (s *ChatServer) StartMetricsServer(metricsAddr, metricsPath string) error {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
<head><title>LAN Chat Exporter</title></head>
<body>
<h1>LAN Chat Exporter</h1>
<p><a href="` + metricsPath + `">Metrics</a></p>
</body>
</html>`))
	})

	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.stateLock.Lock()
	if s.closed {
		s.stateLock.Unlock()
		return http.ErrServerClosed
	}
	s.metricsServer = srv
	s.stateLock.Unlock()

	logging.Logf("[listen] metrics addr=%s path=%s health=/healthz", metricsAddr, metricsPath)
	return srv.ListenAndServe()
}

func (s *ChatServer) stopMetricsServer() {
	s.stateLock.Lock()
	srv := s.metricsServer
	s.stateLock.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
