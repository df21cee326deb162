package server

import (
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lanchat/pkg/config"
	"github.com/lanchat/pkg/discovery"
	"github.com/lanchat/pkg/history"
	"github.com/lanchat/pkg/metrics"
	"github.com/lanchat/pkg/peer"
	"github.com/lanchat/pkg/seen"
	"github.com/lanchat/pkg/types"
)

var (
	// ErrSelfConnect is returned when asked to connect to this node's own endpoint
	ErrSelfConnect = errors.New("refusing to connect to own endpoint")
	// ErrDialInProgress is returned while another dial to the same endpoint is running
	ErrDialInProgress = errors.New("dial already in progress")
	// ErrShuttingDown is returned once Shutdown has started
	ErrShuttingDown = errors.New("node is shutting down")
	// ErrNotStarted is returned by operations that need a bound stream listener
	ErrNotStarted = errors.New("node not started")
	// ErrEmptyMessage is returned by SendChat for blank text
	ErrEmptyMessage = errors.New("empty message")
)

// Display receives everything the router wants to show to the user
type Display interface {
	// Show prints one received line (chat line, join or exit notice)
	Show(line string)
	// ShowHistory prints a history dump received from another node
	ShowHistory(from string, lines []string)
}

type nopDisplay struct{}

func (nopDisplay) Show(string) {}
func (nopDisplay) ShowHistory(string, []string) {}

// ChatServer is one chat node: stream acceptor, connector, router and
// shutdown coordinator around a shared peer registry.
type ChatServer struct {
	cfg      *config.Config
	identity types.NodeIdentity
	display  Display

	registry *peer.Registry
	seen     *seen.Set
	history  *history.Log

	promRegistry *prometheus.Registry
	collector    *metrics.Collector

	listener  net.Listener
	discovery *discovery.Listener

	// dialing holds endpoints with an outbound dial in flight
	dialing     map[string]struct{}
	dialingLock sync.Mutex

	// closed is set under stateLock before routers are waited for, so that
	// no new router goroutine is added to wg after Shutdown starts
	stateLock sync.Mutex
	started   bool
	closed    bool
	wg        sync.WaitGroup

	shutdownOnce  sync.Once
	metricsServer *http.Server
}
