package metrics

import (
	"sync"

	"github.com/lanchat/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons (low cardinality)
const (
	DropMalformed     = "malformed"
	DropOwnOrigin     = "own_origin"
	DropDuplicate     = "duplicate"
	DropBadHistory    = "bad_history"
	DropSelfLoop      = "self_loop"
	DropDuplicateLink = "duplicate_link"
)

// Discovery datagram results
const (
	DatagramAccepted  = "accepted"
	DatagramSelf      = "self"
	DatagramMalformed = "malformed"
	DatagramRepeated  = "repeated"
)

// Collector Prometheus metrics collector for one chat node
type Collector struct {
	NodeName   string
	GetPeers   func() []types.PeerInfo
	GetHistory func() (outgoing, incoming int)

	// Info metric (always 1)
	nodeInfo *prometheus.Desc

	// Peer metrics
	peersConnected   *prometheus.Desc
	peerUp           *prometheus.Desc
	peersAddedTotal  *prometheus.Desc
	peersLostTotal   *prometheus.Desc
	dialsTotal       *prometheus.Desc
	dialsFailedTotal *prometheus.Desc

	// Message metrics
	linesReceivedTotal *prometheus.Desc
	linesDroppedTotal  *prometheus.Desc
	linesSentTotal     *prometheus.Desc
	writeFailuresTotal *prometheus.Desc
	historyEntries     *prometheus.Desc

	// Discovery metrics
	datagramsTotal *prometheus.Desc

	// Counters (protected by mutex)
	metricsLock   sync.RWMutex
	peersAdded    float64
	peersLost     float64
	dials         float64
	dialsFailed   float64
	linesByKind   map[string]float64
	dropsByReason map[string]float64
	sentByKind    map[string]float64
	writeFailures float64
	datagrams     map[string]float64
}

// NewCollector creates a new metrics collector
func NewCollector(nodeName string, getPeers func() []types.PeerInfo, getHistory func() (int, int)) *Collector {
	return &Collector{
		NodeName:   nodeName,
		GetPeers:   getPeers,
		GetHistory: getHistory,
		nodeInfo: prometheus.NewDesc(
			"lanchat_node_info",
			"Chat node info metric (always 1).",
			[]string{"node"},
			nil,
		),
		peersConnected: prometheus.NewDesc(
			"lanchat_peers_connected",
			"Number of peer connections currently in the registry",
			[]string{"node"},
			nil,
		),
		peerUp: prometheus.NewDesc(
			"lanchat_peer_up",
			"Registered peer connection by peer name and direction (always 1 while registered)",
			[]string{"peer", "direction", "node"},
			nil,
		),
		peersAddedTotal: prometheus.NewDesc(
			"lanchat_peers_added_total",
			"Total peer connections registered (accepted or dialed)",
			[]string{"node"},
			nil,
		),
		peersLostTotal: prometheus.NewDesc(
			"lanchat_peers_lost_total",
			"Total peer connections removed from the registry",
			[]string{"node"},
			nil,
		),
		dialsTotal: prometheus.NewDesc(
			"lanchat_dials_total",
			"Total outbound connection attempts",
			[]string{"node"},
			nil,
		),
		dialsFailedTotal: prometheus.NewDesc(
			"lanchat_dials_failed_total",
			"Total failed outbound connection attempts",
			[]string{"node"},
			nil,
		),
		linesReceivedTotal: prometheus.NewDesc(
			"lanchat_lines_received_total",
			"Total protocol lines received by kind",
			[]string{"kind", "node"},
			nil,
		),
		linesDroppedTotal: prometheus.NewDesc(
			"lanchat_lines_dropped_total",
			"Total protocol lines dropped by reason",
			[]string{"reason", "node"},
			nil,
		),
		linesSentTotal: prometheus.NewDesc(
			"lanchat_lines_sent_total",
			"Total protocol lines written to peers by kind",
			[]string{"kind", "node"},
			nil,
		),
		writeFailuresTotal: prometheus.NewDesc(
			"lanchat_write_failures_total",
			"Total failed writes to peer connections",
			[]string{"node"},
			nil,
		),
		historyEntries: prometheus.NewDesc(
			"lanchat_history_entries",
			"Number of entries in the local history log by tag",
			[]string{"tag", "node"},
			nil,
		),
		datagramsTotal: prometheus.NewDesc(
			"lanchat_discovery_datagrams_total",
			"Total presence datagrams received by result",
			[]string{"result", "node"},
			nil,
		),
		linesByKind:   make(map[string]float64),
		dropsByReason: make(map[string]float64),
		sentByKind:    make(map[string]float64),
		datagrams:     make(map[string]float64),
	}
}

// RecordPeerAdded records a registered peer connection
func (c *Collector) RecordPeerAdded() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.peersAdded++
}

// RecordPeerLost records a peer connection removed from the registry
func (c *Collector) RecordPeerLost() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.peersLost++
}

// RecordDial records an outbound connection attempt
func (c *Collector) RecordDial(success bool) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.dials++
	if !success {
		c.dialsFailed++
	}
}

// RecordLine records a received protocol line by kind
func (c *Collector) RecordLine(kind string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.linesByKind[kind]++
}

// RecordDrop records a dropped line by reason
func (c *Collector) RecordDrop(reason string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.dropsByReason[reason]++
}

// RecordSent records lines written to peers
func (c *Collector) RecordSent(kind string, delivered, failed int) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.sentByKind[kind] += float64(delivered)
	c.writeFailures += float64(failed)
}

// RecordDatagram records a received presence datagram by result
func (c *Collector) RecordDatagram(result string) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.datagrams[result]++
}

// Describe implements prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodeInfo
	ch <- c.peersConnected
	ch <- c.peerUp
	ch <- c.peersAddedTotal
	ch <- c.peersLostTotal
	ch <- c.dialsTotal
	ch <- c.dialsFailedTotal
	ch <- c.linesReceivedTotal
	ch <- c.linesDroppedTotal
	ch <- c.linesSentTotal
	ch <- c.writeFailuresTotal
	ch <- c.historyEntries
	ch <- c.datagramsTotal
}

// Collect implements prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	node := c.NodeName
	if node == "" {
		node = "unknown"
	}

	ch <- prometheus.MustNewConstMetric(c.nodeInfo, prometheus.GaugeValue, 1, node)

	var peers []types.PeerInfo
	if c.GetPeers != nil {
		peers = c.GetPeers()
	}
	ch <- prometheus.MustNewConstMetric(c.peersConnected, prometheus.GaugeValue, float64(len(peers)), node)

	// Per-peer gauge; a peer may be linked more than once for a moment, aggregate by label set
	up := make(map[[2]string]float64)
	for _, p := range peers {
		name := p.Name
		if name == "" {
			name = "pending"
		}
		direction := "inbound"
		if p.Outbound {
			direction = "outbound"
		}
		up[[2]string{name, direction}]++
	}
	for key, v := range up {
		ch <- prometheus.MustNewConstMetric(c.peerUp, prometheus.GaugeValue, v, key[0], key[1], node)
	}

	if c.GetHistory != nil {
		outgoing, incoming := c.GetHistory()
		ch <- prometheus.MustNewConstMetric(c.historyEntries, prometheus.GaugeValue, float64(outgoing), "outgoing", node)
		ch <- prometheus.MustNewConstMetric(c.historyEntries, prometheus.GaugeValue, float64(incoming), "incoming", node)
	}

	// Collect metrics from counters
	c.metricsLock.RLock()
	defer c.metricsLock.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.peersAddedTotal, prometheus.CounterValue, c.peersAdded, node)
	ch <- prometheus.MustNewConstMetric(c.peersLostTotal, prometheus.CounterValue, c.peersLost, node)
	ch <- prometheus.MustNewConstMetric(c.dialsTotal, prometheus.CounterValue, c.dials, node)
	ch <- prometheus.MustNewConstMetric(c.dialsFailedTotal, prometheus.CounterValue, c.dialsFailed, node)
	ch <- prometheus.MustNewConstMetric(c.writeFailuresTotal, prometheus.CounterValue, c.writeFailures, node)

	for kind, value := range c.linesByKind {
		ch <- prometheus.MustNewConstMetric(c.linesReceivedTotal, prometheus.CounterValue, value, kind, node)
	}
	for reason, value := range c.dropsByReason {
		ch <- prometheus.MustNewConstMetric(c.linesDroppedTotal, prometheus.CounterValue, value, reason, node)
	}
	for kind, value := range c.sentByKind {
		ch <- prometheus.MustNewConstMetric(c.linesSentTotal, prometheus.CounterValue, value, kind, node)
	}
	for result, value := range c.datagrams {
		ch <- prometheus.MustNewConstMetric(c.datagramsTotal, prometheus.CounterValue, value, result, node)
	}
}
