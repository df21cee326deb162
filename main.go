package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/lanchat/pkg/client"
	"github.com/lanchat/pkg/config"
	"github.com/lanchat/pkg/console"
	"github.com/lanchat/pkg/logging"
	"github.com/lanchat/pkg/server"
)

var (
	nodeName = kingpin.Arg("name", "Display name of this node (no ':').").String()
	nodeIP   = kingpin.Arg("ip", "Local IPv4 address announced to other nodes.").String()

	configFile    = kingpin.Flag("config.file", "Path to configuration file.").Default("config.yaml").String()
	listenAddress = kingpin.Flag("web.listen-address", "Address to listen on for web interface and telemetry (empty = disabled).").Default("").String()
	telemetryPath = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
	relayChat     = kingpin.Flag("relay-chat", "Re-broadcast received chat lines to the other peers.").Bool()
	noDiscovery   = kingpin.Flag("no-discovery", "Do not announce this node or listen for announcements.").Bool()
	noColor       = kingpin.Flag("no-color", "Disable coloured console output.").Bool()
	peerAddrs     = kingpin.Flag("peer", "Peer stream address (ip:port) to connect to at startup. Repeatable.").Strings()

	// Global config
	appConfig *config.Config
)

func main() {
	kingpin.Parse()

	// A .env file in the working directory may carry the environment overrides
	_ = godotenv.Load()

	// Load configuration
	var err error
	appConfig, err = config.LoadConfig(*configFile)
	if err != nil {
		// If config file doesn't exist, continue with defaults
		logging.Debugf("Failed to load config file: %v, using defaults", err)
		appConfig = config.Default()
	}
	applyFlags(appConfig)

	if err := appConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		kingpin.Usage()
		return
	}
	logging.SetLevel(appConfig.Log.Level)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.Log("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := runNode(ctx); err != nil {
		logging.Fatalf("Node error: %v", err)
	}
	logging.Flush()
}

// applyFlags lets command line values win over file and environment
func applyFlags(cfg *config.Config) {
	if *nodeName != "" {
		cfg.Node.Name = *nodeName
	}
	if *nodeIP != "" {
		cfg.Node.BindIP = *nodeIP
	}
	if *relayChat {
		cfg.Chat.RelayChat = true
	}
	if *noDiscovery {
		cfg.Discovery.Disabled = true
	}
	if *listenAddress != "" {
		cfg.Metrics.ListenAddress = *listenAddress
	}
	if *telemetryPath != "" && *telemetryPath != "/metrics" {
		cfg.Metrics.TelemetryPath = *telemetryPath
	}
}

func runNode(ctx context.Context) error {
	display := console.New(os.Stdout, !*noColor)

	node, err := server.NewChatServer(appConfig, display)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer node.Shutdown()

	display.Notice("You joined as %s. Type to chat; history, send, /peers, /connect ip:port, /quit.", node.Identity())

	// Start metrics server
	if appConfig.Metrics.ListenAddress != "" {
		go func() {
			err := node.StartMetricsServer(appConfig.Metrics.ListenAddress, appConfig.Metrics.TelemetryPath)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Logf("Metrics server error: %v", err)
			}
		}()
	}

	// Connect to remote peers if configured
	go func() {
		connected, err := client.Run(ctx, appConfig, *peerAddrs, node)
		if err != nil {
			logging.Logf("Peer connections error: %v", err)
		}
		if connected > 0 {
			node.LogPeersTable()
		}
	}()

	return console.Run(ctx, os.Stdin, display, node)
}
