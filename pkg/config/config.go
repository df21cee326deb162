package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lanchat/pkg/protocol"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("chatname", func(fl validator.FieldLevel) bool {
		return protocol.ValidName(fl.Field().String())
	})
	return v
}

// Config application configuration structure
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Peer      PeerConfig      `yaml:"peer"`
	Chat      ChatConfig      `yaml:"chat"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NodeConfig identity of this node
type NodeConfig struct {
	Name          string `yaml:"name" validate:"chatname"`                                    // Display name (no ':' or line breaks)
	BindIP        string `yaml:"bind_ip" validate:"required,ipv4"`                            // Local IPv4 address announced to peers and used for listening
	StreamPort    int    `yaml:"stream_port" validate:"gte=0,lte=65535"`                      // Fixed stream port (0 = random in [stream_port_min, stream_port_max))
	StreamPortMin int    `yaml:"stream_port_min" validate:"gte=0,lte=65535"`                  // Lower bound (inclusive) of the random stream port
	StreamPortMax int    `yaml:"stream_port_max" validate:"gtefield=StreamPortMin,lte=65536"` // Upper bound (exclusive) of the random stream port
}

// DiscoveryConfig presence broadcast configuration
type DiscoveryConfig struct {
	Disabled         bool   `yaml:"disabled"`                            // Do not announce or listen for announcements
	Port             int    `yaml:"port" validate:"gte=0,lte=65535"`     // UDP discovery port shared by every node
	BroadcastAddr    string `yaml:"broadcast_addr"`                      // Destination of the presence datagram
	ListenIP         string `yaml:"listen_ip"`                           // Address the discovery listener binds (broadcasts only reach the wildcard address)
	MaxDatagramBytes int    `yaml:"max_datagram_bytes" validate:"gte=0"` // Receive buffer per datagram
}

// PeerConfig peer stream configuration
type PeerConfig struct {
	DialTimeout    int    `yaml:"dial_timeout" validate:"gte=0"`    // Outbound connect timeout in seconds
	WriteTimeout   int    `yaml:"write_timeout" validate:"gte=0"`   // Per-line write timeout in seconds
	MaxLineBytes   int    `yaml:"max_line_bytes" validate:"gte=64"` // Longest accepted protocol line
	RemotePeerAddr string `yaml:"remote_peer_addr"`                 // Comma-separated peers dialed once at startup (e.g., "10.0.0.2:8123,10.0.0.3:8456")
}

// ChatConfig message handling configuration
type ChatConfig struct {
	RelayChat       bool   `yaml:"relay_chat"`       // Re-broadcast received chat lines to other peers (join notices are always relayed)
	TimestampFormat string `yaml:"timestamp_format"` // Go time layout for locally originated lines
}

// LogConfig log configuration
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// MetricsConfig prometheus endpoint configuration
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // Metrics listener address (empty = disabled)
	TelemetryPath string `yaml:"telemetry_path"` // Metrics path
}

// Default returns a configuration with every default applied and env overrides on top
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.ApplyEnvOverrides()
	return cfg
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set default values
	config.SetDefaults()

	// Apply environment variable overrides
	config.ApplyEnvOverrides()

	return &config, nil
}

// SetDefaults sets default values
func (c *Config) SetDefaults() {
	if c.Node.StreamPortMin == 0 && c.Node.StreamPortMax == 0 {
		c.Node.StreamPortMin = 8000
		c.Node.StreamPortMax = 9000
	}

	if c.Discovery.Port == 0 {
		c.Discovery.Port = 8888
	}
	if c.Discovery.BroadcastAddr == "" {
		c.Discovery.BroadcastAddr = "255.255.255.255"
	}
	if c.Discovery.ListenIP == "" {
		c.Discovery.ListenIP = "0.0.0.0"
	}
	if c.Discovery.MaxDatagramBytes == 0 {
		c.Discovery.MaxDatagramBytes = 1024
	}

	if c.Peer.DialTimeout == 0 {
		c.Peer.DialTimeout = 5
	}
	if c.Peer.WriteTimeout == 0 {
		c.Peer.WriteTimeout = 5
	}
	if c.Peer.MaxLineBytes == 0 {
		c.Peer.MaxLineBytes = 1 << 20
	}

	if c.Chat.TimestampFormat == "" {
		c.Chat.TimestampFormat = "02.01.2006 15:04:05"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Metrics.TelemetryPath == "" {
		c.Metrics.TelemetryPath = "/metrics"
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LocalIP returns the parsed bind address (nil if invalid)
func (c *Config) LocalIP() net.IP {
	ip := net.ParseIP(strings.TrimSpace(c.Node.BindIP))
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// GetDialTimeout gets dial timeout
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Peer.DialTimeout) * time.Second
}

// GetWriteTimeout gets per-line write timeout
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Peer.WriteTimeout) * time.Second
}

// ApplyEnvOverrides applies environment variable overrides
func (c *Config) ApplyEnvOverrides() {
	// Node identity
	if val := os.Getenv("CHAT_NAME"); val != "" {
		c.Node.Name = val
	}
	if val := os.Getenv("CHAT_BIND_IP"); val != "" {
		c.Node.BindIP = val
	}
	if val := os.Getenv("CHAT_STREAM_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Node.StreamPort = i
		}
	}

	// Discovery
	if val := os.Getenv("DISCOVERY_DISABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Discovery.Disabled = b
		}
	}
	if val := os.Getenv("DISCOVERY_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Discovery.Port = i
		}
	}
	if val := os.Getenv("DISCOVERY_BROADCAST_ADDR"); val != "" {
		c.Discovery.BroadcastAddr = val
	}

	// Peer streams
	if val := os.Getenv("PEER_DIAL_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Peer.DialTimeout = i
		}
	}
	if val := os.Getenv("PEER_WRITE_TIMEOUT_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Peer.WriteTimeout = i
		}
	}
	if val := os.Getenv("PEER_MAX_LINE_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Peer.MaxLineBytes = i
		}
	}
	if val := os.Getenv("REMOTE_PEER_ADDR"); val != "" {
		c.Peer.RemotePeerAddr = val
	}

	// Chat
	if val := os.Getenv("CHAT_RELAY"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Chat.RelayChat = b
		}
	}

	// Log config
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}

	// Metrics
	if val := os.Getenv("METRICS_LISTEN_ADDRESS"); val != "" {
		c.Metrics.ListenAddress = val
	}
	if val := os.Getenv("METRICS_TELEMETRY_PATH"); val != "" {
		c.Metrics.TelemetryPath = val
	}
}
