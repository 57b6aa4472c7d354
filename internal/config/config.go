// Package config loads and validates the connection and runtime settings
// for the host-side communications core.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind distinguishes the two supported link types.
type TransportKind string

const (
	TransportSerial  TransportKind = "serial"
	TransportNetwork TransportKind = "network"
)

// Connection describes one duplex link to a controller, parsed from a
// "serial://<path>" or "net://<host>[:<port>]" descriptor string.
type Connection struct {
	Kind TransportKind

	// Serial fields.
	Device string
	Baud   int

	// Network fields.
	Host string
	Port int
}

// defaultNetworkPort mirrors the original implementation's plain
// variable default used when a net:// URI carries no explicit port.
const defaultNetworkPort = 23

const defaultSerialBaud = 115200

// ParseConnection parses a connection descriptor string. Per the
// resolved Open Question on malformed URIs (see DESIGN.md), this
// validates strictly and fails closed rather than guessing.
func ParseConnection(descriptor string) (Connection, error) {
	switch {
	case strings.HasPrefix(descriptor, "serial://"):
		dev := strings.TrimPrefix(descriptor, "serial://")
		if dev == "" {
			return Connection{}, fmt.Errorf("config: serial:// descriptor has no device path")
		}
		return Connection{Kind: TransportSerial, Device: dev, Baud: defaultSerialBaud}, nil

	case strings.HasPrefix(descriptor, "net://"):
		rest := strings.TrimPrefix(descriptor, "net://")
		if rest == "" {
			return Connection{}, fmt.Errorf("config: net:// descriptor has no host")
		}
		host, portStr, err := net.SplitHostPort(rest)
		if err != nil {
			// No explicit port: the whole remainder is the host.
			host = rest
			portStr = ""
		}
		if host == "" {
			return Connection{}, fmt.Errorf("config: net:// descriptor has an empty host")
		}
		port := defaultNetworkPort
		if portStr != "" {
			p, err := strconv.Atoi(portStr)
			if err != nil || p <= 0 || p > 65535 {
				return Connection{}, fmt.Errorf("config: invalid port %q in %q", portStr, descriptor)
			}
			port = p
		}
		return Connection{Kind: TransportNetwork, Host: host, Port: port}, nil

	default:
		return Connection{}, fmt.Errorf("config: descriptor %q has no recognized serial:// or net:// scheme", descriptor)
	}
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	File         string `yaml:"file"`
	SessionLogDir string `yaml:"session_log_dir"`
}

// DiagnosticsConfig configures internal/diagnostics.
type DiagnosticsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Config is the complete runtime configuration for a session.
type Config struct {
	URL        string        `yaml:"url"`
	ReportRate time.Duration `yaml:"report_rate"`
	IsCNC      bool          `yaml:"is_cnc"`

	// PingPong overrides the per-transport ack-gating default (serial:
	// ping-pong, network: sliding). Nil means "use the default".
	PingPong *bool `yaml:"ping_pong"`

	// StreamDrainTimeout bounds the sliding-mode terminal wait for
	// outstanding acks. Zero means unbounded, matching the original
	// implementation (see DESIGN.md Open Question 3).
	StreamDrainTimeout time.Duration `yaml:"stream_drain_timeout"`

	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Connection is populated by validate() from URL; not read from YAML
	// directly since it is derived, not literal.
	Connection Connection `yaml:"-"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	conn, err := ParseConnection(c.URL)
	if err != nil {
		return err
	}
	c.Connection = conn

	if c.ReportRate <= 0 {
		c.ReportRate = 5 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Diagnostics.Interval <= 0 {
		c.Diagnostics.Interval = 15 * time.Second
	}

	return nil
}

// NewFromURL builds a Config directly from a connection descriptor,
// applying the same defaults validate() would, for callers that don't
// need a full YAML file (e.g. the CLI's quick-connect flags).
func NewFromURL(url string) (*Config, error) {
	cfg := &Config{URL: url}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// PingPongDefault reports whether the ack-gating discipline should
// default to ping-pong for this connection, honoring any explicit
// override.
func (c *Config) PingPongDefault() bool {
	if c.PingPong != nil {
		return *c.PingPong
	}
	return c.Connection.Kind == TransportSerial
}
