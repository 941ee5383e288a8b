package config

// Configuration loading and validation for ljctl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/transport"
)

// Config is the full ljctl configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Transport TransportConfig `yaml:"transport"`
	USB       USBConfig       `yaml:"usb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Capture   CaptureConfig   `yaml:"capture"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DeviceConfig selects the device commands operate on when no flags are given.
type DeviceConfig struct {
	Family string `yaml:"family"`          // UE9, U3 or U6
	Target string `yaml:"target"`          // "usb", "usb:N", "udp", "tcp://host"
	Match  string `yaml:"match,omitempty"` // local ID, serial or address
}

// PortsConfig holds the device network ports.
type PortsConfig struct {
	Command   int `yaml:"command"`
	Stream    int `yaml:"stream"`
	Register  int `yaml:"register"`
	Discovery int `yaml:"discovery"`
}

// TransportConfig configures the network bindings.
type TransportConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	BroadcastAddress string        `yaml:"broadcast_address"`
	Interface        string        `yaml:"interface"`
	Ports            PortsConfig   `yaml:"ports"`
}

// USBConfig configures the USB binding.
type USBConfig struct {
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // silent, error, info, verbose, debug
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// CaptureConfig enables pcap recording of device traffic.
type CaptureConfig struct {
	File string `yaml:"file"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9100"; empty disables
}

// Default returns the built-in configuration.
func Default() *Config {
	t := transport.DefaultOptions()
	return &Config{
		Device: DeviceConfig{
			Family: "UE9",
			Target: "usb",
		},
		Transport: TransportConfig{
			ConnectTimeout:   t.ConnectTimeout,
			ReadTimeout:      t.ReadTimeout,
			DiscoveryTimeout: t.DiscoveryTimeout,
			BroadcastAddress: t.BroadcastAddress,
			Ports: PortsConfig{
				Command:   t.Ports.Command,
				Stream:    t.Ports.Stream,
				Register:  t.Ports.Register,
				Discovery: t.Ports.Discovery,
			},
		},
		USB: USBConfig{
			ReadTimeout: t.ReadTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load reads a YAML configuration on top of the defaults. A missing file
// yields the defaults when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if allowMissing {
				return cfg, nil
			}
			return nil, errors.WrapConfigError(
				fmt.Errorf("config file not found: %s", path),
				path,
			)
		}
		return nil, errors.WrapConfigError(
			fmt.Errorf("read config file: %w", err),
			path,
		)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Device.Family) {
	case "UE9", "U3", "U6":
	default:
		return fmt.Errorf("device.family must be UE9, U3 or U6, got %q", c.Device.Family)
	}
	if _, err := transport.ParseTarget(c.Device.Target); err != nil {
		return fmt.Errorf("device.target: %w", err)
	}

	for name, d := range map[string]time.Duration{
		"transport.connect_timeout":   c.Transport.ConnectTimeout,
		"transport.read_timeout":      c.Transport.ReadTimeout,
		"transport.discovery_timeout": c.Transport.DiscoveryTimeout,
		"usb.read_timeout":            c.USB.ReadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}

	for name, p := range map[string]int{
		"transport.ports.command":   c.Transport.Ports.Command,
		"transport.ports.stream":    c.Transport.Ports.Stream,
		"transport.ports.register":  c.Transport.Ports.Register,
		"transport.ports.discovery": c.Transport.Ports.Discovery,
	} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, p)
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'console' or 'json', got %q", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_backups must be >= 0")
	}
	return nil
}

// TransportOptions converts the transport section for the bindings.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		ConnectTimeout:   c.Transport.ConnectTimeout,
		ReadTimeout:      c.Transport.ReadTimeout,
		DiscoveryTimeout: c.Transport.DiscoveryTimeout,
		BroadcastAddress: c.Transport.BroadcastAddress,
		Interface:        c.Transport.Interface,
		Ports: transport.Ports{
			Command:   c.Transport.Ports.Command,
			Stream:    c.Transport.Ports.Stream,
			Register:  c.Transport.Ports.Register,
			Discovery: c.Transport.Ports.Discovery,
		},
	}
}

// LoggerOptions converts the logging section for the logger. An invalid level
// falls back to info; Validate reports it.
func (c *Config) LoggerOptions() logging.Options {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.Options{
		Level:      level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
	}
}
