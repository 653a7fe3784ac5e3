// Package config loads the compute-node YAML configuration file
// describing the projects root directory, port allocator ranges, bridge
// executable location, and event-bus address.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vnetlab/compute/pkg/portalloc"
)

// PortRange mirrors portalloc.Range in YAML-friendly form.
type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

func (r PortRange) toRange(fallback portalloc.Range) portalloc.Range {
	if r.Start == 0 && r.End == 0 {
		return fallback
	}
	return portalloc.Range{Start: r.Start, End: r.End}
}

// Config is the root of the compute-node configuration file.
type Config struct {
	ProjectsRoot string `yaml:"projects_root"`

	ConsoleHost string `yaml:"console_host"`

	TCPRange PortRange `yaml:"tcp_range"`
	VNCRange PortRange `yaml:"vnc_range"`
	UDPRange PortRange `yaml:"udp_range"`

	Bridge BridgeConfig `yaml:"bridge"`

	RedisAddr string `yaml:"redis_addr"`

	LogLevel string `yaml:"log_level"`
}

// BridgeConfig describes the bridge hypervisor executable and the
// directory its supervised stdout/stderr is redirected into
// (pkg/bridgesup.New's logDir).
type BridgeConfig struct {
	Executable string `yaml:"executable"`
	LogDir     string `yaml:"log_dir"`
}

// Default returns a Config with the §4.A default port ranges and default
// values for every other field (projects root, console host, bridge
// executable and log directory, Redis address, log level).
func Default() Config {
	return Config{
		ProjectsRoot: "/var/lib/compute/projects",
		ConsoleHost:  "0.0.0.0",
		TCPRange:     PortRange{Start: portalloc.DefaultTCPRange.Start, End: portalloc.DefaultTCPRange.End},
		VNCRange:     PortRange{Start: portalloc.DefaultVNCRange.Start, End: portalloc.DefaultVNCRange.End},
		UDPRange:     PortRange{Start: portalloc.DefaultUDPRange.Start, End: portalloc.DefaultUDPRange.End},
		Bridge:       BridgeConfig{Executable: "ubridge", LogDir: "/var/log/compute"},
		RedisAddr:    "127.0.0.1:6379",
		LogLevel:     "info",
	}
}

// Load reads and parses the YAML configuration file at path, starting
// from Default() so unset fields fall back to their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// TCPPortRange returns the configured TCP range, or the §4.A default.
func (c Config) TCPPortRange() portalloc.Range { return c.TCPRange.toRange(portalloc.DefaultTCPRange) }

// VNCPortRange returns the configured VNC range, or the §4.A default.
func (c Config) VNCPortRange() portalloc.Range { return c.VNCRange.toRange(portalloc.DefaultVNCRange) }

// UDPPortRange returns the configured UDP range, or the §4.A default.
func (c Config) UDPPortRange() portalloc.Range { return c.UDPRange.toRange(portalloc.DefaultUDPRange) }
