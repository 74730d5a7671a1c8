package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Satellite SatelliteConfig `yaml:"satellite"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sim       SimConfig       `yaml:"sim"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RegistryConfig struct {
	// ReadyTimeout bounds how long a start call waits for the session's
	// execution context. Zero waits without bound.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	// DefaultInterval replaces a requested update interval of zero.
	DefaultInterval time.Duration `yaml:"default_interval"`
	InboxSize       int           `yaml:"inbox_size"`
	// LastKnownWindow is how much newer a cached network fix must be before
	// it is preferred over a cached GPS fix.
	LastKnownWindow time.Duration `yaml:"last_known_window"`
}

type SatelliteConfig struct {
	MaxSatellites int `yaml:"max_satellites"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	ClientBuffer     int           `yaml:"client_buffer"`
	// MaxClients caps concurrent websocket clients. Zero means unlimited.
	MaxClients int `yaml:"max_clients"`
}

type SimConfig struct {
	Enabled   bool                         `yaml:"enabled"`
	Tick      time.Duration                `yaml:"tick"`
	Seed      int64                        `yaml:"seed"`
	OriginLat float64                      `yaml:"origin_lat"`
	OriginLon float64                      `yaml:"origin_lon"`
	Providers map[string]SimProviderConfig `yaml:"providers"`
}

type SimProviderConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Denied   bool    `yaml:"denied"`
	Accuracy float64 `yaml:"accuracy_m"`
	// StallEvery makes the provider skip every Nth tick. Zero never stalls.
	StallEvery int `yaml:"stall_every"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Registry: RegistryConfig{
			ReadyTimeout:    2 * time.Second,
			DefaultInterval: time.Second,
			InboxSize:       64,
			LastKnownWindow: 4 * time.Hour,
		},
		Satellite: SatelliteConfig{
			MaxSatellites: 64,
		},
		Broadcast: BroadcastConfig{
			Throttle:         50 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
			ClientBuffer:     256,
			MaxClients:       32,
		},
		Sim: SimConfig{
			Enabled:   true,
			Tick:      200 * time.Millisecond,
			Seed:      1,
			OriginLat: 52.5200,
			OriginLon: 13.4050,
			Providers: map[string]SimProviderConfig{
				"gps":     {Enabled: true, Accuracy: 5, StallEvery: 7},
				"network": {Enabled: true, Accuracy: 60},
				"passive": {Enabled: true, Accuracy: 100},
			},
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does
// not exist. Any other read or parse error is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Registry.ReadyTimeout < 0 {
		return errors.New("registry.ready_timeout must not be negative")
	}
	if c.Registry.DefaultInterval <= 0 {
		return errors.New("registry.default_interval must be positive")
	}
	if c.Registry.InboxSize < 1 {
		return errors.New("registry.inbox_size must be at least 1")
	}
	if c.Registry.LastKnownWindow < 0 {
		return errors.New("registry.last_known_window must not be negative")
	}
	if c.Sim.Enabled && c.Sim.Tick <= 0 {
		return errors.New("sim.tick must be positive")
	}
	if c.Broadcast.Throttle < 0 {
		return errors.New("broadcast.throttle must not be negative")
	}
	return nil
}
