// Package config loads the client configuration from yaml or toml.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"worldsync.gg/internal/protocol"
)

type Config struct {
	ServerURL       string `yaml:"server_url" toml:"server_url"`
	ProtocolVersion int    `yaml:"protocol_version" toml:"protocol_version"`
	TickRateHz      int    `yaml:"tick_rate_hz" toml:"tick_rate_hz"`

	Control   ControlConfig   `yaml:"control" toml:"control"`
	Reconcile ReconcileConfig `yaml:"reconcile" toml:"reconcile"`
	Debug     DebugConfig     `yaml:"debug" toml:"debug"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Scripts   ScriptsConfig   `yaml:"scripts" toml:"scripts"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

type ControlConfig struct {
	ProximityRadius float64 `yaml:"proximity_radius" toml:"proximity_radius"`
	LookaheadTicks  int64   `yaml:"lookahead_ticks" toml:"lookahead_ticks"`
	LeaseGCTicks    int64   `yaml:"lease_gc_ticks" toml:"lease_gc_ticks"`
	// RequestRateHz caps control requests per second; 0 disables the cap.
	RequestRateHz float64 `yaml:"request_rate_hz" toml:"request_rate_hz"`
	RequestBurst  int     `yaml:"request_burst" toml:"request_burst"`
}

type ReconcileConfig struct {
	MaxParallel int `yaml:"max_parallel" toml:"max_parallel"`
}

type DebugConfig struct {
	SendLatencyMS int    `yaml:"send_latency_ms" toml:"send_latency_ms"`
	CaptureDir    string `yaml:"capture_dir" toml:"capture_dir"`
}

type StorageConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type ScriptsConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		ServerURL:       "ws://127.0.0.1:8080/v1/sync",
		ProtocolVersion: protocol.Version,
		TickRateHz:      60,
		Control: ControlConfig{
			ProximityRadius: 400,
			LookaheadTicks:  30,
			LeaseGCTicks:    240,
		},
		Reconcile: ReconcileConfig{MaxParallel: 16},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (.yaml, .yml or .toml) over Defaults. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", name, err)
		}
	default:
		return cfg, fmt.Errorf("%s: unsupported config format", name)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = protocol.Version
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 60
	}
	if c.Control.ProximityRadius <= 0 {
		c.Control.ProximityRadius = 400
	}
	if c.Control.LookaheadTicks <= 0 {
		c.Control.LookaheadTicks = 30
	}
	if c.Control.LeaseGCTicks <= 0 {
		c.Control.LeaseGCTicks = 240
	}
	if c.Control.RequestRateHz > 0 && c.Control.RequestBurst <= 0 {
		c.Control.RequestBurst = 1
	}
	if c.Reconcile.MaxParallel <= 0 {
		c.Reconcile.MaxParallel = 16
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil {
			return fmt.Errorf("server_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("server_url scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	if c.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be <= 1000")
	}
	if c.Control.RequestRateHz < 0 {
		return fmt.Errorf("control.request_rate_hz must be >= 0")
	}
	if c.Debug.SendLatencyMS < 0 {
		return fmt.Errorf("debug.send_latency_ms must be >= 0")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// TickStep is the fixed simulation timestep.
func (c Config) TickStep() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}

func (c Config) SendLatency() time.Duration {
	return time.Duration(c.Debug.SendLatencyMS) * time.Millisecond
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
