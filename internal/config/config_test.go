package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldsync.gg/internal/protocol"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, protocol.Version, cfg.ProtocolVersion)
	assert.Equal(t, 60, cfg.TickRateHz)
	assert.Equal(t, 400.0, cfg.Control.ProximityRadius)
	assert.Equal(t, int64(30), cfg.Control.LookaheadTicks)
	assert.Equal(t, int64(240), cfg.Control.LeaseGCTicks)
	assert.Equal(t, 16, cfg.Reconcile.MaxParallel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	p := write(t, "client.yaml", `
server_url: wss://play.example/v1/sync
tick_rate_hz: 30
control:
  proximity_radius: 250
  request_rate_hz: 5
debug:
  send_latency_ms: 120
  capture_dir: /tmp/cap
log:
  level: DEBUG
  format: json
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "wss://play.example/v1/sync", cfg.ServerURL)
	assert.Equal(t, 30, cfg.TickRateHz)
	assert.Equal(t, 250.0, cfg.Control.ProximityRadius)
	assert.Equal(t, int64(30), cfg.Control.LookaheadTicks, "unset keys keep defaults")
	assert.Equal(t, 1, cfg.Control.RequestBurst)
	assert.Equal(t, 120*time.Millisecond, cfg.SendLatency())
	assert.Equal(t, time.Second/30, cfg.TickStep())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_TOML(t *testing.T) {
	p := write(t, "client.toml", `
server_url = "ws://localhost:9000/sync"

[reconcile]
max_parallel = 4

[scripts]
dir = "./scripts"

[storage]
path = "./local.db"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/sync", cfg.ServerURL)
	assert.Equal(t, 4, cfg.Reconcile.MaxParallel)
	assert.Equal(t, "./scripts", cfg.Scripts.Dir)
	assert.Equal(t, "./local.db", cfg.Storage.Path)
	assert.Equal(t, 60, cfg.TickRateHz)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, file, body string
	}{
		{"bad scheme", "a.yaml", "server_url: http://x/"},
		{"negative latency", "b.yaml", "debug:\n  send_latency_ms: -1\n"},
		{"bad level", "c.toml", "[log]\nlevel = \"loud\"\n"},
		{"bad format", "d.yaml", "log:\n  format: xml\n"},
		{"unknown extension", "e.json", "{}"},
		{"broken yaml", "f.yaml", "control: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
