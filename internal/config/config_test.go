package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CAMERA_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Camera, cfg.Camera)
	assert.Equal(t, Default().Replication, cfg.Replication)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
camera:
  default_mode: explore
  tie_break: declaration_order
  crouch_blend: 250ms
replication:
  interval: 100ms
transport:
  kind: NATS
  nats_url: nats://localhost:4222
`), 0o644))

	t.Setenv("CAMERA_CONFIG", path)
	t.Setenv("CAMERA_STALENESS", "2s")
	t.Setenv("CAMERA_API_ADDR", "127.0.0.1:9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "explore", cfg.Camera.DefaultMode)
	assert.Equal(t, "declaration_order", cfg.Camera.TieBreak)
	assert.Equal(t, 250*time.Millisecond, cfg.Camera.CrouchBlend)
	assert.Equal(t, 0.164, cfg.Camera.ProbeRadius, "не заданные в файле поля остаются по умолчанию")
	assert.Equal(t, 100*time.Millisecond, cfg.Replication.Interval)
	assert.Equal(t, 2*time.Second, cfg.Replication.Staleness)
	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Addr)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"tie break":  func(c *Config) { c.Camera.TieBreak = "random" },
		"cooldown":   func(c *Config) { c.Camera.SwitchCooldown = 5 * time.Second },
		"staleness":  func(c *Config) { c.Replication.Staleness = 0 },
		"transport":  func(c *Config) { c.Transport.Kind = "carrier-pigeon" },
		"kcp addr":   func(c *Config) { c.Transport.Kind = TransportKCP; c.Transport.KCPAddr = "" },
		"api addr":   func(c *Config) { c.API.Addr = "" },
		"no default": func(c *Config) { c.Camera.DefaultMode = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
