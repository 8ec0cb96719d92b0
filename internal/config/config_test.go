package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/afikyefet/sudoku-live/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("CLIENT_URL", "http://puzzles.example")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.InstanceID)
	assert.Equal(t, []string{"http://puzzles.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5001, cfg.Internal.Port)
	assert.True(t, cfg.GRPC.Enabled)
	assert.Equal(t, 25*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, int64(65536), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, AuthModeOptional, cfg.Auth.Mode)
	assert.Equal(t, "Spectator", cfg.Auth.DefaultName)
	assert.Equal(t, 15*time.Second, cfg.Live.HeartbeatTimeout)
	assert.Equal(t, 500, cfg.Chat.MaxLength)
	assert.False(t, cfg.PubSub.Enabled())
	assert.Equal(t, "puzzle-relay-"+cfg.Server.InstanceID, cfg.PubSub.Kafka.GroupID)
	assert.False(t, cfg.Store.Enabled)
	assert.Equal(t, "puzzle-interactions", cfg.Kafka.InteractionsTopic)
	assert.Equal(t, "puzzle-live-events", cfg.Kafka.LiveTopic)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 7000
  allowed_origins: "http://a.example, http://b.example"
auth:
  mode: required
  issuer: puzzles
live:
  heartbeat_timeout: 3s
pubsub:
  driver: redis
  redis:
    address: redis:6379
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "7100")
	t.Setenv("INSTANCE_ID", "node-7")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "node-7", cfg.Server.InstanceID)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, AuthModeRequired, cfg.Auth.Mode)
	assert.Equal(t, "s3cret", cfg.Auth.JWT.Secret)
	assert.Equal(t, "puzzles", cfg.Auth.JWT.Issuer)
	assert.Equal(t, 3*time.Second, cfg.Live.HeartbeatTimeout)
	assert.Equal(t, pubsub.DriverRedis, cfg.PubSub.Driver)
	assert.Equal(t, "redis:6379", cfg.PubSub.Redis.Address)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth:      AuthConfig{Mode: AuthModeOptional},
			Chat:      ChatConfig{MaxLength: 500},
			WebSocket: WebSocketConfig{PingInterval: time.Second, PongWait: 2 * time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "maybe" }, false},
		{"required without key", func(c *Config) { c.Auth.Mode = AuthModeRequired }, false},
		{"required with secret", func(c *Config) {
			c.Auth.Mode = AuthModeRequired
			c.Auth.JWT.Secret = "x"
		}, true},
		{"unknown driver", func(c *Config) { c.PubSub.Driver = "nats" }, false},
		{"zero chat length", func(c *Config) { c.Chat.MaxLength = 0 }, false},
		{"ping slower than pong", func(c *Config) { c.WebSocket.PingInterval = 3 * time.Second }, false},
		{"internal auth without key", func(c *Config) { c.Internal.RequireAuth = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
