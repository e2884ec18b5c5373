package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.True(t, cfg.WS.VerifyRoomMembership)
	assert.Equal(t, 3*time.Second, cfg.WS.TypingTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	body := []byte("port: \"9000\"\nstore:\n  driver: memory\nws:\n  typing_ttl: 5s\n  send_buffer: 16\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("WS_VERIFY_ROOM_MEMBERSHIP", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.WS.TypingTTL)
	assert.Equal(t, 16, cfg.WS.SendBuffer)
	assert.False(t, cfg.WS.VerifyRoomMembership)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "duration", key: "TYPING_TTL", val: "soon"},
		{name: "integer", key: "WS_SEND_BUFFER", val: "many"},
		{name: "boolean", key: "WS_VERIFY_ROOM_MEMBERSHIP", val: "maybe"},
		{name: "driver", key: "STORE_DRIVER", val: "mongo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Aggregator.Concurrency = 0
	require.Error(t, cfg.Validate())
}
