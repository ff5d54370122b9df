package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"), "/data")
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.Engine.MaxNotifications)
		assert.Equal(t, 3*time.Second, cfg.Engine.IdleWindow())
		assert.Equal(t, 7*24*time.Hour, cfg.Engine.Retention())
		assert.Equal(t, "/data", cfg.DataDir)
		assert.True(t, cfg.Sounds.Enabled)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
engine:
  max_notifications: 50
  idle_window_ms: 1000
sounds:
  enabled: false
  mute:
    - "channel_*"
sources:
  enabled:
    - "twitch.*"
`), 0o644))

		cfg, err := Load(path, "/data")
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Engine.MaxNotifications)
		assert.Equal(t, time.Second, cfg.Engine.IdleWindow())
		assert.False(t, cfg.Sounds.Enabled)
		assert.Equal(t, []string{"channel_*"}, cfg.Sounds.Mute)
		// untouched defaults survive
		assert.Equal(t, 3000, cfg.Engine.PreviewMS)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, []byte("engine: ["), 0o644))

		_, err := Load(path, "/data")
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("rejects non-positive engine values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Engine.IdleWindowMS = 0
		assert.ErrorIs(t, cfg.Validate(), ErrNonPositive)
	})

	t.Run("rejects unknown sound method", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sounds.Methods = map[string]bool{"hologram": true}
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown notification kind", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sounds.Kinds = map[string]bool{"whisper": true, "telegram": false}
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown presentation method", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sounds.Method = "hologram"
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects invalid glob pattern", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sounds.Mute = []string{"[unclosed"}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidPattern)
	})
}

func TestSourcesConfig_Allows(t *testing.T) {
	c := SourcesConfig{Enabled: []string{"twitch.*", "updates"}}

	assert.True(t, c.Allows("twitch.pubsub"))
	assert.True(t, c.Allows("updates"))
	assert.False(t, c.Allows("debug-feed"))

	assert.True(t, SourcesConfig{Enabled: []string{"*"}}.Allows("anything"))
	assert.False(t, SourcesConfig{}.Allows("anything"))
}
