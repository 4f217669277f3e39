package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
frames_in_flight = 3
log_level = "debug"

[descriptor_pool]
max_sets = 4
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FramesInFlight)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint32(4), cfg.DescriptorPool.MaxSets)
	assert.Equal(t, uint32(256), cfg.DescriptorPool.UniformBuffers)
	assert.Equal(t, 64, cfg.MaxPendingReadbacks)
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"too many frames": "frames_in_flight = 4",
		"zero frames":     "frames_in_flight = 0",
		"unknown key":     "frames_in_flite = 2",
		"zero sets":       "[descriptor_pool]\nmax_sets = 0",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(src))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhi.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window]\nwidth = 640\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, uint32(720), cfg.Window.Height)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
