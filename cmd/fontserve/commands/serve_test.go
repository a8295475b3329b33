package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBackendDefaultsToMemoryOnly(t *testing.T) {
	serveWatchDir = ""
	b, err := buildBackend()
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Info().Name)
	_, watchable := b.Watchable()
	assert.False(t, watchable)
}

func TestBuildBackendWrapsWatchDirWhenRequested(t *testing.T) {
	serveWatchDir = t.TempDir()
	t.Cleanup(func() { serveWatchDir = "" })

	b, err := buildBackend()
	require.NoError(t, err)
	assert.Equal(t, "memory+watchdir", b.Info().Name)
	_, watchable := b.Watchable()
	assert.True(t, watchable)
}

func TestLoadServeConfigDefaultsWithoutConfigFile(t *testing.T) {
	serveConfigFile = ""
	cfg, err := loadServeConfig()
	require.NoError(t, err)
	assert.NotZero(t, cfg.Server.Port)
}
