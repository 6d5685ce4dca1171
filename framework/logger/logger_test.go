package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "debug"

	l, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1), "debug level must be enabled")

	cfg.Level = "warn"
	l, err = New(cfg)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(0), "info level must be disabled for warn")
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "verbose"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_FileRotation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Production = true
	cfg.File = filepath.Join(t.TempDir(), "service.log")

	l, err := New(cfg)
	require.NoError(t, err)
	l.Info("written to file")
	_ = l.Sync()
	assert.FileExists(t, cfg.File)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
