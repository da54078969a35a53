package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
format: ICS
autosave: "not a schedule"
log_level: verbose
allow_conflict: true
calendars:
  - title: Work
  - title: " Home "
    allow_conflict: false
  - title: Work
  - title: ""
basic_auth:
  username: ""
  password: ""
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultDataDir, cfg.DataDir)
	assert.Equal(t, "ics", cfg.Format)
	assert.Equal(t, defaultAutosave, cfg.Autosave)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Nil(t, cfg.BasicAuth)

	require.Len(t, cfg.Calendars, 2)
	assert.Equal(t, "Work", cfg.Calendars[0].Title)
	assert.Equal(t, "Home", cfg.Calendars[1].Title)
	assert.True(t, cfg.AllowConflictFor(cfg.Calendars[0]))
	assert.False(t, cfg.AllowConflictFor(cfg.Calendars[1]))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":9090"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Calendars = append(cfg.Calendars, CalendarConfig{Title: "Shared", AllowConflict: new(bool)})
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")

	assert.Error(t, Save(path, nil))
	assert.Error(t, Save("", cfg))
}
