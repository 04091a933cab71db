package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodDictionary = `dictionary:
  enabled: true
  label: Kitchen
  sn: 3
  config:
    key:
      mode:
        value: auto
  log:
    key:
      temperature:
        interval:
          min: 10
`

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "3.dpc"), goodDictionary)
	writeFile(t, filepath.Join(dir, "4.dpc"), "dictionary:\n  enabled: true\n  sn: 4\n")
	writeFile(t, filepath.Join(dir, "5.dpc"), "dictionary:\n  enabled: true\n  label: Twin\n  sn: 3\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	before, err := os.ReadFile(filepath.Join(dir, "3.dpc"))
	require.NoError(t, err)

	results, err := checkDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "3.dpc", results[0].File)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err, "missing label")
	assert.Error(t, results[2].Err, "serial already in use")

	after, err := os.ReadFile(filepath.Join(dir, "3.dpc"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "check leaves dictionary files alone")

	_, err = checkDir(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dictserver.toml")
	writeFile(t, path, "[server]\nport = 9000\n\n[www]\ndocroot = \"/srv/www\"\n")

	oldPath := configPath
	t.Cleanup(func() { configPath = oldPath })
	configPath = path

	cfg, err := loadConfig(serverCmd)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/srv/www", cfg.WWW.DocRoot)
	assert.False(t, cfg.Dictionary.WebAPI.Enabled)

	require.NoError(t, serverCmd.Flags().Set("port", "9100"))
	require.NoError(t, serverCmd.Flags().Set("webapi", "true"))
	t.Cleanup(func() {
		for _, name := range []string{"port", "webapi"} {
			serverCmd.Flags().Lookup(name).Changed = false
		}
		port, webAPI = 0, false
	})

	cfg, err = loadConfig(serverCmd)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Dictionary.WebAPI.Enabled)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "dictserver ")
}
