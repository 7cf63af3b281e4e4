package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	require.NoError(t, Load(""))
	assert.Equal(t, "disk", viper.GetString("storage.type"))
	assert.Equal(t, "manifest.json", viper.GetString("manifest.name"))
	assert.Equal(t, 8, viper.GetInt("crawl.concurrency"))
	assert.Equal(t, 64, viper.GetInt("crawl.max_depth"))
	assert.Equal(t, "none", viper.GetString("database.type"))
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("manifest:\n  root: Vila_Viatges\ncrawl:\n  concurrency: 4\n"), 0o644))
	t.Setenv("MM_MANIFEST_CDN_BASE", "https://cdn.example.com")

	require.NoError(t, Load(cfg))
	assert.Equal(t, "Vila_Viatges", viper.GetString("manifest.root"))
	assert.Equal(t, 4, viper.GetInt("crawl.concurrency"))
	assert.Equal(t, "https://cdn.example.com", viper.GetString("manifest.cdn_base"))
}

func TestLoad_StarterConfigParses(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(StarterConfig), 0o644))

	require.NoError(t, Load(cfg))
	assert.Equal(t, "bunny", viper.GetString("storage.type"))
	assert.Equal(t, "10m", viper.GetString("lock.ttl"))
}

func TestLoad_BrokenFile(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("storage: [unterminated"), 0o644))

	assert.Error(t, Load(cfg))
}
