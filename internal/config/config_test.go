package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 1000, cfg.Links.ListPageSize)
	assert.Equal(t, 24*time.Hour, cfg.Links.PreviewTTL)
	assert.False(t, cfg.Links.CaseSensitive)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.BurstSize)
	assert.Empty(t, cfg.Auth.APIKeys)
}

func TestLoadFile_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "APP_PORT=9090\nSTORE_DRIVER=redis\nREDIS_HOST=cache\nAPI_KEYS=k1:ops, k2:ci\nCASE_SENSITIVE=true\nBASE_URL=https://s.example/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, "https://s.example", cfg.App.BaseURL)
	assert.True(t, cfg.Links.CaseSensitive)
	assert.Equal(t, map[string]string{"k1": "ops", "k2": "ci"}, cfg.Auth.APIKeys)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIST_PAGE_SIZE=50\n"), 0o600))
	t.Setenv("LIST_PAGE_SIZE", "250")
	t.Setenv("PREVIEW_MODE", "true")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Links.ListPageSize)
	assert.True(t, cfg.Links.PreviewMode)
}

func TestLoadFile_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "etcd")

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestParseAPIKeys(t *testing.T) {
	assert.Empty(t, parseAPIKeys(""))
	assert.Equal(t, map[string]string{"a": "one"}, parseAPIKeys("a:one,broken"))
}
