package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.App.Port)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, "X-API-KEY", cfg.API.CredentialHeader)
	assert.Equal(t, time.Hour, cfg.CredentialsFreshFor())
	assert.Equal(t, 10*time.Second, cfg.APITimeout())
	assert.Equal(t, 300*time.Millisecond, cfg.AutocompleteDebounce())
	assert.Equal(t, 15, cfg.Limits.History)
	assert.Equal(t, 4, cfg.Limits.Actors)
	assert.Equal(t, 2, cfg.Limits.Directors)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := `
app:
  port: 9000
api:
  max_retries: 5
credentials:
  fallback_key: fallback-1
issuer:
  keys: [a, b, a]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 5, cfg.API.MaxRetries)
	assert.Equal(t, "fallback-1", cfg.Credentials.FallbackKey)
	assert.Equal(t, []string{"a", "b"}, cfg.Issuer.Keys)
	// untouched sections keep defaults
	assert.Equal(t, 15, cfg.Limits.Similar)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CINEPLEX_PORT", "7070")
	t.Setenv("CINEPLEX_FALLBACK_KEY", "env-fallback")
	t.Setenv("API_KEY_2", "second")
	t.Setenv("API_KEY_1", "first")
	t.Setenv("API_KEY_X", "ignored")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, "env-fallback", cfg.Credentials.FallbackKey)
	assert.Equal(t, []string{"first", "second"}, cfg.Issuer.Keys)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("credentials:\n  fresh_for: soon\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.fresh_for")
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("issuer:\n  keys: [one]\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { changed <- c }, func(error) {}))

	require.NoError(t, os.WriteFile(path, []byte("issuer:\n  keys: [two, three]\n"), 0o600))

	// a write may surface as several events, the first ones seeing a truncated file
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if len(cfg.Issuer.Keys) == 2 {
				assert.Equal(t, []string{"two", "three"}, cfg.Issuer.Keys)
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
