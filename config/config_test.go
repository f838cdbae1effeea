package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("UNIDOC_LICENSE_KEY", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data", cfg.Paths.Data)
	assert.Equal(t, "data_webhooks", cfg.Paths.Webhooks)
	assert.Equal(t, "storage", cfg.Paths.Storage)
	assert.Equal(t, "api_keys.txt", cfg.Auth.KeysFile)
	assert.Equal(t, "sha256", cfg.Auth.Mode)
	assert.Equal(t, "file", cfg.Index.Backend)
	assert.Equal(t, 2, cfg.Index.TopK)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, "extractive", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.Webhook.Timeout)
	assert.EqualValues(t, 50<<20, cfg.Webhook.MaxBytes)
	assert.False(t, cfg.Watch.Enabled)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := isolate(t)
	yaml := `
server:
  addr: ":9090"
index:
  backend: sqlite
  top_k: 4
watch:
  enabled: true
  debounce: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docbot.yaml"), []byte(yaml), 0o644))
	t.Setenv("DOCBOT_INDEX_TOP_K", "6")
	t.Setenv("DOCBOT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, 6, cfg.Index.TopK)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadDotEnvSelectsGemini(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"auth mode":     func(c *Config) { c.Auth.Mode = "md5" },
		"backend":       func(c *Config) { c.Index.Backend = "redis" },
		"embedder":      func(c *Config) { c.Embedder.Type = "openai" },
		"gemini no key": func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.APIKey = "" },
		"chunk size":    func(c *Config) { c.Index.ChunkSize = 0 },
		"overlap":       func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize },
	}
	for name, mutate := range cases {
		cfg := *base
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	assert.NoError(t, base.Validate())
}
