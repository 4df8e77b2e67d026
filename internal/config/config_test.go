package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, 1536, cfg.Embeddings.Dimension)
	assert.Equal(t, 100, cfg.Embeddings.BatchSize)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 0.7, cfg.Search.SimilarityFloor)
	assert.Equal(t, []string{"openai", "xai"}, cfg.Providers.ProviderOrder())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9191
store:
  backend: chromem
  chromem:
    path: /tmp/tutord-test
chunking:
  size: 500
  overlap: 100
providers:
  order: "xai,openai"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.Store.Backend)
	assert.Equal(t, "/tmp/tutord-test", cfg.Store.Chromem.Path)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, []string{"xai", "openai"}, cfg.Providers.ProviderOrder())
}

func TestLoad_ExplicitZerosSurviveDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
search:
  similarity_floor: 0
providers:
  temperature: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Search.SimilarityFloor, "a configured floor of 0 must not become the default")
	assert.Equal(t, 0.0, cfg.Providers.Temperature)
	assert.Equal(t, 5, cfg.Search.Limit, "unset fields still get defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0600))

	t.Setenv("TUTORD_SERVER_PORT", "7777")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "overlap equals size",
			mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size },
			errSub: "chunking.overlap",
		},
		{
			name:   "overlap exceeds size",
			mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size + 1 },
			errSub: "chunking.overlap",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "redis" },
			errSub: "unknown store backend",
		},
		{
			name:   "no providers",
			mutate: func(c *Config) { c.Providers.Order = " , " },
			errSub: "at least one provider",
		},
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Providers.Order = "openai,gemini" },
			errSub: "unknown provider",
		},
		{
			name:   "floor out of range",
			mutate: func(c *Config) { c.Search.SimilarityFloor = 1.5 },
			errSub: "similarity_floor",
		},
		{
			name:   "zero dimension",
			mutate: func(c *Config) { c.Embeddings.Dimension = -1 },
			errSub: "dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errSub == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errSub)
			}
		})
	}
}
