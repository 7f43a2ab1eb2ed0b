package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// isolateUserConfig points the XDG config lookup at an empty temp dir
// so a developer's real user config cannot leak into tests.
func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codeseek.yaml"), []byte(content), 0o644))
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 60*time.Second, cfg.Embedder.Timeout)
	assert.Equal(t, "hnsw", cfg.Store.Backend)
	assert.Equal(t, 0.3, cfg.Search.MinScore)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 40, cfg.Scan.ChunkLines)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDuration())
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
}

func TestLoadMergesProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	// Given a project config overriding a few fields
	writeProjectConfig(t, dir, `
version: 1
embedder:
  provider: static
search:
  max_results: 5
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then overridden fields win and the rest keep defaults
	assert.Equal(t, "static", cfg.Embedder.Provider)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 0.3, cfg.Search.MinScore)
	assert.Equal(t, 40, cfg.Scan.ChunkLines)
}

func TestLoadExplicitDisableSurvivesMerge(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	writeProjectConfig(t, dir, "enabled: false\n")

	// A disabled config loads successfully so callers can honor it
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
}

func TestValidateSkippedWhenDisabled(t *testing.T) {
	// Given a disabled config whose remaining fields would not pass
	cfg := NewConfig()
	disabled := false
	cfg.Enabled = &disabled
	cfg.Embedder.Provider = "cohere"
	cfg.Watch.Debounce = "soon"

	// Then disabling always wins over field validation
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesBeatProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	writeProjectConfig(t, dir, "embedder:\n  provider: ollama\n")
	t.Setenv("CODESEEK_EMBEDDER_PROVIDER", "static")
	t.Setenv("CODESEEK_MAX_RESULTS", "3")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embedder.Provider)
	assert.Equal(t, 3, cfg.Search.MaxResults)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()

	writeProjectConfig(t, dir, "embedder: [not: a: map\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, seekerrors.ErrCodeConfigInvalid, seekerrors.GetCode(err))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{
			name:     "unknown provider",
			mutate:   func(c *Config) { c.Embedder.Provider = "cohere" },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
		{
			name:     "openai without api key",
			mutate:   func(c *Config) { c.Embedder.Provider = "openai" },
			wantCode: seekerrors.ErrCodeConfigMissing,
		},
		{
			name:     "missing model",
			mutate:   func(c *Config) { c.Embedder.Model = "" },
			wantCode: seekerrors.ErrCodeConfigMissing,
		},
		{
			name:     "unknown store backend",
			mutate:   func(c *Config) { c.Store.Backend = "faiss" },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
		{
			name:     "min score out of range",
			mutate:   func(c *Config) { c.Search.MinScore = 1.5 },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
		{
			name:     "overlap not below chunk lines",
			mutate:   func(c *Config) { c.Scan.OverlapLines = c.Scan.ChunkLines },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
		{
			name:     "bad debounce duration",
			mutate:   func(c *Config) { c.Watch.Debounce = "soon" },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
		{
			name:     "bad log level",
			mutate:   func(c *Config) { c.Log.Level = "verbose" },
			wantCode: seekerrors.ErrCodeConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, seekerrors.GetCode(err))
		})
	}
}

func TestRequiresRecreate(t *testing.T) {
	base := NewConfig()

	// Identity changes force a rebuild
	changed := NewConfig()
	changed.Embedder.Model = "all-minilm"
	assert.True(t, changed.RequiresRecreate(base))

	changed = NewConfig()
	changed.Store.Backend = "sqlite"
	assert.True(t, changed.RequiresRecreate(base))

	changed = NewConfig()
	changed.Scan.ChunkLines = 80
	assert.True(t, changed.RequiresRecreate(base))

	// Cosmetic changes do not
	changed = NewConfig()
	changed.Search.MinScore = 0.5
	changed.Search.MaxResults = 50
	assert.False(t, changed.RequiresRecreate(base))
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "pkg", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// Given a nested directory inside a git repository
	found, err := FindProjectRoot(nested)
	require.NoError(t, err)

	// Then the repository root is returned
	resolved, _ := filepath.EvalSymlinks(root)
	foundResolved, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, resolved, foundResolved)
}

func TestDataDir(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, filepath.Join("/work", ".codeseek"), cfg.DataDir("/work"))

	cfg.Store.Path = "/elsewhere/idx"
	assert.Equal(t, "/elsewhere/idx", cfg.DataDir("/work"))
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".codeseek.yaml")

	cfg := NewConfig()
	cfg.Embedder.Provider = "static"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", loaded.Embedder.Provider)
}
