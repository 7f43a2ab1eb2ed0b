// Package config loads and validates codeseek configuration.
//
// Configuration is applied in order of increasing precedence:
// hardcoded defaults, user config (~/.config/codeseek/config.yaml),
// project config (.codeseek.yaml in the project root), then
// CODESEEK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// Config represents the complete codeseek configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Enabled  *bool          `yaml:"enabled" json:"enabled"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Scan     ScanConfig     `yaml:"scan" json:"scan"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider selects the backend: "ollama", "openai", or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Endpoint is the provider base URL. Empty uses the provider default.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates against OpenAI-compatible endpoints.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Dimensions is the expected vector width. 0 auto-detects from the
	// first embedding response.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize caps items per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxItemBytes is the per-chunk size ceiling sent to the provider.
	MaxItemBytes int `yaml:"max_item_bytes" json:"max_item_bytes"`

	// MaxBatchBytes is the cumulative byte budget per request.
	MaxBatchBytes int `yaml:"max_batch_bytes" json:"max_batch_bytes"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize is the capacity of the in-memory embedding cache.
	// 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StoreConfig configures the vector store backend.
type StoreConfig struct {
	// Backend selects the store: "hnsw" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the data directory. Empty uses <root>/.codeseek.
	Path string `yaml:"path" json:"path"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// MinScore filters results below this similarity score (0.0-1.0).
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// MaxResults caps the number of results returned.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ScanConfig configures file scanning and chunking.
type ScanConfig struct {
	// ChunkLines is the number of lines per chunk.
	ChunkLines int `yaml:"chunk_lines" json:"chunk_lines"`

	// OverlapLines is the number of lines shared between adjacent chunks.
	OverlapLines int `yaml:"overlap_lines" json:"overlap_lines"`

	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// Workers bounds concurrent file reads. 0 uses NumCPU.
	Workers int `yaml:"workers" json:"workers"`
}

// WatchConfig configures filesystem watching.
type WatchConfig struct {
	// Debounce is the quiet period before coalesced events flush.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	enabled := true
	return &Config{
		Version: 1,
		Enabled: &enabled,
		Embedder: EmbedderConfig{
			Provider:      "ollama",
			Endpoint:      "",
			Model:         "nomic-embed-text",
			Dimensions:    0,
			BatchSize:     32,
			MaxItemBytes:  8192,
			MaxBatchBytes: 262144,
			Timeout:       60 * time.Second,
			CacheSize:     4096,
		},
		Store: StoreConfig{
			Backend: "hnsw",
			Path:    "",
		},
		Search: SearchConfig{
			MinScore:   0.3,
			MaxResults: 20,
		},
		Scan: ScanConfig{
			ChunkLines:   40,
			OverlapLines: 8,
			MaxFileSize:  1 << 20,
			Workers:      0,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// IsEnabled reports whether indexing is enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory layout.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeseek", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codeseek", "config.yaml")
	}
	return filepath.Join(home, ".config", "codeseek", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load .codeseek.yaml or .codeseek.yml from dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codeseek.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codeseek.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return seekerrors.New(seekerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("check the YAML syntax of " + path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Enabled != nil {
		c.Enabled = other.Enabled
	}

	// Embedder
	if other.Embedder.Provider != "" {
		c.Embedder.Provider = other.Embedder.Provider
	}
	if other.Embedder.Endpoint != "" {
		c.Embedder.Endpoint = other.Embedder.Endpoint
	}
	if other.Embedder.Model != "" {
		c.Embedder.Model = other.Embedder.Model
	}
	if other.Embedder.APIKey != "" {
		c.Embedder.APIKey = other.Embedder.APIKey
	}
	if other.Embedder.Dimensions != 0 {
		c.Embedder.Dimensions = other.Embedder.Dimensions
	}
	if other.Embedder.BatchSize != 0 {
		c.Embedder.BatchSize = other.Embedder.BatchSize
	}
	if other.Embedder.MaxItemBytes != 0 {
		c.Embedder.MaxItemBytes = other.Embedder.MaxItemBytes
	}
	if other.Embedder.MaxBatchBytes != 0 {
		c.Embedder.MaxBatchBytes = other.Embedder.MaxBatchBytes
	}
	if other.Embedder.Timeout != 0 {
		c.Embedder.Timeout = other.Embedder.Timeout
	}
	if other.Embedder.CacheSize != 0 {
		c.Embedder.CacheSize = other.Embedder.CacheSize
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	// Search
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Scan
	if other.Scan.ChunkLines != 0 {
		c.Scan.ChunkLines = other.Scan.ChunkLines
	}
	if other.Scan.OverlapLines != 0 {
		c.Scan.OverlapLines = other.Scan.OverlapLines
	}
	if other.Scan.MaxFileSize != 0 {
		c.Scan.MaxFileSize = other.Scan.MaxFileSize
	}
	if other.Scan.Workers != 0 {
		c.Scan.Workers = other.Scan.Workers
	}

	// Watch
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.FilePath != "" {
		c.Log.FilePath = other.Log.FilePath
	}
	if other.Log.MaxSizeMB != 0 {
		c.Log.MaxSizeMB = other.Log.MaxSizeMB
	}
	if other.Log.MaxFiles != 0 {
		c.Log.MaxFiles = other.Log.MaxFiles
	}
}

// applyEnvOverrides applies CODESEEK_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODESEEK_ENABLED"); v != "" {
		enabled := strings.ToLower(v) == "true" || v == "1"
		c.Enabled = &enabled
	}
	if v := os.Getenv("CODESEEK_EMBEDDER_PROVIDER"); v != "" {
		c.Embedder.Provider = v
	}
	if v := os.Getenv("CODESEEK_EMBEDDER_ENDPOINT"); v != "" {
		c.Embedder.Endpoint = v
	}
	if v := os.Getenv("CODESEEK_EMBEDDER_MODEL"); v != "" {
		c.Embedder.Model = v
	}
	if v := os.Getenv("CODESEEK_EMBEDDER_API_KEY"); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv("CODESEEK_EMBEDDER_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedder.Dimensions = n
		}
	}
	if v := os.Getenv("CODESEEK_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("CODESEEK_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CODESEEK_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Search.MinScore = f
		}
	}
	if v := os.Getenv("CODESEEK_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("CODESEEK_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("CODESEEK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
// A disabled configuration is always valid: disabling must be honored
// even when the remaining fields would not survive validation.
func (c *Config) Validate() error {
	if !c.IsEnabled() {
		return nil
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedder.Provider)] {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedder.provider must be 'ollama', 'openai', or 'static', got %q", c.Embedder.Provider)
	}

	if strings.ToLower(c.Embedder.Provider) == "openai" && c.Embedder.APIKey == "" {
		return seekerrors.New(seekerrors.ErrCodeConfigMissing,
			"embedder.api_key is required for the openai provider", nil).
			WithSuggestion("set embedder.api_key or CODESEEK_EMBEDDER_API_KEY")
	}

	if c.Embedder.Model == "" {
		return seekerrors.New(seekerrors.ErrCodeConfigMissing,
			"embedder.model is required", nil)
	}

	if c.Embedder.Dimensions < 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedder.dimensions must be non-negative, got %d", c.Embedder.Dimensions)
	}
	if c.Embedder.BatchSize <= 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedder.batch_size must be positive, got %d", c.Embedder.BatchSize)
	}
	if c.Embedder.MaxItemBytes <= 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedder.max_item_bytes must be positive, got %d", c.Embedder.MaxItemBytes)
	}
	if c.Embedder.MaxBatchBytes < c.Embedder.MaxItemBytes {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedder.max_batch_bytes (%d) must be at least max_item_bytes (%d)",
			c.Embedder.MaxBatchBytes, c.Embedder.MaxItemBytes)
	}

	validBackends := map[string]bool{"hnsw": true, "sqlite": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"store.backend must be 'hnsw' or 'sqlite', got %q", c.Store.Backend)
	}

	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"search.min_score must be between 0 and 1, got %f", c.Search.MinScore)
	}
	if c.Search.MaxResults <= 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"search.max_results must be positive, got %d", c.Search.MaxResults)
	}

	if c.Scan.ChunkLines <= 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"scan.chunk_lines must be positive, got %d", c.Scan.ChunkLines)
	}
	if c.Scan.OverlapLines < 0 || c.Scan.OverlapLines >= c.Scan.ChunkLines {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"scan.overlap_lines must be in [0, chunk_lines), got %d", c.Scan.OverlapLines)
	}
	if c.Scan.MaxFileSize <= 0 {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"scan.max_file_size must be positive, got %d", c.Scan.MaxFileSize)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"watch.debounce is not a valid duration: %q", c.Watch.Debounce)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	return nil
}

// DebounceDuration returns the parsed watch debounce interval.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// DataDir returns the store data directory for the project rooted at root.
func (c *Config) DataDir(root string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(root, ".codeseek")
}

// RequiresRecreate reports whether switching from old to c invalidates
// the existing index. Identity-affecting fields (provider, model,
// dimensions, store backend, chunking) force a rebuild; cosmetic search
// settings do not.
func (c *Config) RequiresRecreate(old *Config) bool {
	if old == nil {
		return false
	}
	return c.Embedder.Provider != old.Embedder.Provider ||
		c.Embedder.Model != old.Embedder.Model ||
		c.Embedder.Dimensions != old.Embedder.Dimensions ||
		c.Store.Backend != old.Store.Backend ||
		c.Store.Path != old.Store.Path ||
		c.Scan.ChunkLines != old.Scan.ChunkLines ||
		c.Scan.OverlapLines != old.Scan.OverlapLines
}

// FindProjectRoot finds the project root by walking up from startDir
// looking for a .git directory or a .codeseek.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".codeseek.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codeseek.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
