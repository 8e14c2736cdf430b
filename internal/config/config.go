// Package config loads amannotes configuration from defaults, the user
// config file, the project file, a .env file and AMANNOTES_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amannotes/internal/embed"
	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
	"github.com/Aman-CERP/amannotes/internal/index"
	"github.com/Aman-CERP/amannotes/internal/logging"
	"github.com/Aman-CERP/amannotes/internal/store"
)

const (
	// ProjectFileName is the per-directory config file.
	ProjectFileName = ".amannotes.yaml"

	// DataDirName is the index directory created under the notes root.
	DataDirName = ".amannotes"

	envPrefix = "AMANNOTES_"
)

// Config represents the complete amannotes configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Notes      NotesConfig      `yaml:"notes" json:"notes"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    logging.Config   `yaml:"logging" json:"logging"`
}

// NotesConfig locates the notes to index.
type NotesConfig struct {
	// Root is the directory holding the notes. Relative paths resolve
	// against the directory Load was called with.
	Root string `yaml:"root" json:"root"`

	// Extensions are the file suffixes treated as notes.
	Extensions []string `yaml:"extensions" json:"extensions"`

	// Exclude holds glob patterns matched against slash-separated paths
	// relative to Root.
	Exclude []string `yaml:"exclude" json:"exclude"`

	// DataDir holds the index files. Empty means <root>/.amannotes.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	MaxChars int `yaml:"max_chars" json:"max_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is static, ollama, openai or none.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the embedding LRU size. Negative disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// FallbackToStatic uses the static embedder when Ollama is unreachable
	// at startup.
	FallbackToStatic bool `yaml:"fallback_to_static" json:"fallback_to_static"`

	// Timeout bounds each remote request, e.g. "60s".
	Timeout string `yaml:"timeout" json:"timeout"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// OpenAIAPIKey is read from OPENAI_API_KEY only and never written out.
	OpenAIAPIKey string `yaml:"-" json:"-"`
}

// LexicalConfig selects the lexical store.
type LexicalConfig struct {
	Backend string `yaml:"backend" json:"backend"`
}

// VectorConfig selects and tunes the vector store.
type VectorConfig struct {
	Backend string             `yaml:"backend" json:"backend"`
	HNSW    store.HNSWConfig   `yaml:"hnsw" json:"hnsw"`
	Qdrant  store.QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// IndexConfig configures the index coordinator.
type IndexConfig struct {
	// MergePolicy is lexical, vector, union or rrf.
	MergePolicy string `yaml:"merge_policy" json:"merge_policy"`

	// Dedup drops vector hits on chunks already returned lexically when
	// merging with the union policy.
	Dedup bool `yaml:"dedup" json:"dedup"`

	Workers      int `yaml:"workers" json:"workers"`
	BatchSize    int `yaml:"batch_size" json:"batch_size"`
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// Cooldown is the minimum interval between full reindexes, e.g. "5m".
	Cooldown string `yaml:"cooldown" json:"cooldown"`
}

// WatchConfig configures the note watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`

	// ForcePolling scans the tree instead of using fsnotify.
	ForcePolling bool `yaml:"force_polling" json:"force_polling"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`

	// MCP also serves MCP tools on stdio alongside the HTTP API.
	MCP bool `yaml:"mcp" json:"mcp"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Notes: NotesConfig{
			Root:       ".",
			Extensions: []string{".md", ".markdown", ".txt"},
			Exclude:    []string{".git/**", DataDirName + "/**", "node_modules/**"},
		},
		Chunking: ChunkingConfig{
			MaxChars: 1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:         string(embed.ProviderStatic),
			Model:            "",
			Dimensions:       embed.DefaultDimensions,
			BatchSize:        embed.DefaultBatchSize,
			CacheSize:        0,
			FallbackToStatic: true,
			Timeout:          "60s",
		},
		Lexical: LexicalConfig{
			Backend: string(store.LexicalSQLite),
		},
		Vector: VectorConfig{
			Backend: string(store.VectorHNSW),
		},
		Index: IndexConfig{
			MergePolicy:  string(index.MergeUnion),
			Dedup:        true,
			Workers:      runtime.NumCPU(),
			BatchSize:    index.DefaultBatchSize,
			DefaultLimit: index.DefaultSearchLimit,
			Cooldown:     index.DefaultCooldown.String(),
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		Logging: logging.DefaultConfig(),
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/amannotes/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amannotes/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amannotes", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amannotes", "config.yaml")
	}
	return filepath.Join(home, ".config", "amannotes", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for dir. Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/amannotes/config.yaml)
//  3. Project config (dir/.amannotes.yaml)
//  4. dir/.env (never overrides variables already set)
//  5. Environment variables (AMANNOTES_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "invalid configuration: "+err.Error(), err).
			WithSuggestion("Fix the listed keys in " + ProjectFileName + " or " + GetUserConfigPath())
	}
	return cfg, nil
}

// loadFromFile loads .amannotes.yaml, or .amannotes.yml as a fallback.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectFileName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := strings.TrimSuffix(yamlPath, ".yaml") + ".yml"
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML decodes path over c. Keys absent from the file keep their
// current values, so explicit zero values and false are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANNOTES_* environment variable overrides.
// Unparseable numeric and boolean values are ignored.
func (c *Config) applyEnvOverrides() {
	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	setString("NOTES_ROOT", &c.Notes.Root)
	setString("DATA_DIR", &c.Notes.DataDir)
	setInt("CHUNK_MAX_CHARS", &c.Chunking.MaxChars)

	setString("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	// AMANNOTES_EMBEDDER is an alias for AMANNOTES_EMBEDDINGS_PROVIDER
	setString("EMBEDDER", &c.Embeddings.Provider)
	setString("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	setInt("EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	setString("OLLAMA_HOST", &c.Embeddings.OllamaHost)
	setString("OPENAI_BASE_URL", &c.Embeddings.OpenAIBaseURL)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}

	setString("LEXICAL_BACKEND", &c.Lexical.Backend)
	setString("VECTOR_BACKEND", &c.Vector.Backend)
	setString("QDRANT_HOST", &c.Vector.Qdrant.Host)
	setString("QDRANT_API_KEY", &c.Vector.Qdrant.APIKey)

	setString("MERGE_POLICY", &c.Index.MergePolicy)
	setBool("DEDUP", &c.Index.Dedup)
	setInt("WORKERS", &c.Index.Workers)
	setString("REINDEX_COOLDOWN", &c.Index.Cooldown)

	setBool("WATCH_POLLING", &c.Watch.ForcePolling)

	setString("HTTP_ADDR", &c.Server.Addr)
	setString("LOG_LEVEL", &c.Logging.Level)
}

// resolvePaths makes the notes root absolute against dir.
func (c *Config) resolvePaths(dir string) {
	if c.Notes.Root != "" && !filepath.IsAbs(c.Notes.Root) {
		c.Notes.Root = filepath.Join(dir, c.Notes.Root)
	}
	if abs, err := filepath.Abs(c.Notes.Root); err == nil {
		c.Notes.Root = abs
	}
}

// DataDir returns the index directory.
func (c *Config) DataDir() string {
	if c.Notes.DataDir != "" {
		return c.Notes.DataDir
	}
	return filepath.Join(c.Notes.Root, DataDirName)
}

// CooldownDuration returns the parsed full-reindex cooldown.
func (c IndexConfig) CooldownDuration() time.Duration {
	return parseDurationOr(c.Cooldown, index.DefaultCooldown)
}

// DebounceDuration returns the parsed watcher debounce.
func (c WatchConfig) DebounceDuration() time.Duration {
	return parseDurationOr(c.Debounce, 500*time.Millisecond)
}

// TimeoutDuration returns the parsed remote embedding timeout.
func (c EmbeddingsConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, embed.DefaultTimeout)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Notes.Root == "" {
		errs = append(errs, errors.New("notes.root must not be empty"))
	}
	if len(c.Notes.Extensions) == 0 {
		errs = append(errs, errors.New("notes.extensions must list at least one suffix"))
	}
	if c.Chunking.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars))
	}

	if !embed.IsValidProvider(c.Embeddings.Provider) {
		errs = append(errs, fmt.Errorf("embeddings.provider must be one of %v, got %q",
			embed.ValidProviders(), c.Embeddings.Provider))
	}
	if embed.ParseProvider(c.Embeddings.Provider) != embed.ProviderNone && c.Embeddings.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions))
	}
	if c.Embeddings.BatchSize < 0 || c.Embeddings.BatchSize > embed.MaxBatchSize {
		errs = append(errs, fmt.Errorf("embeddings.batch_size must be between 0 and %d, got %d",
			embed.MaxBatchSize, c.Embeddings.BatchSize))
	}

	switch store.LexicalBackend(strings.ToLower(c.Lexical.Backend)) {
	case store.LexicalSQLite, store.LexicalBleve:
	default:
		errs = append(errs, fmt.Errorf("lexical.backend must be 'sqlite' or 'bleve', got %q", c.Lexical.Backend))
	}
	switch store.VectorBackend(strings.ToLower(c.Vector.Backend)) {
	case store.VectorFlat, store.VectorHNSW, store.VectorSQLite, store.VectorQdrant:
	default:
		errs = append(errs, fmt.Errorf("vector.backend must be 'flat', 'hnsw', 'sqlite' or 'qdrant', got %q", c.Vector.Backend))
	}
	if strings.EqualFold(c.Vector.Backend, string(store.VectorQdrant)) && c.Vector.Qdrant.Host == "" {
		errs = append(errs, errors.New("vector.qdrant.host is required for the qdrant backend"))
	}

	if _, err := index.ParseMergePolicy(c.Index.MergePolicy); err != nil {
		errs = append(errs, fmt.Errorf("index.merge_policy: %w", err))
	}
	if c.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("index.workers must be non-negative, got %d", c.Index.Workers))
	}
	if c.Index.DefaultLimit < 0 {
		errs = append(errs, fmt.Errorf("index.default_limit must be non-negative, got %d", c.Index.DefaultLimit))
	}
	for name, v := range map[string]string{
		"index.cooldown":     c.Index.Cooldown,
		"watch.debounce":     c.Watch.Debounce,
		"embeddings.timeout": c.Embeddings.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative duration, got %q", name, v))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
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
