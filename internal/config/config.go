// Package config loads and validates FalconEYE's configuration, following a
// four-tier precedence chain: hardcoded defaults, user/global YAML config,
// project-local YAML config, then FALCONEYE_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete FalconEYE configuration.
type Config struct {
	LLM           LLMConfig           `yaml:"llm" json:"llm"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store" json:"vector_store"`
	Metadata      MetadataConfig      `yaml:"metadata" json:"metadata"`
	IndexRegistry IndexRegistryConfig `yaml:"index_registry" json:"index_registry"`
	Chunking      ChunkingConfig      `yaml:"chunking" json:"chunking"`
	Analysis      AnalysisConfig      `yaml:"analysis" json:"analysis"`
	Languages     LanguagesConfig     `yaml:"languages" json:"languages"`
	FileDiscovery FileDiscoveryConfig `yaml:"file_discovery" json:"file_discovery"`
	Output        OutputConfig        `yaml:"output" json:"output"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// RetryConfig mirrors resilience.RetryConfig's tunables in config form
// (durations as strings so they round-trip cleanly through YAML).
type RetryConfig struct {
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	InitialDelay string  `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay" json:"max_delay"`
	Jitter       float64 `yaml:"jitter" json:"jitter"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig in config form.
type CircuitBreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold" json:"success_threshold"`
	Timeout          string `yaml:"timeout" json:"timeout"`
}

// LLMConfig configures the LLM gateway: which model(s), where, and how
// aggressively to retry/circuit-break around it.
type LLMConfig struct {
	Provider       string               `yaml:"provider" json:"provider"`
	ModelAnalysis  string               `yaml:"model_analysis" json:"model_analysis"`
	ModelEmbedding string               `yaml:"model_embedding" json:"model_embedding"`
	BaseURL        string               `yaml:"base_url" json:"base_url"`
	Timeout        string               `yaml:"timeout" json:"timeout"`
	Retry          RetryConfig          `yaml:"retry" json:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// VectorStoreConfig locates and names the vector store collections.
type VectorStoreConfig struct {
	Provider         string `yaml:"provider" json:"provider"`
	PersistDirectory string `yaml:"persist_directory" json:"persist_directory"`
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix"`
}

// MetadataConfig locates the structural-metadata collection.
type MetadataConfig struct {
	Provider         string `yaml:"provider" json:"provider"`
	PersistDirectory string `yaml:"persist_directory" json:"persist_directory"`
	CollectionName   string `yaml:"collection_name" json:"collection_name"`
}

// IndexRegistryConfig locates the registry's SQLite store.
type IndexRegistryConfig struct {
	PersistDirectory string `yaml:"persist_directory" json:"persist_directory"`
	CollectionName   string `yaml:"collection_name" json:"collection_name"`
}

// ChunkingConfig configures the chunkers' defaults.
type ChunkingConfig struct {
	DefaultSize    int `yaml:"default_size" json:"default_size"`
	DefaultOverlap int `yaml:"default_overlap" json:"default_overlap"`
	MaxChunkSize   int `yaml:"max_chunk_size" json:"max_chunk_size"`
	DocChunkSize   int `yaml:"doc_chunk_size" json:"doc_chunk_size"`
}

// AnalysisConfig configures retrieval and review behavior.
type AnalysisConfig struct {
	TopKContext      int  `yaml:"top_k_context" json:"top_k_context"`
	TopKDocs         int  `yaml:"top_k_docs" json:"top_k_docs"`
	ValidateFindings bool `yaml:"validate_findings" json:"validate_findings"`
	BatchSize        int  `yaml:"batch_size" json:"batch_size"`
}

// LanguagesConfig restricts language detection to a subset.
type LanguagesConfig struct {
	Enabled []string `yaml:"enabled" json:"enabled"`
}

// FileDiscoveryConfig carries the exclusion substrings applied during
// file discovery.
type FileDiscoveryConfig struct {
	DefaultExclusions []string `yaml:"default_exclusions" json:"default_exclusions"`
}

// OutputConfig configures finding-report rendering.
type OutputConfig struct {
	Format string `yaml:"format" json:"format"`
	Path   string `yaml:"path" json:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Path   string `yaml:"path" json:"path"`
}

// defaultExclusions are substrings always excluded from file discovery.
var defaultExclusions = []string{
	"node_modules/",
	".git/",
	"vendor/",
	"__pycache__/",
	"dist/",
	"build/",
	".min.js",
	".min.css",
	"package-lock.json",
	"go.sum",
}

// NewConfig returns a Config populated with FalconEYE's hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "anthropic",
			ModelAnalysis:  "claude-sonnet-4-5",
			ModelEmbedding: "nomic-embed-text",
			BaseURL:        "http://localhost:11434",
			Timeout:        "30s",
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: "1s",
				MaxDelay:     "60s",
				Jitter:       0.1,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          "60s",
			},
		},
		VectorStore: VectorStoreConfig{
			Provider:         "hnsw",
			PersistDirectory: defaultStatePath("vectors"),
			CollectionPrefix: "falconeye",
		},
		Metadata: MetadataConfig{
			Provider:         "hnsw",
			PersistDirectory: defaultStatePath("metadata"),
			CollectionName:   "falconeye_metadata",
		},
		IndexRegistry: IndexRegistryConfig{
			PersistDirectory: defaultStatePath("registry"),
			CollectionName:   "index_registry.db",
		},
		Chunking: ChunkingConfig{
			DefaultSize:    40,
			DefaultOverlap: 15,
			MaxChunkSize:   200,
			DocChunkSize:   1000,
		},
		Analysis: AnalysisConfig{
			TopKContext:      20,
			TopKDocs:         5,
			ValidateFindings: true,
			BatchSize:        8,
		},
		Languages: LanguagesConfig{
			Enabled: []string{"go", "javascript", "typescript", "python", "c", "cpp", "java", "php", "rust"},
		},
		FileDiscovery: FileDiscoveryConfig{
			DefaultExclusions: defaultExclusions,
		},
		Output: OutputConfig{
			Format: "json",
			Path:   "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Path:   "",
		},
	}
}

// defaultStatePath returns ~/.falconeye/<sub>, falling back to a temp
// directory when the home directory can't be resolved.
func defaultStatePath(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".falconeye", sub)
	}
	return filepath.Join(home, ".falconeye", sub)
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/falconeye/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/falconeye/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "falconeye", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "falconeye", "config.yaml")
	}
	return filepath.Join(home, ".config", "falconeye", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadUserConfig loads the user/global configuration file if present.
// A missing file is not an error.
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

// Load builds the effective configuration for a project directory, applying
// sources in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User/global config (~/.config/falconeye/config.yaml)
//  3. Project config (.falconeye.yaml in dir)
//  4. Environment variables (FALCONEYE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges .falconeye.yaml or .falconeye.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".falconeye.yaml", ".falconeye.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML parses path into a fresh Config and merges its non-zero fields
// into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero-valued fields onto c, recursively
// across every nested group. Unlike the flat, per-field style this evolved
// from, the merge itself is generic: a zero value (empty string, 0, nil
// slice, false) in other simply leaves c's existing value untouched, field
// by field, for any struct reachable from Config.
func (c *Config) mergeWith(other *Config) {
	mergeStruct(reflect.ValueOf(c).Elem(), reflect.ValueOf(other).Elem())
}

func mergeStruct(dst, src reflect.Value) {
	for i := 0; i < dst.NumField(); i++ {
		df, sf := dst.Field(i), src.Field(i)
		if sf.Kind() == reflect.Struct {
			mergeStruct(df, sf)
			continue
		}
		if !sf.IsZero() {
			df.Set(sf)
		}
	}
}

// applyEnvOverrides walks Config's fields applying FALCONEYE_-prefixed,
// underscore-joined environment variable overrides, e.g.
// FALCONEYE_LLM_BASE_URL or FALCONEYE_CHUNKING_DEFAULT_SIZE.
func (c *Config) applyEnvOverrides() {
	applyEnvStruct(reflect.ValueOf(c).Elem(), "FALCONEYE")
}

func applyEnvStruct(v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		key := yamlFieldName(field)
		envKey := prefix + "_" + strings.ToUpper(key)

		if fv.Kind() == reflect.Struct {
			applyEnvStruct(fv, envKey)
			continue
		}

		raw, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}
		setFromEnv(fv, raw)
	}
}

func yamlFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(field.Name)
}

// setFromEnv coerces raw into fv's type, trying bool, then int, then float,
// then comma-separated list, then falling back to the raw string — the
// first parse that matches fv's Go kind wins.
func setFromEnv(fv reflect.Value, raw string) {
	switch fv.Kind() {
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			fv.SetFloat(f)
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			fv.Set(reflect.ValueOf(parts))
		}
	case reflect.String:
		fv.SetString(raw)
	}
}

// Validate enforces the configuration's cross-field invariants.
func (c *Config) Validate() error {
	if c.Chunking.DefaultSize <= 0 {
		return fmt.Errorf("chunking.default_size must be positive, got %d", c.Chunking.DefaultSize)
	}
	if c.Chunking.DefaultOverlap < 0 || c.Chunking.DefaultOverlap >= c.Chunking.DefaultSize {
		return fmt.Errorf("chunking.default_overlap must satisfy 0 <= overlap < default_size, got overlap=%d size=%d",
			c.Chunking.DefaultOverlap, c.Chunking.DefaultSize)
	}
	if c.Chunking.DocChunkSize <= 0 {
		return fmt.Errorf("chunking.doc_chunk_size must be positive, got %d", c.Chunking.DocChunkSize)
	}

	if c.Analysis.TopKContext < 0 {
		return fmt.Errorf("analysis.top_k_context must be non-negative, got %d", c.Analysis.TopKContext)
	}
	if c.Analysis.BatchSize <= 0 {
		return fmt.Errorf("analysis.batch_size must be positive, got %d", c.Analysis.BatchSize)
	}

	validLLMProviders := map[string]bool{"anthropic": true, "ollama": true}
	if !validLLMProviders[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("llm.provider must be 'anthropic' or 'ollama', got %s", c.LLM.Provider)
	}

	validVectorProviders := map[string]bool{"hnsw": true}
	if !validVectorProviders[strings.ToLower(c.VectorStore.Provider)] {
		return fmt.Errorf("vector_store.provider must be 'hnsw', got %s", c.VectorStore.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.LLM.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("llm.circuit_breaker.failure_threshold must be positive, got %d", c.LLM.CircuitBreaker.FailureThreshold)
	}
	if c.LLM.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("llm.circuit_breaker.success_threshold must be positive, got %d", c.LLM.CircuitBreaker.SuccessThreshold)
	}

	return nil
}

// WriteYAML writes the configuration to path, creating parent directories
// as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadUserConfig loads the user/global config, returning defaults if none
// exists.
func LoadUserConfig() (*Config, error) {
	cfg, err := loadUserConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return NewConfig(), nil
	}
	return cfg, nil
}

// DefaultIndexWorkers is the default per-file worker pool size for
// indexing.
func DefaultIndexWorkers() int {
	if n := runtime.NumCPU(); n < 8 {
		return n
	}
	return 8
}
