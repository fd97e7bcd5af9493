// Package config loads and validates rehydrate configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete rehydrate configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Fusion     FusionConfig     `yaml:"fusion" json:"fusion"`
	Budget     BudgetConfig     `yaml:"budget" json:"budget"`
	Dedupe     DedupeConfig     `yaml:"dedupe" json:"dedupe"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Limiter    LimiterConfig    `yaml:"limiter" json:"limiter"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Roles      map[string][]string `yaml:"roles" json:"roles"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the indexes, metadata store, and anchor registry.
	// Defaults to .rehydrate under the project root.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// AnchorsFile is the YAML seed file for the anchor registry.
	AnchorsFile string `yaml:"anchors_file" json:"anchors_file"`
}

// FusionConfig configures how the dense and sparse channels are combined.
// Weights are configurable via:
//  1. User config (~/.config/rehydrate/config.yaml) - personal defaults
//  2. Project config (.rehydrate.yaml) - per-repo tuning
//  3. Env vars (REHYDRATE_DENSE_WEIGHT, REHYDRATE_SPARSE_WEIGHT, REHYDRATE_RRF_CONSTANT)
type FusionConfig struct {
	// Method selects the fusion algorithm: "rrf" or "zscore".
	Method string `yaml:"method" json:"method"`

	// DenseWeight is the weight for the dense (vector) channel (0.0-1.0).
	// Must sum to 1.0 with SparseWeight.
	DenseWeight float64 `yaml:"dense_weight" json:"dense_weight"`

	// SparseWeight is the weight for the sparse (lexical) channel (0.0-1.0).
	// Must sum to 1.0 with DenseWeight.
	SparseWeight float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// RRFConstant is the RRF smoothing parameter (k0).
	// Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// BudgetConfig configures token budgets for bundle assembly.
type BudgetConfig struct {
	// MaxTokens is the default bundle token budget.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// MaxTokensCeiling is the highest budget a caller may request.
	MaxTokensCeiling int `yaml:"max_tokens_ceiling" json:"max_tokens_ceiling"`
	// PinsCeiling is the hard cap on pinned anchor tokens.
	PinsCeiling int `yaml:"pins_ceiling" json:"pins_ceiling"`
	// PinsBudgetMax scales with the stability option: the effective pin
	// ceiling is min(PinsCeiling, round(stability*PinsBudgetMax)).
	PinsBudgetMax int `yaml:"pins_budget_max" json:"pins_budget_max"`
}

// DedupeConfig configures duplicate and diversity filtering.
type DedupeConfig struct {
	// Mode selects the filtering rules: "file" or "file+overlap".
	Mode string `yaml:"mode" json:"mode"`
	// PerFileCap is the maximum chunks kept per source file.
	PerFileCap int `yaml:"per_file_cap" json:"per_file_cap"`
	// OverlapThreshold is the span-overlap fraction beyond which a chunk
	// is considered a duplicate of an already-kept chunk (0.0-1.0).
	OverlapThreshold float64 `yaml:"overlap_threshold" json:"overlap_threshold"`
}

// RetrievalConfig configures the retrieval channels.
type RetrievalConfig struct {
	// CandidateK is how many candidates each channel fetches before fusion.
	CandidateK int `yaml:"candidate_k" json:"candidate_k"`
	// Timeout bounds a single rehydration request (e.g., "10s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// ExpandQuery selects query expansion mode: "off" or "auto".
	ExpandQuery string `yaml:"expand_query" json:"expand_query"`
	// MaxExpansions caps the lexical variants added in auto mode.
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http", "static", or "" (auto-detect).
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector dimension (0 = auto-detect from provider).
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Endpoint is the HTTP embedding service URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU query-embedding cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxQPS caps requests per second to the HTTP provider (0 = unlimited).
	MaxQPS float64 `yaml:"max_qps" json:"max_qps"`
}

// LimiterConfig bounds concurrent rehydration requests.
type LimiterConfig struct {
	// MaxInFlight is the number of concurrently served requests.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`
	// AcquireWait is how long a request waits for a slot before being
	// rejected (e.g., "2s").
	AcquireWait string `yaml:"acquire_wait" json:"acquire_wait"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:     ".rehydrate",
			AnchorsFile: "anchors.yaml",
		},
		Fusion: FusionConfig{
			Method:       "rrf",
			DenseWeight:  0.65,
			SparseWeight: 0.35,
			// k0=60 is the industry standard smoothing constant
			RRFConstant: 60,
		},
		Budget: BudgetConfig{
			MaxTokens:        1200,
			MaxTokensCeiling: 6000,
			PinsCeiling:      200,
			PinsBudgetMax:    300,
		},
		Dedupe: DedupeConfig{
			Mode:             "file",
			PerFileCap:       2,
			OverlapThreshold: 0.5,
		},
		Retrieval: RetrievalConfig{
			CandidateK:    50,
			Timeout:       "10s",
			ExpandQuery:   "off",
			MaxExpansions: 5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty triggers auto-detection: HTTP -> static
			Model:      "qwen3-embedding:8b",
			Dimensions: 0, // Auto-detect from embedder
			Endpoint:   "",
			BatchSize:  32,
			CacheSize:  1024,
			MaxQPS:     0,
		},
		Limiter: LimiterConfig{
			MaxInFlight: 8,
			AcquireWait: "2s",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Roles: map[string][]string{
			"planner":     {"system_overview", "current_priorities", "roadmap"},
			"implementer": {"system_overview", "code_conventions", "dev_workflow"},
			"researcher":  {"system_overview", "research_notes"},
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/rehydrate/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/rehydrate/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rehydrate", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "rehydrate", "config.yaml")
	}
	return filepath.Join(home, ".config", "rehydrate", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/rehydrate/config.yaml)
//  3. Project config (.rehydrate.yaml in project root)
//  4. Environment variables (REHYDRATE_*)
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

// loadFromFile attempts to load configuration from .rehydrate.yaml or .rehydrate.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".rehydrate.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".rehydrate.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.AnchorsFile != "" {
		c.Paths.AnchorsFile = other.Paths.AnchorsFile
	}

	// Fusion
	// Note: 0 is not a practical value for weights, so we only merge non-zero values
	if other.Fusion.Method != "" {
		c.Fusion.Method = other.Fusion.Method
	}
	if other.Fusion.DenseWeight != 0 {
		c.Fusion.DenseWeight = other.Fusion.DenseWeight
	}
	if other.Fusion.SparseWeight != 0 {
		c.Fusion.SparseWeight = other.Fusion.SparseWeight
	}
	if other.Fusion.RRFConstant != 0 {
		c.Fusion.RRFConstant = other.Fusion.RRFConstant
	}

	// Budget
	if other.Budget.MaxTokens != 0 {
		c.Budget.MaxTokens = other.Budget.MaxTokens
	}
	if other.Budget.MaxTokensCeiling != 0 {
		c.Budget.MaxTokensCeiling = other.Budget.MaxTokensCeiling
	}
	if other.Budget.PinsCeiling != 0 {
		c.Budget.PinsCeiling = other.Budget.PinsCeiling
	}
	if other.Budget.PinsBudgetMax != 0 {
		c.Budget.PinsBudgetMax = other.Budget.PinsBudgetMax
	}

	// Dedupe
	if other.Dedupe.Mode != "" {
		c.Dedupe.Mode = other.Dedupe.Mode
	}
	if other.Dedupe.PerFileCap != 0 {
		c.Dedupe.PerFileCap = other.Dedupe.PerFileCap
	}
	if other.Dedupe.OverlapThreshold != 0 {
		c.Dedupe.OverlapThreshold = other.Dedupe.OverlapThreshold
	}

	// Retrieval
	if other.Retrieval.CandidateK != 0 {
		c.Retrieval.CandidateK = other.Retrieval.CandidateK
	}
	if other.Retrieval.Timeout != "" {
		c.Retrieval.Timeout = other.Retrieval.Timeout
	}
	if other.Retrieval.ExpandQuery != "" {
		c.Retrieval.ExpandQuery = other.Retrieval.ExpandQuery
	}
	if other.Retrieval.MaxExpansions != 0 {
		c.Retrieval.MaxExpansions = other.Retrieval.MaxExpansions
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.MaxQPS != 0 {
		c.Embeddings.MaxQPS = other.Embeddings.MaxQPS
	}

	// Limiter
	if other.Limiter.MaxInFlight != 0 {
		c.Limiter.MaxInFlight = other.Limiter.MaxInFlight
	}
	if other.Limiter.AcquireWait != "" {
		c.Limiter.AcquireWait = other.Limiter.AcquireWait
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	// Roles replace wholesale: a project that declares roles owns the map
	if len(other.Roles) > 0 {
		c.Roles = other.Roles
	}
}

// applyEnvOverrides applies REHYDRATE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REHYDRATE_DENSE_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.DenseWeight = w
		}
	}
	if v := os.Getenv("REHYDRATE_SPARSE_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Fusion.SparseWeight = w
		}
	}
	if v := os.Getenv("REHYDRATE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Fusion.RRFConstant = k
		}
	}
	if v := os.Getenv("REHYDRATE_FUSION_METHOD"); v != "" {
		c.Fusion.Method = v
	}
	if v := os.Getenv("REHYDRATE_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Budget.MaxTokens = n
		}
	}
	if v := os.Getenv("REHYDRATE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("REHYDRATE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("REHYDRATE_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("REHYDRATE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("REHYDRATE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("REHYDRATE_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limiter.MaxInFlight = n
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .rehydrate.yaml/.yml file by walking up
// the directory tree.
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

		if fileExists(filepath.Join(currentDir, ".rehydrate.yaml")) ||
			fileExists(filepath.Join(currentDir, ".rehydrate.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// RoleNames returns the configured role names in sorted order.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
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

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Fusion.Method != "rrf" && c.Fusion.Method != "zscore" {
		return fmt.Errorf("fusion.method must be 'rrf' or 'zscore', got %s", c.Fusion.Method)
	}
	if c.Fusion.DenseWeight < 0 || c.Fusion.DenseWeight > 1 {
		return fmt.Errorf("dense_weight must be between 0 and 1, got %f", c.Fusion.DenseWeight)
	}
	if c.Fusion.SparseWeight < 0 || c.Fusion.SparseWeight > 1 {
		return fmt.Errorf("sparse_weight must be between 0 and 1, got %f", c.Fusion.SparseWeight)
	}

	sum := c.Fusion.DenseWeight + c.Fusion.SparseWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("dense_weight + sparse_weight must equal 1.0, got %.2f", sum)
	}

	if c.Budget.MaxTokens <= 0 {
		return fmt.Errorf("budget.max_tokens must be positive, got %d", c.Budget.MaxTokens)
	}
	if c.Budget.MaxTokens > c.Budget.MaxTokensCeiling {
		return fmt.Errorf("budget.max_tokens %d exceeds ceiling %d", c.Budget.MaxTokens, c.Budget.MaxTokensCeiling)
	}
	if c.Budget.PinsCeiling < 0 {
		return fmt.Errorf("budget.pins_ceiling must be non-negative, got %d", c.Budget.PinsCeiling)
	}

	if c.Dedupe.Mode != "file" && c.Dedupe.Mode != "file+overlap" {
		return fmt.Errorf("dedupe.mode must be 'file' or 'file+overlap', got %s", c.Dedupe.Mode)
	}
	if c.Dedupe.PerFileCap < 1 {
		return fmt.Errorf("dedupe.per_file_cap must be at least 1, got %d", c.Dedupe.PerFileCap)
	}
	if c.Dedupe.OverlapThreshold < 0 || c.Dedupe.OverlapThreshold > 1 {
		return fmt.Errorf("dedupe.overlap_threshold must be between 0 and 1, got %f", c.Dedupe.OverlapThreshold)
	}

	if c.Retrieval.ExpandQuery != "off" && c.Retrieval.ExpandQuery != "auto" {
		return fmt.Errorf("retrieval.expand_query must be 'off' or 'auto', got %s", c.Retrieval.ExpandQuery)
	}
	if c.Retrieval.CandidateK < 1 {
		return fmt.Errorf("retrieval.candidate_k must be at least 1, got %d", c.Retrieval.CandidateK)
	}

	if c.Embeddings.Provider != "" { // Empty string triggers auto-detection
		validProviders := map[string]bool{"http": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'http', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	if c.Limiter.MaxInFlight < 1 {
		return fmt.Errorf("limiter.max_in_flight must be at least 1, got %d", c.Limiter.MaxInFlight)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
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
