package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rrf", cfg.Fusion.Method)
	assert.Equal(t, 60, cfg.Fusion.RRFConstant)
	assert.Equal(t, 1200, cfg.Budget.MaxTokens)
	assert.Equal(t, 6000, cfg.Budget.MaxTokensCeiling)
	assert.Equal(t, 200, cfg.Budget.PinsCeiling)
	assert.Equal(t, 2, cfg.Dedupe.PerFileCap)
	assert.Equal(t, 8, cfg.Limiter.MaxInFlight)
	assert.Contains(t, cfg.Roles, "planner")
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
fusion:
  method: zscore
  dense_weight: 0.5
  sparse_weight: 0.5
budget:
  max_tokens: 2000
dedupe:
  per_file_cap: 3
roles:
  planner: [system_overview]
  reviewer: [code_conventions]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rehydrate.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "zscore", cfg.Fusion.Method)
	assert.Equal(t, 0.5, cfg.Fusion.DenseWeight)
	assert.Equal(t, 2000, cfg.Budget.MaxTokens)
	assert.Equal(t, 3, cfg.Dedupe.PerFileCap)

	// Roles map replaces wholesale
	assert.Equal(t, []string{"planner", "reviewer"}, cfg.RoleNames())

	// Untouched sections keep defaults
	assert.Equal(t, 60, cfg.Fusion.RRFConstant)
	assert.Equal(t, "stdio", cfg.Server.Transport)
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Budget.MaxTokens)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	content := `
fusion:
  dense_weight: 0.7
  sparse_weight: 0.3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rehydrate.yaml"), []byte(content), 0o644))

	t.Setenv("REHYDRATE_DENSE_WEIGHT", "0.6")
	t.Setenv("REHYDRATE_SPARSE_WEIGHT", "0.4")
	t.Setenv("REHYDRATE_RRF_CONSTANT", "30")
	t.Setenv("REHYDRATE_MAX_IN_FLIGHT", "4")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Fusion.DenseWeight)
	assert.Equal(t, 0.4, cfg.Fusion.SparseWeight)
	assert.Equal(t, 30, cfg.Fusion.RRFConstant)
	assert.Equal(t, 4, cfg.Limiter.MaxInFlight)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".rehydrate.yaml"), []byte("fusion: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "weights must sum to one",
			mutate:  func(c *Config) { c.Fusion.DenseWeight = 0.8; c.Fusion.SparseWeight = 0.8 },
			wantErr: "must equal 1.0",
		},
		{
			name:    "unknown fusion method",
			mutate:  func(c *Config) { c.Fusion.Method = "borda" },
			wantErr: "fusion.method",
		},
		{
			name:    "max tokens above ceiling",
			mutate:  func(c *Config) { c.Budget.MaxTokens = 9000 },
			wantErr: "exceeds ceiling",
		},
		{
			name:    "per file cap below one",
			mutate:  func(c *Config) { c.Dedupe.PerFileCap = 0 },
			wantErr: "per_file_cap",
		},
		{
			name:    "unknown dedupe mode",
			mutate:  func(c *Config) { c.Dedupe.Mode = "semantic" },
			wantErr: "dedupe.mode",
		},
		{
			name:    "unknown expand mode",
			mutate:  func(c *Config) { c.Retrieval.ExpandQuery = "always" },
			wantErr: "expand_query",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "ollama3000" },
			wantErr: "embeddings.provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindProjectRoot_FindsConfigMarker(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".rehydrate.yaml"), []byte("version: 1\n"), 0o644))

	got, err := FindProjectRoot(nested)
	require.NoError(t, err)

	// Resolve symlinks for macOS tempdir paths
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	assert.Equal(t, wantResolved, gotResolved)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".rehydrate.yaml")

	cfg := NewConfig()
	cfg.Budget.MaxTokens = 3000
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3000, loaded.Budget.MaxTokens)
}
