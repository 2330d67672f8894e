package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault tests the built-in configuration
func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.validate())
	assert.Equal(t, 6, cfg.Engine.MaxRounds)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
	assert.Equal(t, "deepseek-chat", cfg.LLM.ControllerModel)
}

// TestLoadAppliesDefaults tests that a partial file is filled in
func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_rounds: 2
llm:
  controller_model: "test-model"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Engine.MaxRounds)
	assert.Equal(t, "test-model", cfg.LLM.ControllerModel)
	assert.Equal(t, "test-model", cfg.LLM.ReaderModel, "reader model defaults to the controller model")
	assert.Equal(t, Default().LLM.BaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, Default().Search.PerQueryLimit, cfg.Search.PerQueryLimit)
}

// TestLoadMissingFile tests the not-found error path
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// TestLoadInvalidValues tests validation failures
func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "negative max_rounds",
			yaml: "engine:\n  max_rounds: -1\n",
		},
		{
			name: "negative fetch concurrency",
			yaml: "fetch:\n  concurrency: -2\n",
		},
		{
			name: "bad duration",
			yaml: "engine:\n  decision_timeout: \"soon\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

// TestEnvOverrides tests environment variable precedence
func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEEPSEEKER_LLM_BASE_URL", "http://llm.internal:9000/v1")
	t.Setenv("DEEPSEEKER_SEARCH_URL", "http://search.internal:9001")

	cfg, err := Load(writeConfig(t, "llm:\n  base_url: \"http://from-file\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://llm.internal:9000/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "http://search.internal:9001", cfg.Search.BaseURL)
}

// TestLoadOrDefault tests the fallback path
func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault("/nonexistent/config.yaml")
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Engine.MaxRounds, cfg.Engine.MaxRounds)
}

// TestSaveRoundTrip tests Save followed by Load
func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxRounds = 9

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Engine.MaxRounds)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
