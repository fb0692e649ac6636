package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 120, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, "knowledge", cfg.Knowledge.Collection)
	assert.Equal(t, "data/checkpoints.db", cfg.Storage.CheckpointPath)
	assert.Equal(t, "data/records.db", cfg.Storage.RepositoryPath)
	assert.Equal(t, 60, cfg.Tools.DefaultTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Workflow.MaxTaskSteps)
	assert.Equal(t, 3, cfg.Workflow.MaxRetryCount)
	assert.Equal(t, 8000, cfg.Workflow.MaxContextTokens)
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: 127.0.0.1
  port: 9090
llm:
  model: llama3
  base_url: http://localhost:11434/v1
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched settings keep their defaults.
	assert.Equal(t, "data/records.db", cfg.Storage.RepositoryPath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGENTSTATION_SERVER_PORT", "7000")
	t.Setenv("AGENTSTATION_LLM_MODEL", "qwen2")
	t.Setenv("AGENTSTATION_WORKFLOW_MAX_TASK_STEPS", "5")
	t.Setenv("AGENTSTATION_WORKFLOW_MAX_RETRY_COUNT", "2")
	t.Setenv("AGENTSTATION_TOOLS_DEFAULT_TIMEOUT", "30")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "qwen2", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Workflow.MaxTaskSteps)
	assert.Equal(t, 2, cfg.Workflow.MaxRetryCount)
	assert.Equal(t, 30, cfg.Tools.DefaultTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
