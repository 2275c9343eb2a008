package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:3000", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, 3, cfg.Ollama.Retries)
	assert.Equal(t, time.Second, cfg.Ollama.RetryDelay)
	assert.Equal(t, 100, cfg.Memory.MaxMessages)
	assert.Equal(t, 60*time.Second, cfg.Memory.SaveInterval)
	assert.Equal(t, 0.5, cfg.Agents.Dev.Temperature)
	assert.Equal(t, 0.3, cfg.Agents.Tester.Temperature)
	assert.False(t, cfg.Workflow.SerializeProjects)
}

func TestLoadYAMLOverrides(t *testing.T) {
	cfg, err := Load([]byte("server:\n  port: 8080\nollama:\n  retries: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ollama.Retries)
	// untouched keys keep their defaults
	assert.Equal(t, "llama3.2:1b", cfg.Ollama.DefaultModel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEVTEAM_SERVER_PORT", "9090")
	t.Setenv("DEVTEAM_OLLAMA_BASE_URL", "http://inference:11434")
	t.Setenv("DEVTEAM_AGENTS_BA_MODEL", "qwen2.5:7b")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://inference:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "qwen2.5:7b", cfg.Agents.BA.Model)
}

func TestEnvKeyMapping(t *testing.T) {
	assert.Equal(t, "server.port", envKey("DEVTEAM_SERVER_PORT"))
	assert.Equal(t, "ollama.base_url", envKey("DEVTEAM_OLLAMA_BASE_URL"))
	assert.Equal(t, "agents.ba.model", envKey("DEVTEAM_AGENTS_BA_MODEL"))
	assert.Equal(t, "workflow.serialize_projects", envKey("DEVTEAM_WORKFLOW_SERIALIZE_PROJECTS"))
}
