// Package config loads server settings from environment variables and an
// optional YAML file, with sane defaults for local use.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"agentstation/internal/knowledge"
	"agentstation/internal/llm"
)

// Config is the process configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	LLM       llm.Config       `mapstructure:"llm"`
	Knowledge knowledge.Config `mapstructure:"knowledge"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Tools     ToolsConfig      `mapstructure:"tools"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Workflow  WorkflowConfig   `mapstructure:"workflow"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	RepositoryPath string `mapstructure:"repository_path"`
}

type ToolsConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	// DefaultTimeout is the fallback tool deadline in seconds, applied to
	// schemas that omit timeout_seconds.
	DefaultTimeout int `mapstructure:"default_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// WorkflowConfig tunes the planner and executor caps.
type WorkflowConfig struct {
	MaxTaskSteps     int `mapstructure:"max_task_steps"`
	MaxRetryCount    int `mapstructure:"max_retry_count"`
	MaxContextTokens int `mapstructure:"max_context_tokens"`
}

// Load reads configuration. Precedence: env vars (AGENTSTATION_ prefix,
// dots as underscores), then the config file, then defaults. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 120)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("knowledge.collection", "knowledge")
	v.SetDefault("storage.checkpoint_path", "data/checkpoints.db")
	v.SetDefault("storage.repository_path", "data/records.db")
	v.SetDefault("tools.default_timeout", 60)
	v.SetDefault("logging.level", "info")
	v.SetDefault("workflow.max_task_steps", 20)
	v.SetDefault("workflow.max_retry_count", 3)
	v.SetDefault("workflow.max_context_tokens", 8000)

	v.SetEnvPrefix("AGENTSTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
