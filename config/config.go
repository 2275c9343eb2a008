// Package config aggregates the runtime configuration of the devteam
// pipeline. Values are layered: struct defaults, then optional YAML bytes,
// then DEVTEAM_ environment overrides (DEVTEAM_SERVER_PORT=8080 maps to
// server.port).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables before mapping them onto
// config keys.
const envPrefix = "DEVTEAM_"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// OllamaConfig holds connection and sampling defaults for the local
// inference backend.
type OllamaConfig struct {
	BaseURL       string        `koanf:"base_url"`
	DefaultModel  string        `koanf:"default_model"`
	Temperature   float64       `koanf:"temperature"`
	TopP          float64       `koanf:"top_p"`
	TopK          int           `koanf:"top_k"`
	RepeatPenalty float64       `koanf:"repeat_penalty"`
	MaxTokens     int           `koanf:"max_tokens"`
	Timeout       time.Duration `koanf:"timeout"`
	Retries       int           `koanf:"retries"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// AgentConfig selects the model and sampling temperature for one role agent.
type AgentConfig struct {
	Model       string  `koanf:"model"`
	Temperature float64 `koanf:"temperature"`
}

// AgentsConfig groups the per-role agent settings.
type AgentsConfig struct {
	BA     AgentConfig `koanf:"ba"`
	Dev    AgentConfig `koanf:"dev"`
	Tester AgentConfig `koanf:"tester"`
}

// MemoryConfig bounds the conversation store and its snapshot persistence.
type MemoryConfig struct {
	PersistPath  string        `koanf:"persist_path"`
	MaxMessages  int           `koanf:"max_messages"`
	SaveInterval time.Duration `koanf:"save_interval"`
}

// SearchConfig configures the Google Custom Search collaborator. Search is
// disabled when APIKey or SearchEngineID is empty.
type SearchConfig struct {
	APIKey         string `koanf:"api_key"`
	SearchEngineID string `koanf:"search_engine_id"`
	MaxResults     int    `koanf:"max_results"`
	EnrichTop      int    `koanf:"enrich_top"`
}

// WorkflowConfig tunes the orchestrator.
type WorkflowConfig struct {
	// ResultTTL is how long finished workflow records remain pollable.
	ResultTTL time.Duration `koanf:"result_ttl"`
	// SerializeProjects serializes concurrent runs against the same project.
	// Off by default: interleaved histories are permitted.
	SerializeProjects bool `koanf:"serialize_projects"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Ollama   OllamaConfig   `koanf:"ollama"`
	Agents   AgentsConfig   `koanf:"agents"`
	Memory   MemoryConfig   `koanf:"memory"`
	Search   SearchConfig   `koanf:"search"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// Default returns the baseline configuration for a local single-process
// deployment against an Ollama instance on the default port.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "localhost", Port: 3000},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			DefaultModel:  "llama3.2:1b",
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          40,
			RepeatPenalty: 1.1,
			MaxTokens:     2000,
			Timeout:       120 * time.Second,
			Retries:       3,
			RetryDelay:    time.Second,
		},
		Agents: AgentsConfig{
			BA:     AgentConfig{Model: "llama3.2:1b", Temperature: 0.7},
			Dev:    AgentConfig{Model: "llama3.2:1b", Temperature: 0.5},
			Tester: AgentConfig{Model: "llama3.2:1b", Temperature: 0.3},
		},
		Memory: MemoryConfig{
			PersistPath:  "data",
			MaxMessages:  100,
			SaveInterval: 60 * time.Second,
		},
		Search: SearchConfig{MaxResults: 5, EnrichTop: 3},
		Workflow: WorkflowConfig{
			ResultTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load layers optional YAML bytes and environment overrides over the
// defaults. Pass nil yamlBytes to load from defaults and environment only.
func Load(yamlBytes []byte) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if len(yamlBytes) > 0 {
		if err := k.Load(rawbytes.Provider(yamlBytes), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return cfg, fmt.Errorf("load env config: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps DEVTEAM_SECTION_SOME_KEY to section.some_key. The agents
// section nests one level deeper (DEVTEAM_AGENTS_BA_MODEL -> agents.ba.model).
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	if parts[0] == "agents" {
		sub := strings.SplitN(parts[1], "_", 2)
		if len(sub) == 2 {
			return parts[0] + "." + sub[0] + "." + sub[1]
		}
	}
	return parts[0] + "." + parts[1]
}
