package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Database     DatabaseConfig     `json:"database"`
	Provider     ProviderConfig     `json:"provider"`
	Agents       []AgentConfig      `json:"agents"`
	LogLevel     string             `json:"log_level"`
}

// OrchestratorConfig carries the scheduler tunables.
type OrchestratorConfig struct {
	MaxRetries         int `json:"max_retries"`
	MaxRounds          int `json:"max_rounds"`
	Concurrency        int `json:"concurrency"`
	TaskTimeoutSeconds int `json:"task_timeout_seconds"`
	ContextTTLSeconds  int `json:"context_ttl_seconds"`
}

// DatabaseConfig selects the optional backing stores. Empty values
// disable the corresponding tier.
type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// ProviderConfig configures the LLM provider behind the decomposer.
// An empty APIKey disables the LLM path; the keyword fallback still
// runs.
type ProviderConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// AgentConfig declares one registered agent type. Kind selects the
// built-in implementation; "echo" is the only in-tree kind.
type AgentConfig struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
