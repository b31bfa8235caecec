// Package config holds all wordloom configuration: backend, router,
// orchestrator, guardrails, store, and logging settings. Configuration is
// loaded from a YAML file with WORDLOOM_* environment overrides applied on
// top. Tunables can be hot-reloaded via the Watcher.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all wordloom configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Backend      BackendConfig      `yaml:"backend"`
	Router       RouterConfig       `yaml:"router"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Guardrails   GuardrailsConfig   `yaml:"guardrails"`
	Store        StoreConfig        `yaml:"store"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BackendConfig configures the generation backend.
type BackendConfig struct {
	Provider    string        `yaml:"provider"` // gemini
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// Token-bucket rate limit, requests per second with burst capacity.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// RouterConfig configures routing behavior.
type RouterConfig struct {
	MaxSupportingWorkers int  `yaml:"max_supporting_workers"`
	HistorySize          int  `yaml:"history_size"`
	// DestructiveForcesAssistant controls the risk-to-permission policy:
	// when true, destructive intent always requires the assistant level.
	DestructiveForcesAssistant bool `yaml:"destructive_forces_assistant"`
	// UseBackendAnalysis enables the single analysis call per route; the
	// keyword path always runs as fallback.
	UseBackendAnalysis bool `yaml:"use_backend_analysis"`
}

// OrchestratorConfig configures workflow execution.
type OrchestratorConfig struct {
	Parallelism       int           `yaml:"parallelism"`        // per-workflow cap P
	MaxRetries        int           `yaml:"max_retries"`        // transient retries per task
	RetryBackoffBase  time.Duration `yaml:"retry_backoff_base"` // base 1s
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`       // default per-task timeout
	CancellationGrace time.Duration `yaml:"cancellation_grace"` // grace period for running tasks
	WorkflowDeadline  time.Duration `yaml:"workflow_deadline"`  // 0 = none
	Retention         time.Duration `yaml:"retention"`          // workflow retention after reports
}

// GuardrailsConfig configures the three checkers.
type GuardrailsConfig struct {
	MaxClaims            int     `yaml:"max_claims"`
	MaxSemanticClaims    int     `yaml:"max_semantic_claims"`
	VerificationCacheCap int     `yaml:"verification_cache_cap"`
	HallucinationRiskMax float64 `yaml:"hallucination_risk_max"` // acceptance gate
	MaxSemanticAlerts    int     `yaml:"max_semantic_alerts"`
	MaxAIIssues          int     `yaml:"max_ai_issues"`
}

// StoreConfig configures the SQLite archive.
type StoreConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Directory  string          `yaml:"directory"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "wordloom",
		Version: "0.3.0",
		Backend: BackendConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			MaxTokens:   8192,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
			RateLimit:   5,
			RateBurst:   10,
		},
		Router: RouterConfig{
			MaxSupportingWorkers:       3,
			HistorySize:                200,
			DestructiveForcesAssistant: true,
			UseBackendAnalysis:         true,
		},
		Orchestrator: OrchestratorConfig{
			Parallelism:       3,
			MaxRetries:        3,
			RetryBackoffBase:  time.Second,
			RetryBackoffMax:   30 * time.Second,
			TaskTimeout:       30 * time.Second,
			CancellationGrace: 5 * time.Second,
			Retention:         24 * time.Hour,
		},
		Guardrails: GuardrailsConfig{
			MaxClaims:            50,
			MaxSemanticClaims:    20,
			VerificationCacheCap: 10000,
			HallucinationRiskMax: 0.3,
			MaxSemanticAlerts:    8,
			MaxAIIssues:          10,
		},
		Store: StoreConfig{
			Path:    ".wordloom/archive.db",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (optional) and applies environment
// overrides. A missing file yields defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// applyEnv applies WORDLOOM_* environment overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("WORDLOOM_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Backend.APIKey == "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("WORDLOOM_MODEL"); v != "" {
		c.Backend.Model = v
	}
	if v := os.Getenv("WORDLOOM_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.Parallelism = n
		}
	}
	if v := os.Getenv("WORDLOOM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Orchestrator.MaxRetries = n
		}
	}
	if v := os.Getenv("WORDLOOM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WORDLOOM_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Orchestrator.Parallelism <= 0 {
		c.Orchestrator.Parallelism = def.Orchestrator.Parallelism
	}
	if c.Orchestrator.MaxRetries < 0 {
		c.Orchestrator.MaxRetries = def.Orchestrator.MaxRetries
	}
	if c.Orchestrator.RetryBackoffBase <= 0 {
		c.Orchestrator.RetryBackoffBase = def.Orchestrator.RetryBackoffBase
	}
	if c.Orchestrator.TaskTimeout <= 0 {
		c.Orchestrator.TaskTimeout = def.Orchestrator.TaskTimeout
	}
	if c.Orchestrator.CancellationGrace <= 0 {
		c.Orchestrator.CancellationGrace = def.Orchestrator.CancellationGrace
	}
	if c.Router.MaxSupportingWorkers <= 0 || c.Router.MaxSupportingWorkers > 3 {
		c.Router.MaxSupportingWorkers = 3
	}
	if c.Guardrails.MaxClaims <= 0 {
		c.Guardrails.MaxClaims = def.Guardrails.MaxClaims
	}
	if c.Guardrails.VerificationCacheCap <= 0 {
		c.Guardrails.VerificationCacheCap = def.Guardrails.VerificationCacheCap
	}
}
