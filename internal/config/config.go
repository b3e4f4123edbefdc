// Package config handles drift configuration loading and saving.
// Configuration lives at ~/.drift/config.yaml; a missing file yields the
// defaults. Environment overrides are applied after parsing, so they win
// over the file in every code path that loads a Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the execution backend.
type Backend string

const (
	BackendMock   Backend = "mock"
	BackendLocal  Backend = "local"
	BackendDocker Backend = "docker"
)

// ValidBackends lists the accepted executor backends.
var ValidBackends = []Backend{BackendMock, BackendLocal, BackendDocker}

// ValidProviders lists the accepted LLM providers.
var ValidProviders = []string{"ollama", "gemini"}

// Environment overrides honored before any plan is validated.
const (
	// EnvDryRun forces dry-run operation: no plan ever proceeds past the
	// confirmation gate, regardless of backend.
	EnvDryRun = "DRIFT_DRY_RUN"
	// EnvExecutor selects the executor backend (mock|local|docker).
	EnvExecutor = "DRIFT_EXECUTOR"
	// EnvSandboxRoot confines local execution under the given directory.
	EnvSandboxRoot = "DRIFT_SANDBOX_ROOT"
	// EnvHome relocates the drift state directory (default ~/.drift).
	EnvHome = "DRIFT_HOME"
	// EnvConfig points at an alternate config file.
	EnvConfig = "DRIFT_CONFIG"
)

// Config is the root configuration structure.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Safety    SafetyConfig    `yaml:"safety"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`

	// ForceDryRun is set only via DRIFT_DRY_RUN, never from the file.
	ForceDryRun bool `yaml:"-"`
}

// LLMConfig configures plan generation.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	OllamaURL   string  `yaml:"ollama_url"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	// APIKeyEnv names the environment variable holding the API key for
	// hosted providers. The key itself never lands in the file.
	APIKeyEnv string `yaml:"api_key_env"`
}

// SafetyConfig configures classification policy.
type SafetyConfig struct {
	// UserRulesFile is an optional YAML file of additional rules.
	UserRulesFile string `yaml:"user_rules_file"`
	// AutoSnapshot snapshots before every execution even when the plan
	// declares no affected files.
	AutoSnapshot bool `yaml:"auto_snapshot"`
}

// ExecutorConfig configures command execution.
type ExecutorConfig struct {
	Backend        Backend `yaml:"backend"`
	SandboxRoot    string  `yaml:"sandbox_root"`
	CommandTimeout string  `yaml:"command_timeout"`
	DockerImage    string  `yaml:"docker_image"`
	MaxOutputKB    int     `yaml:"max_output_kb"`
}

// SnapshotsConfig configures the snapshot store.
type SnapshotsConfig struct {
	Dir        string `yaml:"dir"`
	KeepNewest int    `yaml:"keep_newest"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// HistoryConfig configures the history store.
type HistoryConfig struct {
	Path         string `yaml:"path"`
	DisplayLimit int    `yaml:"display_limit"`
}

// LoggingConfig configures debug file logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// StateDir returns the drift state directory, honoring DRIFT_HOME.
func StateDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drift"
	}
	return filepath.Join(home, ".drift")
}

// DefaultPath returns the config file path, honoring DRIFT_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(StateDir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	state := StateDir()
	return &Config{
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen2.5-coder:7b",
			OllamaURL:   "http://localhost:11434",
			Temperature: 0.1,
			TopP:        0.9,
			APIKeyEnv:   "GEMINI_API_KEY",
		},
		Safety: SafetyConfig{
			UserRulesFile: filepath.Join(state, "rules.yaml"),
			AutoSnapshot:  false,
		},
		Executor: ExecutorConfig{
			Backend:        BackendLocal,
			CommandTimeout: "300s",
			DockerImage:    "ubuntu:24.04",
			MaxOutputKB:    10240,
		},
		Snapshots: SnapshotsConfig{
			Dir:        filepath.Join(state, "snapshots"),
			KeepNewest: 10,
			MaxAgeDays: 30,
		},
		History: HistoryConfig{
			Path:         filepath.Join(state, "history.db"),
			DisplayLimit: 10,
		},
		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns the
// defaults; environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. These always
// run after parsing so the environment wins over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDryRun); v == "1" || v == "true" {
		c.ForceDryRun = true
	}
	if v := os.Getenv(EnvExecutor); v != "" {
		c.Executor.Backend = Backend(v)
	}
	if v := os.Getenv(EnvSandboxRoot); v != "" {
		c.Executor.SandboxRoot = v
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	validBackend := false
	for _, b := range ValidBackends {
		if c.Executor.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid executor backend: %s (valid: %v)", c.Executor.Backend, ValidBackends)
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if _, err := time.ParseDuration(c.Executor.CommandTimeout); err != nil {
		return fmt.Errorf("invalid command_timeout %q: %w", c.Executor.CommandTimeout, err)
	}

	if c.Snapshots.KeepNewest < 0 {
		return fmt.Errorf("snapshots.keep_newest must be >= 0, got %d", c.Snapshots.KeepNewest)
	}
	if c.Snapshots.MaxAgeDays < 0 {
		return fmt.Errorf("snapshots.max_age_days must be >= 0, got %d", c.Snapshots.MaxAgeDays)
	}

	return nil
}

// CommandTimeout returns the per-command timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Executor.CommandTimeout)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// MaxOutputBytes returns the output cap in bytes.
func (c *Config) MaxOutputBytes() int64 {
	if c.Executor.MaxOutputKB <= 0 {
		return 10 * 1024 * 1024
	}
	return int64(c.Executor.MaxOutputKB) * 1024
}

// APIKey resolves the hosted-provider API key from the environment.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}
