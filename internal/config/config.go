// Package config loads prospector configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prospector configuration.
type Config struct {
	// Campaign context: what is being sold and to whom. Inlined or loaded
	// from a separate file via ContextPath.
	Campaign    string `yaml:"campaign"`
	ContextPath string `yaml:"context_path"`

	LLM    LLMConfig    `yaml:"llm"`
	Tools  ToolsConfig  `yaml:"tools"`
	Store  StoreConfig  `yaml:"store"`
	Agent  AgentConfig  `yaml:"agent"`
	Server ServerConfig `yaml:"server"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// CopyModel is used for outreach copy generation; typically a stronger
	// model than the planning/qualification one.
	CopyModel string        `yaml:"copy_model"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ToolsConfig configures the data-fetch adapters.
type ToolsConfig struct {
	RapidAPIKey string        `yaml:"rapidapi_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig configures persistence paths.
type StoreConfig struct {
	// ContextDir holds one JSON record per fetch result.
	ContextDir string `yaml:"context_dir"`
	// LedgerPath is the SQLite database recording batch runs.
	LedgerPath string `yaml:"ledger_path"`
}

// AgentConfig tunes batch processing.
type AgentConfig struct {
	// QualificationThreshold is the minimum score that triggers copy
	// generation.
	QualificationThreshold int `yaml:"qualification_threshold"`
	// MaxConcurrentFetches bounds fetch fan-out across the whole batch.
	// Zero means unbounded.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`
}

// ServerConfig configures the HTTP service layer.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			CopyModel: "gpt-4o",
			BaseURL:   "https://api.openai.com/v1",
			Timeout:   120 * time.Second,
		},
		Tools: ToolsConfig{
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			ContextDir: ".leads/context",
			LedgerPath: ".leads/runs.db",
		},
		Agent: AgentConfig{
			QualificationThreshold: 50,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load reads a YAML config file, layers it over defaults, applies environment
// overrides, and validates the result. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.ContextPath != "" && cfg.Campaign == "" {
		data, err := os.ReadFile(cfg.ContextPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read campaign context %s: %w", cfg.ContextPath, err)
		}
		cfg.Campaign = string(data)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file. Environment always wins.
func (c *Config) applyEnvOverrides() {
	switch c.LLM.Provider {
	case "gemini":
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	}
	if v := os.Getenv("RAPIDAPI_KEY"); v != "" {
		c.Tools.RapidAPIKey = v
	}
}

// Validate checks structural settings. API keys are deliberately not required
// here: adapters degrade to in-band error payloads when unconfigured.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Agent.QualificationThreshold < 0 || c.Agent.QualificationThreshold > 100 {
		return fmt.Errorf("qualification_threshold must be 0-100, got %d", c.Agent.QualificationThreshold)
	}
	if c.Agent.MaxConcurrentFetches < 0 {
		return fmt.Errorf("max_concurrent_fetches must be >= 0, got %d", c.Agent.MaxConcurrentFetches)
	}
	if c.Store.ContextDir == "" {
		return fmt.Errorf("store.context_dir is required")
	}
	return nil
}
