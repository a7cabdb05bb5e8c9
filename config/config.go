// Package config resolves provider selection and credentials from the
// environment, an optional .env file, and an optional ralph.toml defaults
// file. Precedence: explicit arguments, then environment variables, then
// the TOML file, then built-in catalog defaults.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/amatelic/ralph-loop/llm"
)

// placeholderAPIKey is the scaffold value shipped in example .env files.
// It is rejected exactly like a missing key.
const placeholderAPIKey = "your_api_key_here"

// Environment variable names.
const (
	EnvProvider      = "PROVIDER"
	EnvModel         = "OPENCODE_MODEL"
	EnvMaxIterations = "MAX_ITERATIONS"
	EnvProjectRoot   = "PROJECT_ROOT"
)

// Config holds resolved run defaults. Provider credentials are not stored
// here; they are read from the environment at adapter construction.
type Config struct {
	Provider    string `toml:"provider"`
	Model       string `toml:"model"`
	MaxTurns    int    `toml:"max_turns"`
	ProjectRoot string `toml:"project_root"`
}

// Load reads configuration. envFile is loaded into the process environment
// when given (a missing default ".env" is fine, a missing explicit file is
// an error); configFile points to a ralph.toml (optional unless explicit).
// Environment variables override TOML values.
func Load(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, llm.NewConfigurationError("cannot load env file %s: %v", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, llm.NewConfigurationError("cannot load .env: %v", err)
		}
	}

	cfg := &Config{}
	if configFile != "" {
		if _, err := toml.DecodeFile(configFile, cfg); err != nil {
			return nil, llm.NewConfigurationError("cannot parse %s: %v", configFile, err)
		}
	} else if _, err := os.Stat("ralph.toml"); err == nil {
		if _, err := toml.DecodeFile("ralph.toml", cfg); err != nil {
			return nil, llm.NewConfigurationError("cannot parse ralph.toml: %v", err)
		}
	}

	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvProjectRoot); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv(EnvMaxIterations); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, llm.NewConfigurationError("%s must be a positive integer, got %q", EnvMaxIterations, v)
		}
		cfg.MaxTurns = n
	}

	if cfg.Provider == "" {
		cfg.Provider = llm.DefaultProvider
	}
	return cfg, nil
}

// ResolveProvider produces the full adapter configuration for a provider.
// An empty name means the configured default; an explicit unknown name is
// an error, never a silent fallback. An empty model means the configured
// or catalog default.
func (c *Config) ResolveProvider(name, model string) (llm.ProviderConfig, error) {
	if name == "" {
		name = c.Provider
	}
	info := llm.GetProviderInfo(name)
	if info == nil {
		return llm.ProviderConfig{}, llm.NewConfigurationError(
			"unknown provider %q (available: %v)", name, llm.ProviderNames())
	}

	key := os.Getenv(info.EnvVar)
	if key == "" && info.FallbackEnvVar != "" {
		key = os.Getenv(info.FallbackEnvVar)
	}
	if key == "" || key == placeholderAPIKey {
		return llm.ProviderConfig{}, llm.NewConfigurationError(
			"provider %s is not configured: set %s", name, info.EnvVar)
	}

	if model == "" {
		model = c.Model
	}
	if model == "" {
		model = info.DefaultModel
	}

	return llm.ProviderConfig{
		Provider:        name,
		APIKey:          key,
		Model:           model,
		BaseURL:         info.DefaultBaseURL,
		MaxOutputTokens: info.MaxOutputTokens,
		ContextWindow:   info.ContextWindow,
	}, nil
}
