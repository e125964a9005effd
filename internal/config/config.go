package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider     string          `mapstructure:"provider" yaml:"provider"`
	Port         int             `mapstructure:"port" yaml:"port"`
	MaxTokens    int             `mapstructure:"max_tokens" yaml:"max_tokens"`
	SystemPrompt string          `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	ServerURL    string          `mapstructure:"server_url" yaml:"server_url"`
	Anthropic    AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI       OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(configDir, "anthropic-play"))
	viper.AddConfigPath(".")

	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("port", 8484)
	viper.SetDefault("max_tokens", 4096)
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("openai.model", "gpt-5.2")

	// Config file is optional; env and defaults carry a bare setup.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)

	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if port := os.Getenv("ANTHROPIC_PLAY_PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid ANTHROPIC_PLAY_PORT %q: %w", port, err)
		}
		cfg.Port = parsed
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	return &cfg, nil
}

// Validate enforces the startup preconditions for the relay server: a
// provider credential and a usable listen port must both be present, or the
// process fails fast instead of starting in a broken state.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic API key is not configured: set anthropic.api_key or ANTHROPIC_API_KEY")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai API key is not configured: set openai.api_key or OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown provider %q: must be anthropic or openai", c.Provider)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Port)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// Dump renders the effective configuration as YAML with credentials
// redacted.
func (c *Config) Dump() ([]byte, error) {
	redacted := *c
	redacted.Anthropic.APIKey = redact(c.Anthropic.APIKey)
	redacted.OpenAI.APIKey = redact(c.OpenAI.APIKey)
	return yaml.Marshal(&redacted)
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "(set)"
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}
