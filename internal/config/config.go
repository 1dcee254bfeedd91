// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.laoshi/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Discord: bot token and the entry channel the bot listens on
//   - AI: provider, model selection, system prompt, token pricing
//   - Sessions: concurrency policy and status report interval
//   - Storage: bbolt database path (conversation history and ownership)
//
// Security: the bot token is never logged; the config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingToken indicates the Discord bot token is missing.
	ErrMissingToken = errors.New("missing Discord token")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEntryChannel indicates the entry channel ID is missing or malformed.
	ErrInvalidEntryChannel = errors.New("invalid entry channel")

	// ErrInvalidPolicy indicates the session policy is not supported.
	ErrInvalidPolicy = errors.New("invalid session policy")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidDBPath indicates the database path is invalid.
	ErrInvalidDBPath = errors.New("invalid database path")

	// ErrInvalidInterval indicates the status report interval is out of range.
	ErrInvalidInterval = errors.New("invalid report interval")

	// ErrInvalidPrice indicates a token price is negative.
	ErrInvalidPrice = errors.New("invalid token price")

	// ErrInvalidRate indicates the request rate limit is out of range.
	ErrInvalidRate = errors.New("invalid rate limit")
)

// Session policy identifiers used in Config.Policy.
const (
	PolicyQueue   = "queue"
	PolicyPreempt = "preempt"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: the Discord token is sensitive and must never be logged.
type Config struct {
	// Discord configuration
	DiscordToken   string `mapstructure:"discord_token"`    // SENSITIVE
	EntryChannelID uint64 `mapstructure:"entry_channel_id"` // channel the bot listens on for new conversations

	// AI provider and model configuration
	Provider     string `mapstructure:"provider"`   // "gemini" (default), "ollama", "openai"
	ModelName    string `mapstructure:"model_name"` // Model identifier (e.g., "gemini-2.5-flash", "llama3.3", "gpt-4o")
	OllamaHost   string `mapstructure:"ollama_host"`
	PromptDir    string `mapstructure:"prompt_dir"`
	SystemPrompt string `mapstructure:"system_prompt"` // overrides the built-in persona when set

	// Token pricing, USD per million tokens. Used only for the cost
	// line in status reports; zero disables it.
	InputTokenPrice  float64 `mapstructure:"input_token_price"`
	OutputTokenPrice float64 `mapstructure:"output_token_price"`

	// Upstream request throttling
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `mapstructure:"rate_burst"`

	// Session configuration
	Policy         string        `mapstructure:"policy"`
	ReportInterval time.Duration `mapstructure:"report_interval"`

	// Storage configuration
	DBPath string `mapstructure:"db_path"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".laoshi")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)
	bindEnvVariables(v)

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Pricing defaults (disabled until set)
	v.SetDefault("input_token_price", 0.0)
	v.SetDefault("output_token_price", 0.0)

	// Throttling defaults (disabled until set)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 1)

	// Session defaults
	v.SetDefault("policy", PolicyQueue)
	v.SetDefault("report_interval", time.Second)

	// Storage defaults
	v.SetDefault("db_path", filepath.Join(configDir, "laoshi.db"))

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// The Discord token is a secret and has no place in config.yaml;
// DISCORD_TOKEN is the canonical way to provide it.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("discord_token", "DISCORD_TOKEN")
	mustBind("entry_channel_id", "LAOSHI_ENTRY_CHANNEL_ID")

	// AI provider and model overrides
	mustBind("provider", "LAOSHI_PROVIDER")
	mustBind("model_name", "LAOSHI_MODEL_NAME")
	mustBind("ollama_host", "LAOSHI_OLLAMA_HOST")

	// Session overrides
	mustBind("policy", "LAOSHI_POLICY")

	// Storage override
	mustBind("db_path", "LAOSHI_DB_PATH")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// NOTE: OPENAI_API_KEY is read directly by Genkit's OpenAI plugin
	// Validation checks their presence based on the selected provider in cfg.Validate()
}
