package config

import (
	"fmt"
	"os"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Discord validation (the bot cannot start without either)
	if c.DiscordToken == "" {
		return fmt.Errorf("%w: set the DISCORD_TOKEN environment variable", ErrMissingToken)
	}

	if c.EntryChannelID == 0 {
		return fmt.Errorf("%w: entry_channel_id must be a Discord channel snowflake", ErrInvalidEntryChannel)
	}

	// 2. Provider validation, including the API key the provider needs
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: gemini, googleai, openai, ollama",
			ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// 3. Session validation
	if c.Policy != PolicyQueue && c.Policy != PolicyPreempt {
		return fmt.Errorf("%w: %q is not supported, must be %q or %q",
			ErrInvalidPolicy, c.Policy, PolicyQueue, PolicyPreempt)
	}

	// Interval range: 100ms (Discord rate limits below that) to 1m (useless above)
	if c.ReportInterval < 100*time.Millisecond || c.ReportInterval > time.Minute {
		return fmt.Errorf("%w: must be between 100ms and 1m, got %s", ErrInvalidInterval, c.ReportInterval)
	}

	// 4. Pricing and throttling validation
	if c.InputTokenPrice < 0 || c.OutputTokenPrice < 0 {
		return fmt.Errorf("%w: token prices cannot be negative", ErrInvalidPrice)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit cannot be negative, got %.2f", ErrInvalidRate, c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be at least 1 when rate_limit is set, got %d",
			ErrInvalidRate, c.RateBurst)
	}

	// 5. Storage validation
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path cannot be empty", ErrInvalidDBPath)
	}

	return nil
}
