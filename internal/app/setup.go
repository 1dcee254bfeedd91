package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"golang.org/x/time/rate"

	"github.com/laoshi-bot/laoshi/internal/agent"
	"github.com/laoshi-bot/laoshi/internal/config"
	"github.com/laoshi-bot/laoshi/internal/gateway"
	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
	"github.com/laoshi-bot/laoshi/internal/store"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// The store opens first: conversation history and ownership must be
	// durable before the bot accepts a single message.
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.Store = st

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	runner, err := provideAgent(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Agent = runner

	ctrl, err := session.New(session.Config{
		Runner:         runner,
		History:        st,
		Owners:         st,
		Logger:         logger,
		Policy:         providePolicy(cfg),
		ReportInterval: cfg.ReportInterval,
		BackgroundCtx:  ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session controller: %w", err)
	}
	a.Controller = ctrl

	gw, err := gateway.New(gateway.Config{
		Token:          cfg.DiscordToken,
		EntryChannelID: cfg.EntryChannelID,
		Controller:     ctrl,
		Owners:         st,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gateway: %w", err)
	}
	a.Gateway = gw

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	promptDir := cfg.PromptDir
	if promptDir == "" {
		promptDir = "prompts"
	}

	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx,
			genkit.WithPlugins(ollamaPlugin),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx,
			genkit.WithPlugins(&openai.OpenAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini" / "googleai"
		g = genkit.Init(ctx,
			genkit.WithPlugins(&googlegenai.GoogleAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideAgent builds the generation runner, including the optional
// upstream rate limiter.
func provideAgent(g *genkit.Genkit, cfg *config.Config, logger log.Logger) (*agent.Agent, error) {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	a, err := agent.New(agent.Config{
		Genkit:           g,
		Logger:           logger,
		ModelName:        qualifiedModelName(cfg),
		SystemPrompt:     cfg.SystemPrompt,
		InputTokenPrice:  cfg.InputTokenPrice,
		OutputTokenPrice: cfg.OutputTokenPrice,
		RateLimiter:      limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return a, nil
}

// qualifiedModelName maps the configured provider to the prefix its
// Genkit plugin registers models under.
func qualifiedModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	case config.ProviderOpenAI:
		return "openai/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}

func providePolicy(cfg *config.Config) session.Policy {
	if cfg.Policy == config.PolicyPreempt {
		return session.PolicyPreempt
	}
	return session.PolicyQueue
}
