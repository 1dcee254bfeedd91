// Package agent adapts the Genkit runtime to the session controller's
// Runner contract. It owns the serialized history format (JSON-encoded
// Genkit messages); everything outside this package treats history logs
// as opaque bytes.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

// DefaultSystemPrompt is the bot's tutoring persona, used when no
// system_prompt is configured.
const DefaultSystemPrompt = `You are an expert Chinese teacher.

Your responses should primarily be in English, as the learners are not yet fluent; only practice content should be in Chinese.

You are operating as a Discord bot; your messages should fit that context in tone. Respond in a polite and extremely concise tone. Do not add extra sentences deviating from the user's question, and do not include follow-up suggestions.

Politely steer the conversation back to Chinese if the user deviates.`

// noTextPlaceholder stands in for a message that carried attachments but
// no text.
const noTextPlaceholder = "[No text provided by user]"

// Config contains all required parameters for the Agent.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger

	// ModelName is the provider-qualified model (e.g.
	// "googleai/gemini-2.5-flash").
	ModelName string

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// InputTokenPrice / OutputTokenPrice are USD per one million tokens,
	// used for the running cost figure shown to the user.
	InputTokenPrice  float64
	OutputTokenPrice float64

	// RateLimiter throttles invocations across all conversations.
	// nil disables proactive rate limiting.
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Agent invokes the model for one turn at a time. Stateless across
// invocations; all conversation state arrives as the history argument.
type Agent struct {
	g            *genkit.Genkit
	logger       log.Logger
	modelName    string
	systemPrompt string
	inputPrice   float64
	outputPrice  float64
	limiter      *rate.Limiter
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Agent{
		g:            cfg.Genkit,
		logger:       cfg.Logger,
		modelName:    cfg.ModelName,
		systemPrompt: systemPrompt,
		inputPrice:   cfg.InputTokenPrice,
		outputPrice:  cfg.OutputTokenPrice,
		limiter:      cfg.RateLimiter,
	}, nil
}

// Run implements session.Runner. Completed output increments are
// forwarded through stream as generation progresses; the terminal Result
// carries the full updated history and the cost estimate.
//
// On generation failure the returned error is a *session.RunError whose
// partial history contains at least the user's turn, so the caller can
// persist it.
func (a *Agent) Run(ctx context.Context, history []byte, turn *session.Turn, stream func(context.Context, string) error) (*session.Result, error) {
	prior, err := unmarshalHistory(history)
	if err != nil {
		// The turn itself must still reach the log even when the stored
		// history is unreadable.
		decodeErr := fmt.Errorf("decoding history: %w", err)
		partial, mErr := marshalHistory([]*ai.Message{userMessage(turn)})
		if mErr != nil {
			a.logger.Warn("encoding partial history after decode failure", "error", mErr)
			return nil, decodeErr
		}
		return nil, &session.RunError{Partial: partial, Err: decodeErr}
	}
	messages := append(prior, userMessage(turn))

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	buf := &streamBuffer{send: stream}
	opts := []ai.GenerateOption{
		ai.WithSystem(a.systemPrompt),
		ai.WithMessages(messages...),
	}
	if a.modelName != "" {
		opts = append(opts, ai.WithModelName(a.modelName))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return buf.add(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, a.g, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		partial, mErr := marshalHistory(messages)
		if mErr != nil {
			a.logger.Warn("encoding partial history after failure", "error", mErr)
			return nil, err
		}
		return nil, &session.RunError{Partial: partial, Err: err}
	}

	if stream != nil {
		if buf.unused() {
			// The provider did not stream; deliver the final text whole.
			if text := resp.Text(); text != "" {
				if err := stream(ctx, text); err != nil {
					return nil, err
				}
			}
		} else if err := buf.close(ctx); err != nil {
			return nil, err
		}
	}

	full, err := marshalHistory(append(messages, resp.Message))
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}
	return &session.Result{
		History: full,
		Cost:    a.cost(resp.Usage),
	}, nil
}

// cost estimates the invocation cost in USD from token usage.
func (a *Agent) cost(usage *ai.GenerationUsage) float64 {
	if usage == nil {
		return 0
	}
	return float64(usage.InputTokens)*a.inputPrice/1e6 +
		float64(usage.OutputTokens)*a.outputPrice/1e6
}

// userMessage builds the turn's Genkit message: text first (placeholder
// when absent), then one media part per inlined attachment.
func userMessage(turn *session.Turn) *ai.Message {
	parts := make([]*ai.Part, 0, len(turn.Parts))
	hasText := false
	for _, p := range turn.Parts {
		if p.Text != "" {
			parts = append(parts, ai.NewTextPart(p.Text))
			hasText = true
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(p.Data)
		parts = append(parts, ai.NewMediaPart(p.MediaType, "data:"+p.MediaType+";base64,"+encoded))
	}
	if !hasText {
		parts = append([]*ai.Part{ai.NewTextPart(noTextPlaceholder)}, parts...)
	}
	return ai.NewUserMessage(parts...)
}

func marshalHistory(messages []*ai.Message) ([]byte, error) {
	return json.Marshal(messages)
}

func unmarshalHistory(raw []byte) ([]*ai.Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var messages []*ai.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
