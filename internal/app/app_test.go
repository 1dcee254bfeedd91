package app

import (
	"testing"

	"github.com/laoshi-bot/laoshi/internal/config"
	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

func TestQualifiedModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{config.ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{config.ProviderGoogleAI, "gemini-2.5-pro", "googleai/gemini-2.5-pro"},
		{config.ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{config.ProviderOllama, "llama3.3", "ollama/llama3.3"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.Config{Provider: tt.provider, ModelName: tt.model}
			if got := qualifiedModelName(cfg); got != tt.want {
				t.Errorf("qualifiedModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProvidePolicy(t *testing.T) {
	if got := providePolicy(&config.Config{Policy: config.PolicyPreempt}); got != session.PolicyPreempt {
		t.Errorf("providePolicy(preempt) = %v", got)
	}
	if got := providePolicy(&config.Config{Policy: config.PolicyQueue}); got != session.PolicyQueue {
		t.Errorf("providePolicy(queue) = %v", got)
	}
}

// Close must tolerate a partially constructed App; Setup relies on this
// for its error path.
func TestClosePartialApp(t *testing.T) {
	a := &App{Logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on empty app = %v", err)
	}
}
