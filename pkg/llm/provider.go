package llm

import (
	"context"
	"fmt"

	"github.com/ebarros/kestrel/internal/config"
)

// Request contains the parameters for one inference call
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response contains the text returned by the backend
type Response struct {
	Content string
}

// Provider is an interface for text-generation backends
type Provider interface {
	// Complete performs one inference call
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// NewProvider creates a provider from the LLM configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllamaProvider(cfg.Host, cfg.Model)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm backend: %s", cfg.Backend)
	}
}
