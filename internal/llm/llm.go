// Package llm is the LLM Adapter: a uniform interface over Anthropic
// (primary) and OpenAI (fallback) chat completion APIs, used by the
// Analysis and Curation stages to turn transcripts into scored clips and
// a curated selection, and by Digest Assembly to write narrator scripts.
package llm

import (
	"context"
)

// Client completes a single prompt and returns raw text. Callers that
// need structured output parse it themselves via ExtractJSON, since every
// provider occasionally wraps JSON in a code fence despite being asked not
// to.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the configured primary client, falling back to OpenAI if
// configured and the primary is Anthropic.
func New(provider, model, anthropicKey, openaiKey string, fallbackToOpenAI bool) (Client, error) {
	var primary Client
	var err error

	switch provider {
	case "openai":
		primary, err = NewOpenAIClient(openaiKey, model)
	default:
		primary, err = NewAnthropicClient(anthropicKey, model)
	}
	if err != nil {
		return nil, err
	}

	if provider != "openai" && fallbackToOpenAI && openaiKey != "" {
		fallback, ferr := NewOpenAIClient(openaiKey, "")
		if ferr == nil {
			return &failoverClient{primary: primary, fallback: fallback}, nil
		}
	}
	return primary, nil
}

// failoverClient tries primary first and falls back to a secondary
// provider whenever primary returns an error.
type failoverClient struct {
	primary  Client
	fallback Client
}

func (f *failoverClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := f.primary.Complete(ctx, systemPrompt, userPrompt)
	if err == nil {
		return out, nil
	}
	return f.fallback.Complete(ctx, systemPrompt, userPrompt)
}
