package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"sifter/internal/errs"
)

const defaultOpenAIModel = openai.ChatModelGPT4o

// OpenAIClient completes prompts via the Chat Completions API. It serves
// both as the configured fallback behind Anthropic and as the primary
// provider when config.LLMProvider is "openai".
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errs.InvariantViolation("openai api key not configured")
	}
	if model == "" {
		model = string(defaultOpenAIModel)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: client, model: model}, nil
}

func (o *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.InvariantViolation("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return errs.HTTPStatus("openai request failed", err)
		}
		return errs.InvariantViolation("openai rejected request: " + apiErr.Error())
	}
	return errs.Transport("openai request failed", err)
}
