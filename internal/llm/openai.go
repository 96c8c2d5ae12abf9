package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Gemini's compatibility layer.
type OpenAIClient struct {
	client   openai.Client
	provider string
	model    string
	timeout  time.Duration
}

func NewOpenAIClient(provider, baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if provider == "" {
		provider = "openai"
	}
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		provider: provider,
		model:    strings.TrimSpace(model),
		timeout:  timeout,
	}
}

func (c *OpenAIClient) Provider() string     { return c.provider }
func (c *OpenAIClient) DefaultModel() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	model := pickModel(req.Model, c.model)
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: %w", c.provider, ErrEmptyCompletion)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s chat completion: %w", c.provider, ErrEmptyCompletion)
	}
	return text, nil
}
