// Package llm is the request/response contract askdb uses to talk to hosted
// language models: one prompt in, one text completion out.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/config"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

type Request struct {
	Model  string
	Prompt string
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() string
	DefaultModel() string
}

// Default base URLs for providers reached through the OpenAI-compatible API.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	OpenAIBaseURL = "https://api.openai.com/v1/"
)

// New builds the client for cfg.Provider.
func New(cfg config.AIConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, config.ErrMissingAPIKey
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		baseURL := cfg.BaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = GeminiBaseURL
		}
		return NewOpenAIClient("gemini", baseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "openai":
		baseURL := cfg.BaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = OpenAIBaseURL
		}
		return NewOpenAIClient("openai", baseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func pickModel(requested, fallback string) string {
	if model := strings.TrimSpace(requested); model != "" {
		return model
	}
	return fallback
}
