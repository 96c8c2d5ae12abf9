// Package answer asks the model to explain a query result to the user.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
)

var ErrEmptyAnswer = errors.New("model returned an empty answer")

type Synthesizer struct {
	Client llm.Client
	Model  string
}

func NewSynthesizer(client llm.Client, model string) *Synthesizer {
	return &Synthesizer{Client: client, Model: model}
}

// BuildPrompt renders the answer prompt. resultText is embedded as-is, including
// database error text, so the model can explain failures.
func BuildPrompt(question, sql, resultText string) string {
	return fmt.Sprintf(`The user asked: "%s"

The SQL query executed was: "%s"

The database result is:
%s

Analyze the result and provide a clear, concise, natural language answer to the user's original question.
If the result is a Database Error or shows 'No data found.', inform the user politely.`, question, sql, resultText)
}

// Synthesize returns the model's answer and the prompt that produced it.
func (s *Synthesizer) Synthesize(ctx context.Context, question, sql, resultText string) (string, string, error) {
	prompt := BuildPrompt(question, sql, resultText)
	if s.Client == nil {
		return "", prompt, fmt.Errorf("llm client is not configured")
	}
	text, err := s.Client.Complete(ctx, llm.Request{Model: s.Model, Prompt: prompt})
	if err != nil {
		return "", prompt, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", prompt, ErrEmptyAnswer
	}
	return text, prompt, nil
}
