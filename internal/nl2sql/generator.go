// Package nl2sql turns a natural-language question into a single SQL statement
// by prompting a language model with the database schema.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/llm"
)

var ErrEmptySQL = errors.New("model returned empty SQL")

type Result struct {
	SQL      string `json:"sql"`
	Prompt   string `json:"-"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Generator asks the model for exactly one SQL statement. It never retries and
// does not validate the returned SQL.
type Generator struct {
	Client  llm.Client
	Model   string
	Dialect string
}

func NewGenerator(client llm.Client, model, dialect string) *Generator {
	if strings.TrimSpace(dialect) == "" {
		dialect = "PostgreSQL"
	}
	return &Generator{Client: client, Model: model, Dialect: dialect}
}

func (g *Generator) Generate(ctx context.Context, question, schema string) (Result, error) {
	if g.Client == nil {
		return Result{}, fmt.Errorf("llm client is not configured")
	}
	prompt := BuildPrompt(g.Dialect, schema, question)
	text, err := g.Client.Complete(ctx, llm.Request{Model: g.Model, Prompt: prompt})
	if err != nil {
		return Result{Prompt: prompt}, err
	}

	sql := stripMarkdownSQL(text)
	if sql == "" {
		return Result{Prompt: prompt}, ErrEmptySQL
	}
	model := g.Model
	if model == "" {
		model = g.Client.DefaultModel()
	}
	return Result{
		SQL:      sql,
		Prompt:   prompt,
		Provider: g.Client.Provider(),
		Model:    model,
	}, nil
}
