// Package app wires configuration into a running chat controller. Both the
// HTTP server and the terminal client start through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/askdb/askdb/internal/answer"
	"github.com/askdb/askdb/internal/archive"
	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/secrets"
	s3store "github.com/askdb/askdb/internal/storage/s3"
)

// LoadConfig resolves secrets through the configured store chain and loads the
// service configuration from it. env locates the secret stores themselves.
func LoadConfig(serviceName string, env config.LookupFunc) (config.Config, *secrets.Chain, error) {
	chain, err := secrets.DefaultChain(secrets.OptionsFromEnv(env))
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(serviceName, chain.LookupFunc())
	if err != nil {
		return config.Config{}, chain, err
	}
	return cfg, chain, nil
}

// FatalMessage renders startup configuration errors for a human.
func FatalMessage(err error) string {
	switch {
	case errors.Is(err, config.ErrMissingAPIKey):
		return "No AI API key configured. Set ASKDB_AI_API_KEY in the environment, a .env file, the secrets file or the OS keyring (askdb secret set ASKDB_AI_API_KEY)."
	case errors.Is(err, config.ErrInvalidAPIKey):
		return "The configured AI API key is invalid: it must be non-empty and contain no whitespace."
	default:
		return "Failed to load configuration: " + err.Error()
	}
}

// Runtime holds the long-lived components of one process.
type Runtime struct {
	Config  config.Config
	DB      *database.DB
	LLM     llm.Client
	Chat    *chat.Controller
	Archive *archive.Archiver
	Logger  *slog.Logger
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := llm.New(cfg.AI)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	rt := &Runtime{Config: cfg, DB: db, LLM: client, Logger: logger}
	var archiver chat.Archiver
	if cfg.Archive.Enabled {
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init object store: %w", err)
		}
		rt.Archive = archive.New(store, cfg.Archive.Prefix, logger)
		archiver = rt.Archive
	}

	rt.Chat = chat.NewController(chat.Dependencies{
		Schema:      schema.NewIntrospector(db, logger),
		Generator:   nl2sql.NewGenerator(client, cfg.AI.Model, db.Driver.DisplayName),
		Executor:    query.NewExecutor(db, cfg.Database.QueryTimeout, logger),
		Synthesizer: answer.NewSynthesizer(client, cfg.AI.Model),
		Archiver:    archiver,
		Logger:      logger,
	})
	logger.Info("chat runtime ready",
		slog.String("db_driver", db.Driver.Name),
		slog.String("ai_provider", client.Provider()),
		slog.String("ai_model", client.DefaultModel()),
		slog.Bool("archive_enabled", cfg.Archive.Enabled),
	)
	return rt, nil
}

// Close archives the active session and releases the database.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Chat != nil {
		errs = append(errs, r.Chat.Close(ctx))
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}
