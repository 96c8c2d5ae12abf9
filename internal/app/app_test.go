package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/config"
)

func TestLoadConfigReadsDotEnvThroughSecretChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	dotenv := "ASKDB_AI_API_KEY=dotenv-key\nASKDB_DB_DRIVER=sqlite\nASKDB_DB_NAME=" + filepath.Join(dir, "shop.db") + "\n"
	if err := os.WriteFile(path, []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	cfg, chain, err := LoadConfig("askdb", lookup(map[string]string{"ASKDB_ENV_FILE": path}))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.AI.APIKey == "" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if sources := chain.Sources(); len(sources) < 2 || sources[0] != "env" || sources[1] != "dotenv" {
		t.Fatalf("Sources() = %#v", sources)
	}
}

func TestFatalMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: config.ErrMissingAPIKey, want: "No AI API key configured"},
		{err: fmt.Errorf("load: %w", config.ErrInvalidAPIKey), want: "API key is invalid"},
		{err: errors.New("invalid ASKDB_DB_PORT"), want: "Failed to load configuration: invalid ASKDB_DB_PORT"},
	}
	for _, tt := range tests {
		if got := FatalMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Fatalf("FatalMessage(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}

func TestBuildWiresSQLiteRuntime(t *testing.T) {
	cfg, err := config.Load("askdb", lookup(map[string]string{
		"ASKDB_AI_API_KEY": "test-key",
		"ASKDB_DB_DRIVER":  "sqlite",
		"ASKDB_DB_NAME":    filepath.Join(t.TempDir(), "shop.db"),
	}))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	rt, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if rt.LLM.Provider() != "gemini" || rt.Archive != nil {
		t.Fatalf("runtime = %+v", rt)
	}
	snap := rt.Chat.Session()
	if len(snap.Messages) != 1 || snap.Messages[0].Content != chat.Greeting {
		t.Fatalf("session = %+v", snap)
	}

	description := rt.Chat.Schema(context.Background())
	if !description.Available() {
		t.Fatalf("schema unavailable: %v", description.Err)
	}

	if err := rt.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := rt.Chat.Ask(context.Background(), "hello"); !errors.Is(err, chat.ErrClosed) {
		t.Fatalf("Ask() after Close error = %v", err)
	}
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func lookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
