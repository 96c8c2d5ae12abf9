package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/askdb/askdb/internal/app"
	"github.com/askdb/askdb/internal/cli/askdb"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := askdb.Run(ctx, os.Args[1:], askdb.Options{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdout.Fd())),
		Build:       build,
		OpenKeyring: secrets.OpenKeyring,
	})
	stop()
	os.Exit(code)
}

// build resolves configuration and wires the runtime. Logs go to the file named
// by ASKDB_LOG_FILE, or to stderr when ASKDB_LOG_LEVEL is set explicitly, and
// are otherwise dropped so they do not interleave with the chat.
func build(ctx context.Context) (askdb.Runtime, error) {
	cfg, _, err := app.LoadConfig("askdb", os.LookupEnv)
	if err != nil {
		return askdb.Runtime{}, errors.New(app.FatalMessage(err))
	}
	logger := observability.NewLogger(cfg, logWriter())
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return askdb.Runtime{}, err
	}
	runtime := askdb.Runtime{Chat: rt.Chat, Close: rt.Close}
	if rt.Archive != nil {
		runtime.History = rt.Archive
	}
	return runtime, nil
}

func logWriter() io.Writer {
	if path, ok := os.LookupEnv("ASKDB_LOG_FILE"); ok && path != "" {
		if file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			return file
		}
	}
	if _, ok := os.LookupEnv("ASKDB_LOG_LEVEL"); ok {
		return os.Stderr
	}
	return io.Discard
}
