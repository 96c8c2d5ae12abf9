// Package askdb is the terminal front end: an interactive chat loop plus
// one-shot commands for scripting.
package askdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/secrets"
	"github.com/askdb/askdb/internal/storage"
)

// ChatService is satisfied by *chat.Controller.
type ChatService interface {
	Ask(ctx context.Context, question string) (chat.Turn, error)
	Session() chat.Snapshot
	Schema(ctx context.Context) schema.Description
	Reset(ctx context.Context) (chat.Snapshot, error)
}

// History is satisfied by *archive.Archiver.
type History interface {
	List(ctx context.Context) ([]storage.ObjectInfo, error)
	Load(ctx context.Context, key string) (chat.Transcript, error)
}

// Runtime is what a command needs once configuration resolved. History is nil
// when archiving is disabled.
type Runtime struct {
	Chat    ChatService
	History History
	Close   func(ctx context.Context) error
}

type Options struct {
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	Interactive bool
	Build       func(ctx context.Context) (Runtime, error)
	OpenKeyring func() (secrets.Keyring, error)
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

// Run executes one command line and returns the process exit code: 0 on
// success, 1 on failure, 2 on usage errors.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdin == nil {
		opts.Stdin = strings.NewReader("")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if !opts.Interactive {
		pterm.DisableStyling()
	}

	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(opts.Stderr, pterm.Error.Sprint(err.Error()))
	var usage usageError
	if errors.As(err, &usage) {
		_, _ = fmt.Fprintln(opts.Stderr, root.UsageString())
		return 2
	}
	return 1
}

func newRootCommand(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "askdb",
		Short:         "Ask questions about a SQL database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.AddCommand(
		newChatCommand(opts),
		newAskCommand(opts),
		newSchemaCommand(opts),
		newSecretCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

func argsExactly(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{err: fmt.Errorf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))}
		}
		return nil
	}
}

func argsAtLeast(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageError{err: fmt.Errorf("%s expects at least %d argument(s)", cmd.CommandPath(), n)}
		}
		return nil
	}
}

// withRuntime builds the runtime, runs fn and closes the runtime, which
// archives the session when archiving is enabled.
func withRuntime(cmd *cobra.Command, opts Options, fn func(rt Runtime) error) error {
	if opts.Build == nil {
		return errors.New("runtime builder is not configured")
	}
	rt, err := opts.Build(cmd.Context())
	if err != nil {
		return err
	}
	runErr := fn(rt)
	if rt.Close != nil {
		if err := rt.Close(context.WithoutCancel(cmd.Context())); err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), pterm.Warning.Sprint("closing session: "+err.Error()))
		}
	}
	return runErr
}

func newChatCommand(opts Options) *cobra.Command {
	var showSQL bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(rt Runtime) error {
				return chatLoop(cmd.Context(), rt, newRenderer(cmd.OutOrStdout(), opts.Interactive, showSQL), cmd.InOrStdin())
			})
		},
	}
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the generated SQL and raw result after each answer")
	return cmd
}

func chatLoop(ctx context.Context, rt Runtime, out *renderer, in io.Reader) error {
	out.banner()
	for _, message := range rt.Chat.Session().Messages {
		out.message(message)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		out.prompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/schema":
			out.schema(rt.Chat.Schema(ctx))
			continue
		case "/reset":
			snapshot, err := rt.Chat.Reset(ctx)
			if errors.Is(err, chat.ErrClosed) {
				return err
			}
			if err != nil {
				out.warn(err.Error())
			}
			out.info("Started a new session.")
			for _, message := range snapshot.Messages {
				out.message(message)
			}
			continue
		case "/help":
			out.info("Commands: /schema shows the database schema, /reset starts over, /quit leaves.")
			continue
		}

		turn, err := rt.Chat.Ask(ctx, line)
		if err != nil {
			return err
		}
		out.turn(turn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func newAskCommand(opts Options) *cobra.Command {
	var showSQL bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  argsAtLeast(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withRuntime(cmd, opts, func(rt Runtime) error {
				turn, err := rt.Chat.Ask(cmd.Context(), question)
				if err != nil {
					return err
				}
				newRenderer(cmd.OutOrStdout(), opts.Interactive, showSQL).turn(turn)
				if errors.Is(turn.Err, chat.ErrSchemaUnavailable) || errors.Is(turn.Err, chat.ErrGeneration) {
					return turn.Err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the generated SQL and raw result")
	return cmd
}

func newSchemaCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema description the model sees",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(rt Runtime) error {
				description := rt.Chat.Schema(cmd.Context())
				newRenderer(cmd.OutOrStdout(), opts.Interactive, false).schema(description)
				if !description.Available() {
					return description.Err
				}
				return nil
			})
		},
	}
}

func newSecretCommand(opts Options) *cobra.Command {
	secret := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the OS keyring",
	}
	secret.AddCommand(&cobra.Command{
		Use:   "set <KEY>",
		Short: "Store a secret read from stdin, e.g. ASKDB_AI_API_KEY",
		Args:  argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			open := opts.OpenKeyring
			if open == nil {
				open = secrets.OpenKeyring
			}
			ring, err := open()
			if err != nil {
				return err
			}
			value, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := secrets.Store(ring, args[0], value); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("stored %s in the %s keyring", args[0], secrets.ServiceName))
			return nil
		},
	})
	return secret
}

func readSecret(in io.Reader) (string, error) {
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", errors.New("secret value is empty; pipe it on stdin")
	}
	return value, nil
}

func newHistoryCommand(opts Options) *cobra.Command {
	history := &cobra.Command{
		Use:   "history",
		Short: "Browse archived chat sessions",
	}
	history.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, opts, func(h History) error {
				objects, err := h.List(cmd.Context())
				if err != nil {
					return err
				}
				return newRenderer(cmd.OutOrStdout(), opts.Interactive, false).objects(objects)
			})
		},
	})
	history.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Print one archived session",
		Args:  argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(h History) error {
				transcript, err := h.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				newRenderer(cmd.OutOrStdout(), opts.Interactive, false).transcript(transcript)
				return nil
			})
		},
	})
	return history
}

func withHistory(cmd *cobra.Command, opts Options, fn func(History) error) error {
	return withRuntime(cmd, opts, func(rt Runtime) error {
		if rt.History == nil {
			return errors.New("session archive is not enabled; set ASKDB_ARCHIVE_ENABLED=true")
		}
		return fn(rt.History)
	})
}
