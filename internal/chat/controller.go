// Package chat drives one question through schema lookup, SQL generation,
// execution and answer synthesis, and keeps the session transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

type SQLGenerator interface {
	Generate(ctx context.Context, question, schemaText string) (nl2sql.Result, error)
}

type QueryRunner interface {
	Execute(ctx context.Context, sql string) query.Outcome
}

type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question, sql, resultText string) (string, string, error)
}

// Archiver stores the transcript of a session that is ending.
type Archiver interface {
	Archive(ctx context.Context, transcript Transcript) error
}

type Dependencies struct {
	Schema      schema.Fetcher
	Generator   SQLGenerator
	Executor    QueryRunner
	Synthesizer AnswerSynthesizer
	Archiver    Archiver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Turn outcome labels.
const (
	OutcomeAnswered          = "answered"
	OutcomeAnsweredQueryErr  = "answered_query_error"
	OutcomeSchemaUnavailable = "schema_unavailable"
	OutcomeGenerationFailed  = "generation_failed"
	OutcomeSynthesisFailed   = "synthesis_failed"
)

type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Turn records one question and how the pipeline handled it. Err keeps the
// structural failure kind; Reply is what the user sees either way.
type Turn struct {
	Question        string
	SQL             string
	Outcome         *query.Outcome
	SynthesisPrompt string
	Reply           string
	Result          string
	Err             error
	Stages          []StageTiming
	StartedAt       time.Time
}

// Controller serializes turns over a single active session.
type Controller struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time

	turnMu  sync.Mutex
	mu      sync.RWMutex
	session *Session
	closed  bool
}

func NewController(deps Dependencies) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	c := &Controller{deps: deps, logger: logger, now: now}
	c.session = newSession(deps.Schema, now())
	observability.SessionOpened()
	return c
}

func (c *Controller) current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Session returns a snapshot of the active session.
func (c *Controller) Session() Snapshot {
	return c.current().snapshot()
}

// Schema returns the session's schema description, fetching it on first use.
func (c *Controller) Schema(ctx context.Context) schema.Description {
	session := c.current()
	ctx = observability.ContextWithSessionID(ctx, session.ID.String())
	return session.schema.Fetch(ctx)
}

// Ask runs one turn. Pipeline failures never return an error: they become the
// assistant reply and Turn.Err. The error result is reserved for an empty
// question or a closed controller.
func (c *Controller) Ask(ctx context.Context, question string) (Turn, error) {
	if strings.TrimSpace(question) == "" {
		return Turn{}, ErrEmptyQuestion
	}
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.RLock()
	session, closed := c.session, c.closed
	c.mu.RUnlock()
	if closed {
		return Turn{}, ErrClosed
	}

	ctx = observability.ContextWithSessionID(ctx, session.ID.String())
	turn := Turn{Question: question, StartedAt: c.now()}
	session.append(RoleUser, question, turn.StartedAt)

	outcome := c.run(ctx, session, &turn)

	session.append(RoleAssistant, turn.Reply, c.now())
	session.finishTurn()
	observability.ObserveTurn(outcome)

	attrs := append(observability.ContextAttrs(ctx),
		slog.String("outcome", outcome),
		slog.String("sql", turn.SQL),
	)
	for _, stage := range turn.Stages {
		attrs = append(attrs, slog.String(stage.Stage+"_duration", stage.Duration.String()))
	}
	if turn.Err != nil {
		c.logger.WarnContext(ctx, "chat turn degraded", append(attrs, slog.String("error", observability.Mask(turn.Err.Error())))...)
	} else {
		c.logger.InfoContext(ctx, "chat turn answered", attrs...)
	}
	return turn, nil
}

func (c *Controller) run(ctx context.Context, session *Session, turn *Turn) string {
	start := time.Now()
	description := session.schema.Fetch(ctx)
	turn.Stages = append(turn.Stages, StageTiming{Stage: "schema", Duration: time.Since(start)})
	if !description.Available() {
		turn.Err = fmt.Errorf("%w: %w", ErrSchemaUnavailable, description.Err)
		turn.Reply = "Sorry, I can't connect to the database to retrieve the schema. Error: " + description.Text
		return OutcomeSchemaUnavailable
	}

	session.setState(StateAwaitingSQL)
	start = time.Now()
	generated, err := c.deps.Generator.Generate(ctx, turn.Question, description.Text)
	elapsed := time.Since(start)
	turn.Stages = append(turn.Stages, StageTiming{Stage: "generate", Duration: elapsed})
	observability.ObserveStage("generate", elapsed, err)
	if err != nil {
		turn.Err = fmt.Errorf("%w: %w", ErrGeneration, err)
		turn.Reply = "Error generating SQL: " + err.Error()
		return OutcomeGenerationFailed
	}
	turn.SQL = generated.SQL

	session.setState(StateAwaitingQueryResult)
	outcome := c.deps.Executor.Execute(ctx, turn.SQL)
	turn.Outcome = &outcome
	turn.Result = outcome.Text()
	turn.Stages = append(turn.Stages, StageTiming{Stage: "execute", Duration: outcome.Duration})
	var queryErr error
	if outcome.Err != nil {
		queryErr = fmt.Errorf("%w: %w", ErrQuery, outcome.Err)
	}

	session.setState(StateAwaitingAnswer)
	start = time.Now()
	reply, prompt, err := c.deps.Synthesizer.Synthesize(ctx, turn.Question, turn.SQL, turn.Result)
	elapsed = time.Since(start)
	turn.SynthesisPrompt = prompt
	turn.Stages = append(turn.Stages, StageTiming{Stage: "answer", Duration: elapsed})
	observability.ObserveStage("answer", elapsed, err)
	if err != nil {
		turn.Err = errors.Join(queryErr, fmt.Errorf("%w: %w", ErrGeneration, err))
		turn.Reply = "Error generating final answer: " + err.Error()
		return OutcomeSynthesisFailed
	}
	turn.Reply = reply
	turn.Err = queryErr
	if queryErr != nil {
		return OutcomeAnsweredQueryErr
	}
	return OutcomeAnswered
}

// Reset ends the active session and starts a new one with a fresh greeting
// and a fresh schema cache. The ending session is archived first when an
// archiver is configured; an archive failure does not block the reset.
func (c *Controller) Reset(ctx context.Context) (Snapshot, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	ending := c.session
	c.session = newSession(c.deps.Schema, c.now())
	next := c.session
	c.mu.Unlock()

	archiveErr := c.archive(ctx, ending)
	observability.SessionClosed()
	observability.SessionOpened()
	c.logger.InfoContext(ctx, "chat session reset",
		slog.String("previous_session_id", ending.ID.String()),
		slog.String("session_id", next.ID.String()),
	)
	return next.snapshot(), archiveErr
}

// Close archives the active session. Later turns fail with ErrClosed.
func (c *Controller) Close(ctx context.Context) error {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	session := c.session
	c.mu.Unlock()

	observability.SessionClosed()
	return c.archive(ctx, session)
}

func (c *Controller) archive(ctx context.Context, session *Session) error {
	if c.deps.Archiver == nil {
		return nil
	}
	snap := session.snapshot()
	if snap.Turns == 0 {
		return nil
	}
	err := c.deps.Archiver.Archive(ctx, Transcript{
		SessionID: snap.ID,
		StartedAt: snap.StartedAt,
		EndedAt:   c.now(),
		Messages:  snap.Messages,
	})
	observability.ObserveArchiveUpload(err)
	if err != nil {
		c.logger.WarnContext(ctx, "archive session failed",
			slog.String("session_id", snap.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("archive session %s: %w", snap.ID, err)
	}
	return nil
}
