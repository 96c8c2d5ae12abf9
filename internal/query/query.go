// Package query runs generated SQL exactly as the model produced it and turns
// the outcome into the text handed back to the model.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

// NoDataText is the result text for statements that return no rows.
const NoDataText = "No data found."

// Outcome is the result of one execution. Err is set when the statement failed;
// Columns and Rows are then empty.
type Outcome struct {
	SQL      string
	Columns  []string
	Rows     [][]any
	Err      error
	Duration time.Duration
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Text renders the outcome in the single textual channel the answer prompt
// consumes: rows, the no-data marker or the database error.
func (o Outcome) Text() string {
	if o.Err != nil {
		return "Database Error: " + o.Err.Error()
	}
	if len(o.Rows) == 0 {
		return NoDataText
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range o.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('{')
		for j, column := range o.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(encodeValue(column))
			b.WriteString(": ")
			var value any
			if j < len(row) {
				value = row[j]
			}
			b.WriteString(encodeValue(value))
		}
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}

// encodeValue renders one key or value as JSON without HTML escaping, so
// `&`, `<` and `>` reach the prompt as written.
func encodeValue(value any) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		buf.Reset()
		_ = encoder.Encode(fmt.Sprint(value))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Executor runs statements on a dedicated connection per call. No statement
// type is rejected.
type Executor struct {
	DB      *database.DB
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewExecutor(db *database.DB, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{DB: db, Timeout: timeout, Logger: logger}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) Outcome {
	start := time.Now()
	outcome := e.execute(ctx, sqlText)
	outcome.SQL = sqlText
	outcome.Duration = time.Since(start)
	observability.ObserveStage("execute", outcome.Duration, outcome.Err)

	attrs := append(observability.ContextAttrs(ctx),
		slog.String("sql", sqlText),
		slog.Int("rows", len(outcome.Rows)),
		slog.String("duration", outcome.Duration.String()),
	)
	if outcome.Err != nil {
		e.Logger.WarnContext(ctx, "query failed", append(attrs, slog.String("error", observability.Mask(outcome.Err.Error())))...)
	} else {
		e.Logger.DebugContext(ctx, "query executed", attrs...)
	}
	return outcome
}

func (e *Executor) execute(ctx context.Context, sqlText string) Outcome {
	if e.DB == nil {
		return Outcome{Err: fmt.Errorf("database is not configured")}
	}
	if strings.TrimSpace(sqlText) == "" {
		return Outcome{Err: fmt.Errorf("sql is required")}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return Outcome{Err: err}
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return Outcome{Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Outcome{Err: err}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Outcome{Err: err}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Columns: columns, Rows: resultRows}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.Format(time.RFC3339Nano)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
