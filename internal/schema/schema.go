// Package schema reads the database catalog and renders it as the plain-text
// description handed to the SQL generator.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

// UnavailableMarker prefixes the description text when the catalog could not be read.
const UnavailableMarker = "Schema unavailable"

// Description is the rendered schema. Err is set when the catalog read failed,
// in which case Text carries the error marker instead of tables.
type Description struct {
	Text      string
	Tables    int
	Err       error
	FetchedAt time.Time
}

func (d Description) Available() bool {
	return d.Err == nil
}

// Unavailable builds the error-flagged description for err.
func Unavailable(err error) Description {
	return Description{
		Text: fmt.Sprintf("%s due to database error: %v", UnavailableMarker, err),
		Err:  err,
	}
}

// Fetcher produces a schema description.
type Fetcher interface {
	Fetch(ctx context.Context) Description
}

type Column struct {
	Table    string `db:"table_name"`
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
}

const informationSchemaQuery = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = ?
ORDER BY table_name, ordinal_position`

const sqliteCatalogQuery = `SELECT m.name AS table_name, p.name AS column_name, p.type AS data_type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

// Introspector reads the catalog of the configured default schema.
type Introspector struct {
	DB     *database.DB
	Logger *slog.Logger
}

func NewIntrospector(db *database.DB, logger *slog.Logger) *Introspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{DB: db, Logger: logger}
}

func (i *Introspector) Fetch(ctx context.Context) Description {
	start := time.Now()
	description, err := i.fetch(ctx)
	observability.ObserveSchemaFetch(err)
	observability.ObserveStage("schema", time.Since(start), err)
	if err != nil {
		i.Logger.WarnContext(ctx, "schema fetch failed", append(observability.ContextAttrs(ctx),
			slog.String("error", observability.Mask(err.Error())))...)
		return Unavailable(err)
	}
	i.Logger.DebugContext(ctx, "schema fetched", append(observability.ContextAttrs(ctx),
		slog.Int("tables", description.Tables),
		slog.String("duration", time.Since(start).String()))...)
	return description
}

func (i *Introspector) fetch(ctx context.Context) (Description, error) {
	if i.DB == nil {
		return Description{}, fmt.Errorf("database is not configured")
	}
	xdb := sqlx.NewDb(i.DB.DB, i.DB.Driver.SQLDriver)
	conn, err := xdb.Connx(ctx)
	if err != nil {
		return Description{}, fmt.Errorf("connect to %s: %w", i.DB.Driver.DisplayName, err)
	}
	defer func() { _ = conn.Close() }()

	var columns []Column
	switch i.DB.Driver.Name {
	case "sqlite":
		err = conn.SelectContext(ctx, &columns, sqliteCatalogQuery)
	default:
		err = conn.SelectContext(ctx, &columns, xdb.Rebind(informationSchemaQuery), i.DB.Schema)
	}
	if err != nil {
		return Description{}, fmt.Errorf("read catalog: %w", err)
	}
	text, tables := Render(columns)
	return Description{Text: text, Tables: tables, FetchedAt: time.Now().UTC()}, nil
}

// Render groups catalog rows by table, preserving their order, and returns the
// description text and the number of tables.
func Render(columns []Column) (string, int) {
	order := make([]string, 0)
	grouped := map[string][]string{}
	for _, col := range columns {
		if _, seen := grouped[col.Table]; !seen {
			order = append(order, col.Table)
		}
		grouped[col.Table] = append(grouped[col.Table], fmt.Sprintf("%s (%s)", col.Name, col.DataType))
	}
	blocks := make([]string, 0, len(order))
	for _, table := range order {
		blocks = append(blocks, fmt.Sprintf("Table: %s\nColumns: %s", table, strings.Join(grouped[table], ", ")))
	}
	return strings.Join(blocks, "\n\n"), len(order)
}

// Cache memoizes the first description for the lifetime of a session. A failed
// fetch is memoized as well; a new session starts with a new Cache. Peek never
// waits for a fetch in flight.
type Cache struct {
	fetcher Fetcher

	fetchMu sync.Mutex

	mu     sync.Mutex
	loaded bool
	value  Description
}

func NewCache(fetcher Fetcher) *Cache {
	return &Cache{fetcher: fetcher}
}

func (c *Cache) Fetch(ctx context.Context) Description {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	if value, ok := c.Peek(); ok {
		return value
	}
	value := c.fetcher.Fetch(ctx)

	c.mu.Lock()
	c.value, c.loaded = value, true
	c.mu.Unlock()
	return value
}

// Peek returns the cached description without fetching. It reports false while
// the first fetch is still running.
func (c *Cache) Peek() (Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.loaded
}
