// Package database opens the relational database askdb talks to. Pooling is
// disabled: callers acquire a *sql.Conn per operation and release it when done,
// so every pipeline stage runs on a freshly established connection.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/askdb/askdb/internal/config"
)

// Driver describes a supported database dialect.
type Driver struct {
	Name          string
	SQLDriver     string
	DisplayName   string
	DefaultSchema string
}

var drivers = map[string]Driver{
	"postgres": {Name: "postgres", SQLDriver: "pgx", DisplayName: "PostgreSQL", DefaultSchema: "public"},
	"duckdb":   {Name: "duckdb", SQLDriver: "duckdb", DisplayName: "DuckDB", DefaultSchema: "main"},
	"sqlite":   {Name: "sqlite", SQLDriver: "sqlite3", DisplayName: "SQLite", DefaultSchema: "main"},
}

func LookupDriver(name string) (Driver, error) {
	driver, ok := drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Driver{}, fmt.Errorf("unsupported database driver %q", name)
	}
	return driver, nil
}

// DB is a handle to the configured database.
type DB struct {
	*sql.DB
	Driver Driver
	Schema string
}

// New wraps an existing handle. Tests pass sqlmock handles here.
func New(db *sql.DB, driver Driver, schema string) *DB {
	if strings.TrimSpace(schema) == "" {
		schema = driver.DefaultSchema
	}
	return &DB{DB: db, Driver: driver, Schema: schema}
}

// Open prepares the handle without connecting; connection failures surface on
// first use so an unreachable database degrades the chat instead of startup.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver, err := LookupDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver.SQLDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver.Name, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	return New(db, driver, cfg.Schema), nil
}

// Conn acquires a dedicated connection for one operation.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := d.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", d.Driver.DisplayName, err)
	}
	return conn, nil
}

func (d *DB) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.DB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping %s: %w", d.Driver.DisplayName, err)
	}
	return nil
}

// DSN renders the connection string for cfg.
func DSN(cfg config.DatabaseConfig) (string, error) {
	driver, err := LookupDriver(cfg.Driver)
	if err != nil {
		return "", err
	}
	switch driver.Name {
	case "postgres":
		if strings.TrimSpace(cfg.Host) == "" {
			return "", fmt.Errorf("database host is required")
		}
		parts := []string{
			"host=" + quoteValue(cfg.Host),
			"port=" + strconv.Itoa(cfg.Port),
			"dbname=" + quoteValue(cfg.Name),
			"user=" + quoteValue(cfg.User),
		}
		if cfg.Password != "" {
			parts = append(parts, "password="+quoteValue(cfg.Password))
		}
		if cfg.SSLMode != "" {
			parts = append(parts, "sslmode="+quoteValue(cfg.SSLMode))
		}
		return strings.Join(parts, " "), nil
	case "sqlite":
		if strings.TrimSpace(cfg.Name) == "" {
			return "", fmt.Errorf("sqlite database file is required")
		}
		return cfg.Name, nil
	default:
		return cfg.Name, nil
	}
}

// quoteValue quotes a keyword/value DSN value when it is empty or contains
// whitespace, quotes or backslashes.
func quoteValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\n\r'\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}
