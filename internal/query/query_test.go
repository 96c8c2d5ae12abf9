package query

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/database"
)

func TestExecuteSelectOne(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1;")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT 1;")
	if outcome.Failed() {
		t.Fatalf("Execute() error = %v", outcome.Err)
	}
	if len(outcome.Columns) != 1 || len(outcome.Rows) != 1 || len(outcome.Rows[0]) != 1 {
		t.Fatalf("outcome = %+v, want one row with one column", outcome)
	}
	if outcome.Rows[0][0] != int64(1) {
		t.Fatalf("value = %#v", outcome.Rows[0][0])
	}
	if got := outcome.Text(); got != `[{"?column?": 1}]` {
		t.Fatalf("Text() = %q", got)
	}
	if outcome.SQL != "SELECT 1;" {
		t.Fatalf("SQL = %q", outcome.SQL)
	}
	assertSQLMock(t, mock)
}

func TestExecuteCountText(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders;")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT COUNT(*) FROM orders;")
	if got := outcome.Text(); got != `[{"count": 42}]` {
		t.Fatalf("Text() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteKeepsMarkupCharactersVerbatim(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name AS \"R&D <team>\" FROM products;")).
		WillReturnRows(sqlmock.NewRows([]string{"R&D <team>"}).AddRow([]byte("M&M's <Peanut>")))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT name AS \"R&D <team>\" FROM products;")
	if got, want := outcome.Text(), `[{"R&D <team>": "M&M's <Peanut>"}]`; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestExecuteKeepsColumnOrderAndNormalizesValues(t *testing.T) {
	db, mock := newSQLMock(t)
	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, id, sold_at, note FROM items")).
		WillReturnRows(sqlmock.NewRows([]string{"name", "id", "sold_at", "note"}).
			AddRow([]byte("milk"), int64(7), when, nil).
			AddRow("bread", int64(8), when, "fresh"))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT name, id, sold_at, note FROM items")
	if outcome.Failed() {
		t.Fatalf("Execute() error = %v", outcome.Err)
	}
	want := `[{"name": "milk", "id": 7, "sold_at": "2025-03-01T12:00:00Z", "note": null}, {"name": "bread", "id": 8, "sold_at": "2025-03-01T12:00:00Z", "note": "fresh"}]`
	if got := outcome.Text(); got != want {
		t.Fatalf("Text() = %q\nwant      %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestExecuteNoRows(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM orders WHERE 1 = 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT * FROM orders WHERE 1 = 0")
	if outcome.Failed() {
		t.Fatalf("Execute() error = %v", outcome.Err)
	}
	if outcome.Text() != NoDataText {
		t.Fatalf("Text() = %q", outcome.Text())
	}
	assertSQLMock(t, mock)
}

func TestExecuteCapturesDatabaseError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELEC nonsense")).
		WillReturnError(errors.New(`syntax error at or near "SELEC"`))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELEC nonsense")
	if !outcome.Failed() {
		t.Fatal("expected failed outcome")
	}
	if got := outcome.Text(); got != `Database Error: syntax error at or near "SELEC"` {
		t.Fatalf("Text() = %q", got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteCapturesRowError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM big")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			RowError(1, errors.New("connection reset")))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "SELECT id FROM big")
	if !outcome.Failed() || outcome.Text() != "Database Error: connection reset" {
		t.Fatalf("outcome = %+v", outcome)
	}
	assertSQLMock(t, mock)
}

func TestExecutePassesStatementsThroughUnchecked(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM orders")).
		WillReturnRows(sqlmock.NewRows(nil))

	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "DELETE FROM orders")
	if outcome.Failed() || outcome.Text() != NoDataText {
		t.Fatalf("outcome = %+v", outcome)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRejectsBlankSQL(t *testing.T) {
	db, mock := newSQLMock(t)
	outcome := NewExecutor(wrap(db), 0, nil).Execute(context.Background(), "   ")
	if !outcome.Failed() {
		t.Fatal("expected failure for blank SQL")
	}
	assertSQLMock(t, mock)
}

func TestExecuteReleasesConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).WillReturnError(errors.New("boom"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 2")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(2)))

	wrapped := wrap(db)
	wrapped.SetMaxOpenConns(1)
	executor := NewExecutor(wrapped, time.Second, nil)
	executor.Execute(context.Background(), "SELECT 1")
	outcome := executor.Execute(context.Background(), "SELECT 2")
	if outcome.Failed() {
		t.Fatalf("second Execute() error = %v", outcome.Err)
	}
	if inUse := wrapped.Stats().InUse; inUse != 0 {
		t.Fatalf("connections in use = %d, want 0", inUse)
	}
	assertSQLMock(t, mock)
}

func wrap(db *sql.DB) *database.DB {
	driver, err := database.LookupDriver("postgres")
	if err != nil {
		panic(err)
	}
	return database.New(db, driver, "")
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
