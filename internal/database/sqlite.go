package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mdnotes/internal/database/migrations"
	"mdnotes/internal/notes"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// batchSize bounds the rows per CASE update or IN list so statements stay
// under SQLite's host parameter limit.
const batchSize = 100

// SQLiteDatabase implements the notes.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// Connection parameters are passed in the DSN so every pooled connection
// gets them: foreign keys on, UTC timestamps, immediate write transactions.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate&_loc=UTC"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn in a transaction that is committed when fn returns nil.
func (s *SQLiteDatabase) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// MigrateUp applies pending schema migrations, logging each version applied.
func (s *SQLiteDatabase) MigrateUp(logger notes.Logger) error {
	return migrations.Apply(s.db, logger)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements notes.Database interface
var _ notes.Database = (*SQLiteDatabase)(nil)

// Query helpers

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func anys[T any](items []T) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// execIn runs query once per batch of ids. query must contain one %s where
// the IN placeholders go, after any prefix parameters.
func execIn[T any](ctx context.Context, q dbtx, query string, prefix []any, ids []T) error {
	for _, batch := range chunks(ids, batchSize) {
		args := append(append([]any(nil), prefix...), anys(batch)...)
		if _, err := q.ExecContext(ctx, fmt.Sprintf(query, placeholders(len(batch))), args...); err != nil {
			return err
		}
	}
	return nil
}

// caseRow holds the new column values for the row identified by key.
type caseRow struct {
	key any
	set map[string]any
}

// updateCase writes per-row values with one statement per batch:
//
//	UPDATE t SET c = CASE k WHEN ? THEN ? ... ELSE c END WHERE k IN (...) [AND where]
//
// A row leaves a column unchanged by omitting it from set.
func updateCase(ctx context.Context, q dbtx, table, key string, columns []string, rows []caseRow, where string, whereArgs ...any) error {
	for _, batch := range chunks(rows, batchSize) {
		var sets []string
		var args []any
		for _, col := range columns {
			var b strings.Builder
			n := 0
			for _, r := range batch {
				v, ok := r.set[col]
				if !ok {
					continue
				}
				if n == 0 {
					fmt.Fprintf(&b, "%s = CASE %s", col, key)
				}
				b.WriteString(" WHEN ? THEN ?")
				args = append(args, r.key, v)
				n++
			}
			if n == 0 {
				continue
			}
			fmt.Fprintf(&b, " ELSE %s END", col)
			sets = append(sets, b.String())
		}
		if len(sets) == 0 {
			continue
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)", table, strings.Join(sets, ", "), key, placeholders(len(batch)))
		for _, r := range batch {
			args = append(args, r.key)
		}
		if where != "" {
			query += " AND " + where
			args = append(args, whereArgs...)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}
