// Package migrations holds the SQLite schema of the notes store and applies it
// with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

var (
	// ErrUninitialized means the database has never been migrated.
	ErrUninitialized = errors.New("schema not initialized, run `mdnotes db migrate`")
	// ErrDirty means a migration stopped halfway and needs manual repair.
	ErrDirty = errors.New("schema is dirty after an interrupted migration")
)

// Logger receives one line per applied version.
type Logger interface {
	Info(msg string, args ...any)
}

// Status compares the schema version of a database with the newest version
// bundled in this build. Current is 0 for a database never migrated.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// ReadStatus reports the schema version of db.
func ReadStatus(db *sql.DB) (Status, error) {
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}
	var st Status
	st.Latest, err = latest()
	if err != nil {
		return Status{}, err
	}
	st.Current, st.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return st, nil
}

// Check returns nil when db is at exactly the bundled schema version.
func Check(db *sql.DB) error {
	st, err := ReadStatus(db)
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return fmt.Errorf("%w (version %d)", ErrDirty, st.Current)
	case st.Current == 0:
		return ErrUninitialized
	case st.Current < st.Latest:
		return fmt.Errorf("schema version %d is behind %d, run `mdnotes db migrate`", st.Current, st.Latest)
	case st.Current > st.Latest:
		return fmt.Errorf("schema version %d is newer than this build supports (%d)", st.Current, st.Latest)
	}
	return nil
}

// Apply runs every pending migration. A database already at the latest
// version is left alone. log may be nil.
func Apply(db *sql.DB, log Logger) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if log != nil {
		m.Log = migrateLog{log}
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// open builds a migrator over db. It is never closed: closing it would close
// db, which belongs to the caller.
func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrator: %w", err)
	}
	return m, nil
}

// latest returns the highest version bundled in this build.
func latest() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading migration after %d: %w", v, err)
		}
		v = next
	}
}

// migrateLog adapts Logger to the printf-style logger migrate expects.
type migrateLog struct {
	log Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.log.Info("schema migration", "step", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool { return false }
