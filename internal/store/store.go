// Package store persists settings, scripts, novels and chapters in SQLite
// (default, a single local file) or Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to driver ("sqlite" or "postgres") and creates the schema.
func Open(driver, dsn string) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// NewSQLiteStore opens a SQLite database. dsn can be a file path
// (e.g. scripts.db) or ":memory:".
func NewSQLiteStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "scripts.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dialect: dialectSQLite}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed store.
func NewPostgresStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	s := &Store{db: db, dialect: dialectPostgres}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}

	var stmts []string
	switch s.dialect {
	case dialectPostgres:
		stmts = []string{`
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS scripts (
	id BIGSERIAL PRIMARY KEY,
	theme TEXT NOT NULL,
	script_type TEXT NOT NULL,
	platform TEXT NOT NULL,
	content TEXT NOT NULL,
	is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
	metadata TEXT,
	created_at TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS novels (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT '',
	cover_image TEXT NOT NULL DEFAULT '',
	extra_data TEXT,
	rolling_summary TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'ongoing',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS chapters (
	id BIGSERIAL PRIMARY KEY,
	novel_id BIGINT NOT NULL REFERENCES novels(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'draft',
	order_index INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_chapters_novel ON chapters(novel_id, order_index)`,
		}
	default:
		stmts = []string{
			`PRAGMA foreign_keys = ON`, `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS scripts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	theme TEXT NOT NULL,
	script_type TEXT NOT NULL,
	platform TEXT NOT NULL,
	content TEXT NOT NULL,
	is_favorite BOOLEAN NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at DATETIME NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS novels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT '',
	cover_image TEXT NOT NULL DEFAULT '',
	extra_data TEXT,
	rolling_summary TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'ongoing',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS chapters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	novel_id INTEGER NOT NULL REFERENCES novels(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'draft',
	order_index INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_chapters_novel ON chapters(novel_id, order_index)`,
		}
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// insert runs an INSERT and returns the new row id.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == dialectPostgres {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.bind(query)+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// exec runs a statement and reports whether any row was affected.
func (s *Store) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.bind(query), args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// bind rewrites ? placeholders to $n for Postgres.
func (s *Store) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
