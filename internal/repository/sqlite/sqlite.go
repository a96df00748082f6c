// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// It uses modernc.org/sqlite, a pure Go translation of SQLite, behind Go's
// database/sql. No C toolchain is needed to build or cross-compile.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Tx      — a transaction, pinned to one connection until Commit/Rollback
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
//
// Every repository call borrows a connection from the pool for the duration
// of one statement (or one transaction) and returns it on every exit path.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database, used by tests.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "student_registry.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests; lost on close)
//
// A busy timeout is set through the DSN so that it applies to every pooled
// connection, not only the first one.
func New(dbPath string) (*DB, error) {
	memory := dbPath == MemoryPath

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if !memory {
		// WAL lets readers proceed while a write is in progress.
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if memory {
		// Each connection to ":memory:" is a separate, empty database.
		// Pin the pool to one connection so every query sees the same tables.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
//
//	db, err := sqlite.New("student_registry.db")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
//
// The users table matches the one created by the earlier registry service
// (same table and column names), so an existing database file can be opened
// directly; the timestamp columns it lacks are added in place.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			email           TEXT NOT NULL,
			last_name       TEXT NOT NULL,
			first_name      TEXT NOT NULL,
			middle_initial  TEXT,
			course          TEXT NOT NULL,
			year            INTEGER NOT NULL,
			gender          TEXT NOT NULL,
			graduating      BOOLEAN NOT NULL DEFAULT 0,
			hashed_password TEXT NOT NULL,
			created_at      DATETIME,
			updated_at      DATETIME
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	for _, col := range []string{"created_at", "updated_at"} {
		if err := db.addColumnIfNotExists("users", col, "DATETIME"); err != nil {
			return fmt.Errorf("adding %s to users: %w", col, err)
		}
	}

	// The UNIQUE index is the authoritative guard against duplicate emails;
	// the service-level pre-check only produces a friendlier error sooner.
	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`)
	if err != nil {
		return fmt.Errorf("creating users email index: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// ParseURL turns a DATABASE_URL value into a path for New.
//
//	sqlite:///./student_registry.db → ./student_registry.db
//	sqlite:///var/lib/registry.db   → /var/lib/registry.db
//	sqlite://:memory:               → :memory:
//	data/registry.db                → data/registry.db
//
// Any other scheme is rejected: SQLite is the only supported store.
func ParseURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("sqlite: empty database URL")
	}

	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return url, nil
	}
	if scheme != "sqlite" && scheme != "sqlite3" && scheme != "file" {
		return "", fmt.Errorf("sqlite: unsupported database scheme %q", scheme)
	}

	// SQLAlchemy style: three slashes then a relative path, four for absolute.
	if strings.HasPrefix(rest, "/./") || strings.HasPrefix(rest, "/../") {
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[1:]
	}
	if rest == "" || rest == "/" {
		return "", fmt.Errorf("sqlite: database URL %q has no path", url)
	}
	return rest, nil
}
