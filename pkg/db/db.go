// Package db is the host side of the translator's contract: it owns the
// nodes/edges schema, registers the cypher_* scalar functions on every
// connection, and executes translated statements.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is our sqlite3 driver with the cypher_* functions attached.
const driverName = "sqlite3_nicefox"

var registerDriverOnce sync.Once

func registerDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				pure := true
				funcs := []struct {
					name string
					impl any
				}{
					{"cypher_not", cypherNot},
					{"cypher_and", cypherAnd},
					{"cypher_or", cypherOr},
					{"cypher_lt", cypherLt},
					{"cypher_lte", cypherLte},
					{"cypher_gt", cypherGt},
					{"cypher_gte", cypherGte},
					{"cypher_equals", cypherEquals},
					{"cypher_case_eq", cypherCaseEq},
					{"cypher_duration_seconds", cypherDurationSeconds},
				}
				for _, f := range funcs {
					if err := conn.RegisterFunc(f.name, f.impl, pure); err != nil {
						return fmt.Errorf("failed to register %s: %w", f.name, err)
					}
				}
				return nil
			},
		})
	})
}

// DB wraps the SQLite database connection with the graph schema
type DB struct {
	conn *sql.DB
	path string
}

// Config holds database configuration
type Config struct {
	Path          string // Database file path (":memory:" for tests)
	WAL           bool   // Enable WAL journal mode
	ForeignKeys   bool   // Enforce foreign key constraints
	BusyTimeoutMS int    // SQLITE_BUSY wait, milliseconds
	MaxOpenConns  int
	MaxIdleConns  int
}

// Open opens or creates a database with the given configuration
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	registerDriver()

	memory := cfg.Path == ":memory:"
	dbExists := false
	if !memory {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		if _, err := os.Stat(cfg.Path); err == nil {
			dbExists = true
		}
	}

	dsn := cfg.Path
	if !memory {
		dsn = fmt.Sprintf("file:%s", cfg.Path)
	}
	if cfg.BusyTimeoutMS > 0 && !memory {
		dsn += fmt.Sprintf("%c_busy_timeout=%d", dsnSep(dsn), cfg.BusyTimeoutMS)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 5
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 2
	}
	if memory {
		// An in-memory database lives in its one connection; a pool would
		// hand out empty databases.
		maxOpen, maxIdle = 1, 1
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.initSchema(dbExists, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func dsnSep(dsn string) byte {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '?' {
			return '&'
		}
	}
	return '?'
}

// initSchema creates tables and indexes if they don't exist
func (db *DB) initSchema(dbExists bool, cfg Config) error {
	if cfg.WAL && cfg.Path != ":memory:" {
		if _, err := db.conn.Exec(EnableWALMode); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := db.conn.Exec(SetWALCheckpoint); err != nil {
			return fmt.Errorf("failed to set WAL checkpoint: %w", err)
		}
	}
	if cfg.ForeignKeys {
		if _, err := db.conn.Exec(EnableForeignKeys); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	schemas := []string{
		CreateMetaTable,
		CreateNodesTable,
		CreateEdgesTable,
		CreateEdgesSourceIndex,
		CreateEdgesTargetIndex,
		CreateEdgesTypeIndex,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, schema := range schemas {
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if !dbExists {
		now := time.Now().UTC().Format(time.RFC3339)
		metaInserts := map[string]string{
			MetaKeySchemaVersion: SchemaVersion,
			MetaKeyCreatedAt:     now,
		}
		for key, value := range metaInserts {
			if _, err := tx.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
				return fmt.Errorf("failed to insert meta %s: %w", key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// Close closes the database connection and flushes WAL
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.path != ":memory:" {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to checkpoint WAL: %v\n", err)
		}
	}
	closeErr := db.conn.Close()
	db.conn = nil
	return closeErr
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// GetMeta retrieves a metadata value by key
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("meta key not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// HealthCheck verifies database connectivity and schema
func (db *DB) HealthCheck() error {
	if err := db.conn.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	version, err := db.GetMeta(MetaKeySchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %s, got %s", SchemaVersion, version)
	}
	return nil
}

// RawQuery executes a raw SQL query with args and returns the result rows
func (db *DB) RawQuery(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// RawExec executes a raw SQL statement with args
func (db *DB) RawExec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}
