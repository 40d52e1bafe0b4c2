package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Store defines all functions to interact with the database
type Store interface {
	Querier
	// ExecTx runs fn inside one write transaction. Every state change and
	// its audit entry go through here.
	ExecTx(ctx context.Context, fn func(*Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

// SQLStore provides all functions to execute db queries and transactions
type SQLStore struct {
	*Queries
	db *sql.DB
}

// Config holds database configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		Path:            "./data/ipam.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 300,
	}
}

// connection parameters: _txlock=immediate makes every BeginTx take the
// write lock up front so two allocators never both read a free slot and
// then race on commit.
const dsnParams = "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"

//go:embed schema.sql
var ddl string

// NewStore opens the database, applies pending migrations and returns a Store.
func NewStore(config *Config) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !isMemoryPath(config.Path) {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(config.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{
		Queries: New(db),
		db:      db,
	}

	if err := store.Setup(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

// NewStoreFromDB creates a new Store from an existing database connection.
// The schema is not touched; call Setup when needed.
func NewStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + dsnParams
}

// Setup brings the schema up to the current version.
func (s *SQLStore) Setup(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// ExecTx executes fn within a transaction. Domain errors returned by fn
// are passed through; raw driver errors are mapped with MapError.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MapError("begin transaction", err)
	}

	q := New(tx)
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperrors.NewPersistenceError("rollback", fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr))
		}
		return MapError("transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return MapError("commit transaction", err)
	}

	return nil
}

// Ping checks if the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}
