// Package store provides SQLite-backed persistence for projects, source
// materials, content chunks, voice profiles, outlines, chapters, generation
// tasks, LLM usage logs, and workflow checkpoints.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the ghostline SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *slog.Logger

	vectorOK bool
}

// Open initializes the SQLite database at the given path, applying any
// pending migrations. The parent directory is created if missing.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.vectorOK = s.probeVectorSupport()
	if !s.vectorOK {
		logger.Warn("sqlite-vec extension unavailable, vector search disabled")
	}

	return s, nil
}

// OpenMemory opens an in-memory database, for tests and ephemeral runs.
func OpenMemory(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	db, err := sql.Open("sqlite3", "file::memory:?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A connection pool would hand each query a fresh, empty :memory: db.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: ":memory:", logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.vectorOK = s.probeVectorSupport()
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// VectorSearchAvailable reports whether the sqlite-vec extension is loaded.
func (s *Store) VectorSearchAvailable() bool {
	return s.vectorOK
}

func (s *Store) probeVectorSupport() bool {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return false
	}
	return version != ""
}
