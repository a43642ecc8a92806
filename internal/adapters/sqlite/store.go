package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

const schemaVersion = "1"

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Store implements ports.NodeStore using SQLite
type Store struct {
	reader

	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Ensure Store implements NodeStore
var _ ports.NodeStore = (*Store)(nil)

// NewStore creates a store; call Open before use
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		reader: reader{kinds: &kindSet{known: map[string]bool{}}},
		logger: logger.With("component", "sqlite"),
	}
}

// Open initializes the database at path, creating it when missing
func (s *Store) Open(path string) error {
	// Expand ~ in path
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	s.path = path

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// WAL lets readers run next to the single writer
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	s.reader.q = db

	// Performance pragmas + schema in single batch (reduces round-trips)
	_, err = db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA cache_size = -64000;
		PRAGMA temp_store = MEMORY;

		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			node_type TEXT NOT NULL,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			has_children INTEGER NOT NULL DEFAULT 0,
			descendant_count INTEGER NOT NULL DEFAULT 0,
			trashed_from TEXT NOT NULL DEFAULT '',
			trashed_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, name);
		CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to setup database: %w", err)
	}

	if err := s.bootstrap(); err != nil {
		db.Close()
		return fmt.Errorf("failed to bootstrap database: %w", err)
	}

	s.logger.Debug("store opened", "path", path)
	return nil
}

// bootstrap records the schema version and makes sure the trash root exists
func (s *Store) bootstrap() error {
	trash := domain.NewTrashRoot(time.Now().UTC())
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?);
		INSERT OR IGNORE INTO nodes (id, parent_id, node_type, name, version, created_at, updated_at)
		VALUES (?, '', ?, ?, ?, ?, ?);
	`, schemaVersion, trash.ID, trash.NodeType, trash.Name, trash.Version,
		trash.CreatedAt.UnixNano(), trash.UpdatedAt.UnixNano())
	return err
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// EnsureKind creates the entity and resource tables for kind
func (s *Store) EnsureKind(ctx context.Context, kind string) error {
	if !kindPattern.MatchString(kind) {
		return fmt.Errorf("invalid entity kind %q", kind)
	}
	if s.kinds.has(kind) {
		return nil
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS entity_%[1]s (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL,
			data TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entity_%[1]s_node ON entity_%[1]s(node_id);
		CREATE TABLE IF NOT EXISTS resource_%[1]s (
			id TEXT PRIMARY KEY,
			ref_count INTEGER NOT NULL,
			refs TEXT NOT NULL,
			data TEXT
		);
	`, kind))
	if err != nil {
		return fmt.Errorf("failed to create tables for %s: %w", kind, err)
	}

	s.kinds.add(kind)
	s.logger.Debug("entity kind ready", "kind", kind)
	return nil
}

// BeginTx starts a new transaction
func (s *Store) BeginTx(ctx context.Context) (ports.NodeTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &nodeTx{reader: reader{q: tx, kinds: s.kinds}, tx: tx}, nil
}

// kindSet tracks the kinds whose tables exist
type kindSet struct {
	mu    sync.RWMutex
	known map[string]bool
}

func (k *kindSet) has(kind string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.known[kind]
}

func (k *kindSet) add(kind string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.known[kind] = true
}
