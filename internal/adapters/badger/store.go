// Package badger keeps working copies and session state in BadgerDB.
//
// Entries carry a TTL so abandoned copies expire even if the janitor never
// reaches them. Keys:
//
//	wc/<workingCopyID>   JSON working copy
//	wcnode/<nodeID>      id of the live working copy for a node
//	session/<key>        opaque session value
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"arbor/internal/domain"
	"arbor/internal/ports"
)

const (
	prefixWorkingCopy = "wc/"
	prefixNodeIndex   = "wcnode/"
	prefixSession     = "session/"
)

// Config holds configuration for the ephemeral store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM; working copies die with the process.
	InMemory bool

	SyncWrites bool

	// TTL is attached to every entry. Zero disables expiry.
	TTL time.Duration

	// Logger receives BadgerDB's internal logging. Nil silences it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns defaults for an on-disk store at path
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		TTL:            24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests and throwaway sessions
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		TTL:      time.Hour,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements ports.EphemeralStore
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
	gc     *gcRunner
	now    func() time.Time
}

// Ensure Store implements EphemeralStore
var _ ports.EphemeralStore = (*Store)(nil)

// Open creates and opens the store
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent ephemeral store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create ephemeral store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, ttl: cfg.TTL, logger: logger, now: time.Now}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// Close stops garbage collection and closes the database
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

func (s *Store) entry(key string, value []byte) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e
}

// PutWorkingCopy stores wc and indexes it by node id for edits
func (s *Store) PutWorkingCopy(ctx context.Context, wc domain.WorkingCopy) error {
	data, err := json.Marshal(wc)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(s.entry(prefixWorkingCopy+wc.ID, data)); err != nil {
			return err
		}
		if wc.NodeID != "" {
			return txn.SetEntry(s.entry(prefixNodeIndex+wc.NodeID, []byte(wc.ID)))
		}
		return nil
	})
}

// GetWorkingCopy loads a working copy; missing or expired copies are (nil, nil)
func (s *Store) GetWorkingCopy(ctx context.Context, id string) (*domain.WorkingCopy, error) {
	var wc *domain.WorkingCopy
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		wc, err = getWorkingCopy(txn, id)
		return err
	})
	return wc, err
}

func getWorkingCopy(txn *badger.Txn, id string) (*domain.WorkingCopy, error) {
	item, err := txn.Get([]byte(prefixWorkingCopy + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var wc domain.WorkingCopy
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &wc)
	}); err != nil {
		return nil, err
	}
	return &wc, nil
}

// FindByNode returns the live working copy editing nodeID, if any
func (s *Store) FindByNode(ctx context.Context, nodeID string) (*domain.WorkingCopy, error) {
	var wc *domain.WorkingCopy
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNodeIndex + nodeID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		wc, err = getWorkingCopy(txn, string(id))
		if wc != nil && wc.NodeID != nodeID {
			wc = nil
		}
		return err
	})
	return wc, err
}

// DeleteWorkingCopy removes a working copy and its node index entry
func (s *Store) DeleteWorkingCopy(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		wc, err := getWorkingCopy(txn, id)
		if err != nil || wc == nil {
			return err
		}
		return deleteWorkingCopy(txn, *wc)
	})
}

func deleteWorkingCopy(txn *badger.Txn, wc domain.WorkingCopy) error {
	if err := txn.Delete([]byte(prefixWorkingCopy + wc.ID)); err != nil {
		return err
	}
	if wc.NodeID == "" {
		return nil
	}
	// Only drop the index if it still points at this copy
	item, err := txn.Get([]byte(prefixNodeIndex + wc.NodeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	owner, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(owner) == wc.ID {
		return txn.Delete([]byte(prefixNodeIndex + wc.NodeID))
	}
	return nil
}

// ListWorkingCopies returns every live working copy ordered by id
func (s *Store) ListWorkingCopies(ctx context.Context) ([]domain.WorkingCopy, error) {
	var out []domain.WorkingCopy
	err := s.db.View(func(txn *badger.Txn) error {
		return scanWorkingCopies(txn, func(wc domain.WorkingCopy) error {
			out = append(out, wc)
			return nil
		})
	})
	return out, err
}

func scanWorkingCopies(txn *badger.Txn, fn func(domain.WorkingCopy) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixWorkingCopy)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var wc domain.WorkingCopy
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &wc)
		}); err != nil {
			return err
		}
		if err := fn(wc); err != nil {
			return err
		}
	}
	return nil
}

// PutSession stores a session value under key
func (s *Store) PutSession(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(prefixSession+key, value))
	})
}

// GetSession loads a session value; missing keys are (nil, nil)
func (s *Store) GetSession(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSession + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Sweep deletes working copies copied more than maxAge ago
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) ([]domain.WorkingCopy, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	now := s.now()

	var expired []domain.WorkingCopy
	err := s.db.View(func(txn *badger.Txn) error {
		return scanWorkingCopies(txn, func(wc domain.WorkingCopy) error {
			if wc.Expired(now, maxAge) {
				expired = append(expired, wc)
			}
			return nil
		})
	})
	if err != nil || len(expired) == 0 {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, wc := range expired {
			if err := deleteWorkingCopy(txn, wc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("swept working copies", "count", len(expired))
	return expired, nil
}

// Clear drops every working copy and all session state
func (s *Store) Clear(ctx context.Context) error {
	return s.db.DropAll()
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}
