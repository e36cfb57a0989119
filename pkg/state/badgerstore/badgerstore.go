// Package badgerstore is a state.Store backed by an embedded BadgerDB.
//
// Keys are "watermark/<level>" and "shadow/<level>", values are JSON. Each
// mutation runs inside one read-write transaction, so a read-modify-write
// never interleaves with another writer of the same database.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/entrhq/episodic/pkg/logging"
	"github.com/entrhq/episodic/pkg/state"
)

// Config holds configuration for the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's own log output. Nil disables it.
	Logger *logging.Logger
}

// DefaultConfig returns a durable configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts logging.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Store implements state.Store.
type Store struct {
	db *badger.DB
}

var _ state.Store = (*Store)(nil)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badgerstore: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func watermarkKey(level string) []byte { return []byte("watermark/" + level) }
func shadowKey(level string) []byte    { return []byte("shadow/" + level) }

// getJSON decodes key into dst and reports whether the key existed.
func getJSON(txn *badger.Txn, key []byte, dst any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, raw)
}

// Get implements state.WatermarkStore.
func (s *Store) Get(ctx context.Context, level string) (state.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return state.Watermark{}, err
	}
	var wm state.Watermark
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getJSON(txn, watermarkKey(level), &wm)
		return err
	})
	if err != nil {
		return state.Watermark{}, fmt.Errorf("badgerstore: get watermark %s: %w", level, err)
	}
	return wm, nil
}

// Set implements state.WatermarkStore.
func (s *Store) Set(ctx context.Context, level string, wm state.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var cur state.Watermark
		if _, err := getJSON(txn, watermarkKey(level), &cur); err != nil {
			return err
		}
		next, err := state.Advance(cur, wm)
		if err != nil {
			return err
		}
		return setJSON(txn, watermarkKey(level), next)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: set watermark %s: %w", level, err)
	}
	return nil
}

func (s *Store) loadShadow(txn *badger.Txn, level string) (state.ShadowBuffer, error) {
	buf := state.EmptyBuffer()
	if _, err := getJSON(txn, shadowKey(level), &buf); err != nil {
		return state.ShadowBuffer{}, err
	}
	if buf.Identifiers == nil {
		buf.Identifiers = []string{}
	}
	return buf, nil
}

// AddIfAbsent implements state.ShadowStore.
func (s *Store) AddIfAbsent(ctx context.Context, level string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	added := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		buf, err := s.loadShadow(txn, level)
		if err != nil {
			return err
		}
		added = buf.Add(ids)
		if added == 0 {
			return nil
		}
		return setJSON(txn, shadowKey(level), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: add to shadow %s: %w", level, err)
	}
	return added, nil
}

// Snapshot implements state.ShadowStore.
func (s *Store) Snapshot(ctx context.Context, level string) (state.ShadowBuffer, error) {
	if err := ctx.Err(); err != nil {
		return state.ShadowBuffer{}, err
	}
	var buf state.ShadowBuffer
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		buf, err = s.loadShadow(txn, level)
		return err
	})
	if err != nil {
		return state.ShadowBuffer{}, fmt.Errorf("badgerstore: snapshot shadow %s: %w", level, err)
	}
	return buf, nil
}

// Reset implements state.ShadowStore.
func (s *Store) Reset(ctx context.Context, level string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		buf := state.EmptyBuffer()
		buf.UpdatedAt = time.Now().UTC()
		return setJSON(txn, shadowKey(level), buf)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: reset shadow %s: %w", level, err)
	}
	return nil
}

// SetDraft implements state.ShadowStore.
func (s *Store) SetDraft(ctx context.Context, level string, d state.Draft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		buf, err := s.loadShadow(txn, level)
		if err != nil {
			return err
		}
		buf.Draft = d
		buf.UpdatedAt = time.Now().UTC()
		return setJSON(txn, shadowKey(level), buf)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: set draft %s: %w", level, err)
	}
	return nil
}

// Close implements state.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
