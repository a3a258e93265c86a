// Package sqlite persists the in-memory state to a single SQLite table as
// JSON blobs. It snapshots the full state after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"forestcore/internal/infra/persistence/memory"
	"forestcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the in-memory store with durable whole-state snapshots.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "forestcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

type bucketCodec struct {
	name      string
	marshal   func(memory.Snapshot) (any, error)
	unmarshal func(*memory.Snapshot, []byte) error
}

var buckets = []bucketCodec{
	{"plots",
		func(s memory.Snapshot) (any, error) { return s.Plots, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Plots) }},
	{"censuses",
		func(s memory.Snapshot) (any, error) { return s.Censuses, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Censuses) }},
	{"quadrats",
		func(s memory.Snapshot) (any, error) { return s.Quadrats, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Quadrats) }},
	{"attributes",
		func(s memory.Snapshot) (any, error) { return s.Attributes, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Attributes) }},
	{"personnel",
		func(s memory.Snapshot) (any, error) { return s.Personnel, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Personnel) }},
	{"species",
		func(s memory.Snapshot) (any, error) { return s.Species, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Species) }},
	{"measurements",
		func(s memory.Snapshot) (any, error) { return s.Measurements, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Measurements) }},
	{"sequences",
		func(s memory.Snapshot) (any, error) { return s.Sequences, nil },
		func(s *memory.Snapshot, b []byte) error { return json.Unmarshal(b, &s.Sequences) }},
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}
	var snapshot memory.Snapshot
	for _, b := range buckets {
		payload, ok := payloads[b.name]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := b.unmarshal(&snapshot, payload); err != nil {
			return fmt.Errorf("decode %s: %w", b.name, err)
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, b := range buckets {
		value, err := b.marshal(snapshot)
		if err != nil {
			retErr = err
			return retErr
		}
		data, err := json.Marshal(value)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err := tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, b.name, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", b.name, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction, then snapshots state to
// SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
