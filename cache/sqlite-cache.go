package cache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
)

// SQLiteCache is a Cache backed by a sqlite database.
// Useful when entries should survive process restarts in a single
// file, or for an in-memory db in tests.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, an in-memory db with a shared cache is
// opened; every such SQLiteCache in the process uses the same db.
func NewSQLiteCache(filename string) *SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	return &SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

// Initialize creates the entries table.
func (s *SQLiteCache) Initialize() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		ttl INTEGER,
		soft_ttl INTEGER,
		bytes BLOB
	)`)
	if err != nil {
		return errors.Wrap(err, "failed to create entries table")
	}
	if _, err = s.db.Exec("CREATE INDEX IF NOT EXISTS ttl_idx ON entries (ttl)"); err != nil {
		return errors.Wrap(err, "failed to create ttl index")
	}
	if _, err = s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "failed to enable WAL")
	}
	return nil
}

func (s *SQLiteCache) Get(key string) (*Entry, error) {
	var b []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE key = ?", key).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entry")
	}
	storedKey, entry, err := DecodeEntry(b)
	if err != nil {
		return nil, err
	}
	if storedKey != key {
		return nil, errors.Errorf("stored entry key mismatch: %q", storedKey)
	}
	return entry, nil
}

func (s *SQLiteCache) Put(key string, entry *Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO entries (key, ttl, soft_ttl, bytes) VALUES (?, ?, ?, ?)",
		key, entry.TTL, entry.SoftTTL, EncodeEntry(key, entry))
	return errors.Wrap(err, "failed to store entry")
}

func (s *SQLiteCache) Invalidate(key string, fullExpire bool) error {
	entry, err := s.Get(key)
	if err != nil {
		return err
	}
	entry.SoftTTL = 0
	if fullExpire {
		entry.TTL = 0
	}
	return s.Put(key, entry)
}

func (s *SQLiteCache) Remove(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE key = ?", key)
	return errors.Wrap(err, "failed to delete entry")
}

func (s *SQLiteCache) Clear() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries")
	return errors.Wrap(err, "failed to clear entries")
}
