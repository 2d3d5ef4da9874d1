// Package infocache persists movie detail records across runs so repeated
// lookups skip the backend.
package infocache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"moviegpt/internal/backend"
)

var bucket = []byte("movie_info")

type record struct {
	Info     backend.MovieInfo `json:"info"`
	StoredAt time.Time         `json:"stored_at"`
}

// Cache is a BoltDB-backed backend.InfoCache. Entries older than the
// configured TTL are treated as missing.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the cache file at path. ttl <= 0 keeps entries
// forever.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening info cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialising info cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns a cached record
func (c *Cache) Get(id string) (backend.MovieInfo, bool) {
	var rec record
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		// Skip malformed entries; they are overwritten on the next Put
		if json.Unmarshal(v, &rec) == nil {
			found = true
		}
		return nil
	})
	if !found {
		return backend.MovieInfo{}, false
	}
	if c.ttl > 0 && c.now().Sub(rec.StoredAt) > c.ttl {
		return backend.MovieInfo{}, false
	}
	return rec.Info, true
}

// Put stores a record
func (c *Cache) Put(id string, info backend.MovieInfo) error {
	data, err := json.Marshal(record{Info: info, StoredAt: c.now()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

// Len returns the number of stored records
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return n
}

// Close releases the database file
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ backend.InfoCache = (*Cache)(nil)
