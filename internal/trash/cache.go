package trash

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

var bucketSnapshots = []byte("snapshots")

// Cache stores the most recent catalog snapshot per service, keyed by
// service kind and tagged with the version it was fetched at. Consumers
// must verify the tag against their resolution target before use.
type Cache struct {
	db *bolt.DB
}

// NewCache opens (or creates) the snapshot cache at path.
func NewCache(path string) (*Cache, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Get returns the cached snapshot for a service, or nil if none exists.
func (c *Cache) Get(service models.Service) (*Snapshot, error) {
	var snap *Snapshot

	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(service))
		if data == nil {
			return nil
		}
		var s Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode cached snapshot: %w", err)
		}
		snap = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Set stores a snapshot, replacing any previous one for the same service.
func (c *Cache) Set(snap *Snapshot) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.Service), data)
	})
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}
