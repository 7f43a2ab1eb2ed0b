// Package cache persists the per-file change cache used to skip
// re-embedding unchanged files between runs.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

var bucketFiles = []byte("files")

// Entry records what was last indexed for a file.
type Entry struct {
	// ContentHash is the SHA-256 of the file at index time.
	ContentHash string `json:"content_hash"`

	// IndexedAt is when the file's chunks were last upserted.
	IndexedAt time.Time `json:"indexed_at"`
}

// ChangeCache is a persistent path to content-hash mapping. Entries
// are written strictly after a successful vector store upsert, so a
// crash between upsert and cache write re-indexes the file on the next
// run rather than losing it.
type ChangeCache struct {
	db *bolt.DB
}

// Open opens or creates the change cache at path.
func Open(path string) (*ChangeCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeCacheIO,
			"failed to create cache directory", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeCacheIO,
			fmt.Sprintf("failed to open change cache at %s", path), err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, seekerrors.New(seekerrors.ErrCodeCacheIO,
			"failed to initialize change cache", err)
	}

	return &ChangeCache{db: db}, nil
}

// Get returns the cached entry for path, if any.
func (c *ChangeCache) Get(path string) (Entry, bool) {
	var entry Entry
	found := false

	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(path))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			// Corrupt entry, treat as absent so the file re-indexes
			return nil
		}
		found = true
		return nil
	})

	return entry, found
}

// Put records the content hash for path.
func (c *ChangeCache) Put(path, contentHash string) error {
	entry := Entry{ContentHash: contentHash, IndexedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeCacheIO, "failed to encode cache entry", err)
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(path), data)
	})
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeCacheIO,
			fmt.Sprintf("failed to write cache entry for %s", path), err)
	}
	return nil
}

// Remove deletes the entry for path. Removing a missing path is a no-op.
func (c *ChangeCache) Remove(path string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(path))
	})
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeCacheIO,
			fmt.Sprintf("failed to remove cache entry for %s", path), err)
	}
	return nil
}

// Paths returns all cached file paths.
func (c *ChangeCache) Paths() ([]string, error) {
	var paths []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, _ []byte) error {
			paths = append(paths, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, seekerrors.New(seekerrors.ErrCodeCacheIO, "failed to list cache entries", err)
	}
	return paths, nil
}

// Len returns the number of cached entries.
func (c *ChangeCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFiles).Stats().KeyN
		return nil
	})
	return n
}

// Clear removes all entries.
func (c *ChangeCache) Clear() error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketFiles); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketFiles)
		return err
	})
	if err != nil {
		return seekerrors.New(seekerrors.ErrCodeCacheIO, "failed to clear change cache", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *ChangeCache) Close() error {
	return c.db.Close()
}
