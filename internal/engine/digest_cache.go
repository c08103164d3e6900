// ABOUTME: DigestCache remembers file digests by path, size, and modification time
// ABOUTME: Lets rescans of unchanged files skip rehashing, with TTL-based expiration

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

const digestCachePrefix = "digest-cache:"

// DefaultDigestCacheTTL is how long a cached digest stays valid.
const DefaultDigestCacheTTL = 7 * 24 * time.Hour

type digestCacheEntry struct {
	Size    int64        `json:"size"`
	ModTime int64        `json:"mod_time"`
	Digest  types.Digest `json:"digest"`
}

// DigestCache caches content digests keyed by file path.
type DigestCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewDigestCache creates a digest cache on an open Store.
// A zero ttl uses DefaultDigestCacheTTL.
func NewDigestCache(store *Store, ttl time.Duration) *DigestCache {
	if ttl == 0 {
		ttl = DefaultDigestCacheTTL
	}
	return &DigestCache{db: store.DB(), ttl: ttl}
}

// Put stores the digest of path as of size and modTime.
func (c *DigestCache) Put(ctx context.Context, path string, size int64, modTime time.Time, d types.Digest) error {
	data, err := json.Marshal(digestCacheEntry{Size: size, ModTime: modTime.UnixNano(), Digest: d})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(digestCachePrefix+path), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Get returns the cached digest of path if size and modTime still match.
func (c *DigestCache) Get(ctx context.Context, path string, size int64, modTime time.Time) (types.Digest, bool, error) {
	var entry *digestCacheEntry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(digestCachePrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting cache entry: %w", err)
		}

		return item.Value(func(val []byte) error {
			entry = &digestCacheEntry{}
			if err := json.Unmarshal(val, entry); err != nil {
				return fmt.Errorf("unmarshaling cache entry: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}

	if entry == nil || entry.Size != size || entry.ModTime != modTime.UnixNano() {
		return "", false, nil
	}
	return entry.Digest, true, nil
}

// Clear removes all cached digests.
func (c *DigestCache) Clear(ctx context.Context) error {
	return c.db.DropPrefix([]byte(digestCachePrefix))
}

// Count returns the number of cached digests.
func (c *DigestCache) Count(ctx context.Context) (int64, error) {
	var count int64

	err := c.db.View(func(txn *badger.Txn) error {
		it := keyIterator(txn, []byte(digestCachePrefix))
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}
