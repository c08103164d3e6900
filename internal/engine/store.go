// ABOUTME: BadgerDB wrapper storing digest sets as numbered generations
// ABOUTME: Provides generation writes, membership checks, diffing, and metadata commits

package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Key layout.
const (
	signaturePrefix = "sig:"

	metaGenerationKey  = "meta:active_generation"
	metaEntryCountKey  = "meta:entry_count"
	metaLastRefreshKey = "meta:last_refresh"
)

// neverRefreshed is how a missing refresh timestamp is rendered.
const neverRefreshed = "Never"

// StoreConfig holds configuration for the BadgerDB store.
type StoreConfig struct {
	// Path to the database directory. Required unless InMemory is true.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites enables synchronous writes (slower but safer).
	SyncWrites bool

	// Logger for BadgerDB operations. Nil disables Badger's own logging.
	Logger badger.Logger
}

// Meta is the persisted description of the active digest set.
type Meta struct {
	// Generation is the active generation; zero means never refreshed.
	Generation uint64 `json:"generation"`

	// EntryCount is the number of digests in the active generation.
	EntryCount int64 `json:"entry_count"`

	// LastRefresh is when the active generation was committed.
	LastRefresh time.Time `json:"last_refresh"`
}

// LastRefreshString returns the refresh time in RFC 3339, or "Never".
func (m Meta) LastRefreshString() string {
	if m.LastRefresh.IsZero() {
		return neverRefreshed
	}
	return m.LastRefresh.Format(time.RFC3339)
}

// StoreStats contains statistics about the store.
type StoreStats struct {
	// Database size in bytes.
	SizeBytes int64

	// LSM tree and value log sizes.
	LSMBytes  int64
	VLogBytes int64
}

// Store wraps BadgerDB for generation-keyed digest storage.
type Store struct {
	db     *badger.DB
	config StoreConfig
}

// NewStore creates a new BadgerDB store with the given configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("store path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if cfg.SyncWrites {
		opts = opts.WithSyncWrites(true)
	}

	// A nil logger disables Badger's own logging.
	opts = opts.WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{
		db:     db,
		config: cfg,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database for stores that share it.
func (s *Store) DB() *badger.DB {
	return s.db
}

// generationPrefix returns the key prefix of a generation.
// The fixed width keeps generations from prefixing each other.
func generationPrefix(gen uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x:", signaturePrefix, gen))
}

func signatureKey(gen uint64, d types.Digest) []byte {
	return append(generationPrefix(gen), d...)
}

// Has reports whether d is stored in generation gen.
func (s *Store) Has(gen uint64, d types.Digest) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(signatureKey(gen, d))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

// GenerationWriter batches digest writes into one generation.
// Nothing written is visible to lookups until the generation is committed.
type GenerationWriter struct {
	wb      *badger.WriteBatch
	gen     uint64
	written int64
}

// NewGenerationWriter starts a batch for generation gen.
func (s *Store) NewGenerationWriter(gen uint64) *GenerationWriter {
	return &GenerationWriter{
		wb:  s.db.NewWriteBatch(),
		gen: gen,
	}
}

// Put adds d to the generation. Duplicates collapse to one key.
func (w *GenerationWriter) Put(d types.Digest) error {
	if err := w.wb.Set(signatureKey(w.gen, d), nil); err != nil {
		return fmt.Errorf("failed to set digest %s: %w", d, err)
	}
	w.written++
	return nil
}

// Written returns the number of Put calls, duplicates included.
func (w *GenerationWriter) Written() int64 {
	return w.written
}

// Flush writes all pending entries.
func (w *GenerationWriter) Flush() error {
	if err := w.wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush generation %d: %w", w.gen, err)
	}
	return nil
}

// Cancel discards pending entries. Safe to call after Flush.
func (w *GenerationWriter) Cancel() {
	w.wb.Cancel()
}

// DropGeneration deletes every key of generation gen.
func (s *Store) DropGeneration(gen uint64) error {
	if err := s.db.DropPrefix(generationPrefix(gen)); err != nil {
		return fmt.Errorf("failed to drop generation %d: %w", gen, err)
	}
	return nil
}

// IterateGeneration calls fn for every digest of generation gen in key order.
func (s *Store) IterateGeneration(ctx context.Context, gen uint64, fn func(types.Digest) error) error {
	prefix := generationPrefix(gen)

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if n%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			key := it.Item().Key()
			if err := fn(types.Digest(key[len(prefix):])); err != nil {
				return err
			}
		}
		return nil
	})
}

// GenerationDiff summarises how a new generation differs from an old one.
type GenerationDiff struct {
	// Count is the number of distinct digests in the new generation.
	Count   int64
	Added   int64
	Removed int64
}

// DiffGenerations merge-walks two generations in key order.
// An absent old generation behaves as empty.
func (s *Store) DiffGenerations(ctx context.Context, oldGen, newGen uint64) (GenerationDiff, error) {
	var diff GenerationDiff
	oldPrefix := generationPrefix(oldGen)
	newPrefix := generationPrefix(newGen)

	err := s.db.View(func(txn *badger.Txn) error {
		oldIt := keyIterator(txn, oldPrefix)
		defer oldIt.Close()
		newIt := keyIterator(txn, newPrefix)
		defer newIt.Close()

		oldIt.Rewind()
		newIt.Rewind()

		n := 0
		for oldIt.Valid() || newIt.Valid() {
			n++
			if n%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}

			switch {
			case !oldIt.Valid():
				diff.Added++
				diff.Count++
				newIt.Next()
			case !newIt.Valid():
				diff.Removed++
				oldIt.Next()
			default:
				o := oldIt.Item().Key()[len(oldPrefix):]
				k := newIt.Item().Key()[len(newPrefix):]
				switch c := bytes.Compare(o, k); {
				case c == 0:
					diff.Count++
					oldIt.Next()
					newIt.Next()
				case c < 0:
					diff.Removed++
					oldIt.Next()
				default:
					diff.Added++
					diff.Count++
					newIt.Next()
				}
			}
		}
		return nil
	})
	if err != nil {
		return GenerationDiff{}, fmt.Errorf("failed to diff generations %d and %d: %w", oldGen, newGen, err)
	}
	return diff, nil
}

func keyIterator(txn *badger.Txn, prefix []byte) *badger.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return txn.NewIterator(opts)
}

// ReadMeta loads the persisted metadata. A fresh store returns the zero Meta.
func (s *Store) ReadMeta() (Meta, error) {
	var m Meta

	err := s.db.View(func(txn *badger.Txn) error {
		gen, err := getUint64(txn, metaGenerationKey)
		if err != nil {
			return err
		}
		count, err := getUint64(txn, metaEntryCountKey)
		if err != nil {
			return err
		}
		m.Generation = gen
		m.EntryCount = int64(count)

		item, err := txn.Get([]byte(metaLastRefreshKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", metaLastRefreshKey, err)
		}
		return item.Value(func(val []byte) error {
			t, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", metaLastRefreshKey, err)
			}
			m.LastRefresh = t
			return nil
		})
	})
	if err != nil {
		return Meta{}, err
	}
	return m, nil
}

// CommitMeta writes all metadata keys in one transaction.
// This is the point at which a new generation becomes the durable active set.
func (s *Store) CommitMeta(m Meta) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaGenerationKey), encodeUint64(m.Generation)); err != nil {
			return fmt.Errorf("failed to set %s: %w", metaGenerationKey, err)
		}
		if err := txn.Set([]byte(metaEntryCountKey), encodeUint64(uint64(m.EntryCount))); err != nil {
			return fmt.Errorf("failed to set %s: %w", metaEntryCountKey, err)
		}
		ts := m.LastRefresh.UTC().Format(time.RFC3339Nano)
		if err := txn.Set([]byte(metaLastRefreshKey), []byte(ts)); err != nil {
			return fmt.Errorf("failed to set %s: %w", metaLastRefreshKey, err)
		}
		return nil
	})
}

// Stats returns statistics about the store.
func (s *Store) Stats() StoreStats {
	lsm, vlog := s.db.Size()
	return StoreStats{
		SizeBytes: lsm + vlog,
		LSMBytes:  lsm,
		VLogBytes: vlog,
	}
}

// Compact triggers value log garbage collection.
// Returns nil when there was nothing to collect.
func (s *Store) Compact() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func getUint64(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt %s: %d bytes", key, len(val))
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
