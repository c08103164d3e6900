// ABOUTME: HistoryStore persists scan jobs in the signature store's BadgerDB
// ABOUTME: Provides CRUD, status filters, latest-per-root lookup, and age-based cleanup

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

const (
	historyPrefix     = "scan-job:"
	historyRootPrefix = "scan-root:"
)

// HistoryStore provides persistence for scan jobs.
type HistoryStore struct {
	db *badger.DB
}

// NewHistoryStore creates a history store on an open Store.
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{db: store.DB()}
}

// Save creates or replaces a job and points its root index at it.
func (s *HistoryStore) Save(ctx context.Context, job *types.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(historyPrefix+job.ID), data); err != nil {
			return fmt.Errorf("setting job key: %w", err)
		}
		if job.Root != "" {
			if err := txn.Set([]byte(historyRootPrefix+job.Root), []byte(job.ID)); err != nil {
				return fmt.Errorf("setting root index: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves a job by ID.
// Returns nil if the job doesn't exist.
func (s *HistoryStore) Get(ctx context.Context, id string) (*types.Job, error) {
	var job *types.Job

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(historyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting job: %w", err)
		}

		return item.Value(func(val []byte) error {
			job = &types.Job{}
			if err := json.Unmarshal(val, job); err != nil {
				return fmt.Errorf("unmarshaling job: %w", err)
			}
			return nil
		})
	})

	return job, err
}

// LatestForRoot returns the most recently saved job for root.
// Returns nil if root was never scanned.
func (s *HistoryStore) LatestForRoot(ctx context.Context, root string) (*types.Job, error) {
	var jobID string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(historyRootPrefix + root))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting root index: %w", err)
		}

		return item.Value(func(val []byte) error {
			jobID = string(val)
			return nil
		})
	})

	if err != nil || jobID == "" {
		return nil, err
	}

	return s.Get(ctx, jobID)
}

// List returns jobs newest first, optionally filtered by status.
// A limit of zero or less returns all matching jobs.
func (s *HistoryStore) List(ctx context.Context, limit int, statuses ...types.JobStatus) ([]*types.Job, error) {
	var jobs []*types.Job

	statusSet := make(map[types.JobStatus]bool)
	for _, status := range statuses {
		statusSet[status] = true
	}

	err := s.each(func(job *types.Job) {
		if len(statusSet) > 0 && !statusSet[job.Status] {
			return
		}
		jobs = append(jobs, job)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Delete removes a job by ID, and its root index if it points at the job.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(historyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting job for deletion: %w", err)
		}

		var job types.Job
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		}); err == nil && job.Root != "" {
			rootKey := []byte(historyRootPrefix + job.Root)
			if idx, err := txn.Get(rootKey); err == nil {
				if v, err := idx.ValueCopy(nil); err == nil && string(v) == id {
					if err := txn.Delete(rootKey); err != nil {
						return fmt.Errorf("deleting root index: %w", err)
					}
				}
			}
		}

		return txn.Delete(key)
	})
}

// Cleanup removes completed/failed jobs older than the given age.
// Returns the number of jobs deleted.
func (s *HistoryStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var toDelete []string

	err := s.each(func(job *types.Job) {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			toDelete = append(toDelete, job.ID)
		}
	})
	if err != nil {
		return 0, err
	}

	for i, id := range toDelete {
		if err := s.Delete(ctx, id); err != nil {
			return i, err
		}
	}

	return len(toDelete), nil
}

// Count returns the number of jobs in the store.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var count int64

	err := s.db.View(func(txn *badger.Txn) error {
		it := keyIterator(txn, []byte(historyPrefix))
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// each decodes every stored job, skipping malformed entries.
func (s *HistoryStore) each(fn func(*types.Job)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var job types.Job
				if err := json.Unmarshal(val, &job); err != nil {
					return nil
				}
				fn(&job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
