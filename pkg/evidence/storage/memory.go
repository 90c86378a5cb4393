package storage

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/covenant/pkg/evidence"
)

// MemoryStorage implements evidence.Storage with an in-memory slice.
type MemoryStorage struct {
	entries []*evidence.AuditEntry
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Append stores a copy of the entry.
func (s *MemoryStorage) Append(ctx context.Context, entry *evidence.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewStorageError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if want := int64(len(s.entries)) + 1; entry.Sequence != want {
		return evidence.NewStorageError("memory", "append",
			fmt.Errorf("%w: got sequence %d, want %d", evidence.ErrSequenceConflict, entry.Sequence, want))
	}
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// Query retrieves copies of the entries matching the query.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.AuditEntry, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*evidence.AuditEntry
	for _, e := range s.entries {
		if query.Matches(e) {
			matched = append(matched, e)
		}
	}
	if query.Descending() {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := query.Offset
	if start > len(matched) {
		return []*evidence.AuditEntry{}, nil
	}
	end := len(matched)
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}

	results := make([]*evidence.AuditEntry, 0, end-start)
	for _, e := range matched[start:end] {
		results = append(results, e.Clone())
	}
	return results, nil
}

// Count returns the number of entries matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if query.Matches(e) {
			n++
		}
	}
	return n, nil
}

// Last returns the most recent entry, or nil.
func (s *MemoryStorage) Last(ctx context.Context) (*evidence.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[len(s.entries)-1].Clone(), nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}
