package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and dev mode.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[uuid.UUID]*Entry)}
}

// RecordSubmission inserts a new journal entry.
func (r *MemoryRepository) RecordSubmission(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return fmt.Errorf("journal: duplicate entry %s", entry.ID)
	}
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

// MarkOutcome sets the terminal status of an entry.
func (r *MemoryRepository) MarkOutcome(ctx context.Context, id uuid.UUID, status, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("journal: unknown entry %s", id)
	}
	now := time.Now().UTC()
	entry.Status = status
	entry.Detail = detail
	entry.ResolvedAt = &now
	return nil
}

// ListRecent returns the newest entries first.
func (r *MemoryRepository) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	out := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }

var _ Repository = (*MemoryRepository)(nil)
