// Package memory keeps the snapshot in process memory for local development and tests.
package memory

import (
	"context"
	"sync"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/repositories"
)

// SnapshotRepository is an in-process repositories.SnapshotRepository.
type SnapshotRepository struct {
	mu    sync.RWMutex
	snap  domain.Snapshot
	saved bool
	saves int
}

var _ repositories.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository returns an empty repository.
func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{}
}

// Load returns a copy of the last saved snapshot.
func (r *SnapshotRepository) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.saved {
		return domain.Snapshot{}, repositories.ErrSnapshotNotFound
	}
	return r.snap.Clone(), nil
}

// Save replaces the stored snapshot with a copy of snap.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := snap.Clone()
	r.mu.Lock()
	r.snap = copied
	r.saved = true
	r.saves++
	r.mu.Unlock()
	return nil
}

// Saves reports how many times Save succeeded.
func (r *SnapshotRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
