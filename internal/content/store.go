// Package content holds the in-memory content snapshot: translations, visibility flags,
// page metadata and menu ordering, together with the editing operations the admin API
// performs on it.
package content

import (
	"errors"
	"sync"
	"time"

	"finitefield.org/manual/internal/domain"
)

var (
	// ErrInvalidID is returned when a category or page identifier is malformed.
	ErrInvalidID = errors.New("content: identifier must contain only lowercase letters, digits and hyphens")
	// ErrReservedPrefix is returned when a page id or translation key would place content
	// keys in the menu label namespace.
	ErrReservedPrefix = errors.New("content: identifier is reserved for menu labels")
	// ErrInvalidLayout is returned for unsupported layout tags.
	ErrInvalidLayout = errors.New("content: unsupported layout")
	// ErrInvalidLanguage is returned for unsupported language codes.
	ErrInvalidLanguage = errors.New("content: unsupported language")
	// ErrInvalidKey is returned for empty translation keys.
	ErrInvalidKey = errors.New("content: translation key is required")
	// ErrCategoryExists is returned when adding a duplicate category.
	ErrCategoryExists = errors.New("content: category already exists")
	// ErrCategoryNotFound is returned when the category does not exist.
	ErrCategoryNotFound = errors.New("content: category not found")
	// ErrPageExists is returned when adding a duplicate page.
	ErrPageExists = errors.New("content: page already exists")
	// ErrPageNotFound is returned when the page does not exist.
	ErrPageNotFound = errors.New("content: page not found")
	// ErrNotPermutation is returned when a reorder request adds, drops or repeats ids.
	ErrNotPermutation = errors.New("content: new order must be a permutation of the current order")
	// ErrInvalidItem is returned for malformed item operations.
	ErrInvalidItem = errors.New("content: invalid item")
)

// Store is the in-memory content snapshot shared by the public and admin handlers.
type Store struct {
	mu    sync.RWMutex
	snap  domain.Snapshot
	dirty bool
	rev   uint64
	clock func() time.Time
}

// Option customises Store construction.
type Option func(*Store)

// WithClock injects the clock used for page timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSnapshot seeds the store with an initial snapshot.
func WithSnapshot(snap domain.Snapshot) Option {
	return func(s *Store) {
		s.snap = snap.Clone().Normalize()
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		snap:  domain.NewSnapshot().Normalize(),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Replace swaps the whole state for snap and clears the dirty flag.
func (s *Store) Replace(snap domain.Snapshot) {
	normalized := snap.Clone().Normalize()
	s.mu.Lock()
	s.snap = normalized
	s.dirty = false
	s.rev++
	s.mu.Unlock()
}

// Apply swaps the whole state for snap as an edit: the store becomes dirty until saved.
func (s *Store) Apply(snap domain.Snapshot) {
	normalized := snap.Clone().Normalize()
	s.mu.Lock()
	normalized.UpdatedAt = s.snap.UpdatedAt
	s.snap = normalized
	s.dirty = true
	s.rev++
	s.mu.Unlock()
}

// Dirty reports whether the state changed since the last Replace or MarkSaved.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkSaved records a successful save at the given time.
func (s *Store) MarkSaved(at time.Time) {
	s.mu.Lock()
	s.snap.UpdatedAt = at.UTC()
	s.dirty = false
	s.mu.Unlock()
}

// Checkpoint returns a deep copy of the current state together with its revision,
// for use with MarkSavedAt.
func (s *Store) Checkpoint() (domain.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), s.rev
}

// MarkSavedAt records that the state at revision rev was saved. The store stays dirty
// when it was edited after the checkpoint was taken.
func (s *Store) MarkSavedAt(rev uint64, at time.Time) {
	s.mu.Lock()
	s.snap.UpdatedAt = at.UTC()
	if s.rev == rev {
		s.dirty = false
	}
	s.mu.Unlock()
}

// UpdatedAt returns the timestamp of the last save or load.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.UpdatedAt
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// mutate runs fn under the write lock and marks the store dirty when fn succeeds.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	s.dirty = true
	s.rev++
	return nil
}
