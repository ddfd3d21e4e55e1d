package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/repositories"
)

// ErrInvalidSnapshot is returned by Replace for snapshots with malformed structure.
var ErrInvalidSnapshot = errors.New("snapshot: invalid snapshot")

// SnapshotServiceDeps bundles collaborators required by the snapshot service.
type SnapshotServiceDeps struct {
	Store      *content.Store
	Repository repositories.SnapshotRepository
	// SeedFile is read when the backend holds no snapshot. Empty means start empty.
	SeedFile string
	// Publisher is optional; when set, successful saves are announced through it.
	Publisher SnapshotEventPublisher
	Clock     func() time.Time
	Logger    *zap.Logger
}

type snapshotService struct {
	store     *content.Store
	repo      repositories.SnapshotRepository
	seedFile  string
	publisher SnapshotEventPublisher
	clock     func() time.Time
	logger    *zap.Logger

	// saveMu keeps backend writes in the order they were requested.
	saveMu   sync.Mutex
	stateMu  sync.RWMutex
	source   SnapshotSource
	lastFail string
}

var _ SnapshotService = (*snapshotService)(nil)

// NewSnapshotService constructs the snapshot service.
func NewSnapshotService(deps SnapshotServiceDeps) (SnapshotService, error) {
	if deps.Store == nil {
		return nil, errors.New("snapshot service: store is required")
	}
	if deps.Repository == nil {
		return nil, errors.New("snapshot service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &snapshotService{
		store:     deps.Store,
		repo:      deps.Repository,
		seedFile:  strings.TrimSpace(deps.SeedFile),
		publisher: deps.Publisher,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *snapshotService) Load(ctx context.Context) (SnapshotSource, error) {
	snap, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		s.store.Replace(snap)
		s.setSource(SourceBackend)
		s.logger.Info("snapshot loaded", zap.Int("pages", len(snap.Pages)), zap.Time("updated_at", snap.UpdatedAt))
		return SourceBackend, nil
	case !repositories.IsNotFound(err):
		return "", fmt.Errorf("snapshot service: load: %w", err)
	}

	if s.seedFile == "" {
		s.store.Replace(domain.NewSnapshot())
		s.setSource(SourceEmpty)
		s.logger.Warn("no snapshot stored, starting empty")
		return SourceEmpty, nil
	}
	seed, err := content.LoadSeed(s.seedFile, s.clock())
	if err != nil {
		return "", fmt.Errorf("snapshot service: seed: %w", err)
	}
	s.store.Replace(seed)
	s.setSource(SourceSeed)
	s.logger.Info("no snapshot stored, loaded seed", zap.String("seed_file", s.seedFile), zap.Int("pages", len(seed.Pages)))
	return SourceSeed, nil
}

func (s *snapshotService) Save(ctx context.Context) (time.Time, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap, rev := s.store.Checkpoint()
	now := s.clock()
	snap.UpdatedAt = now
	if err := s.repo.Save(ctx, snap); err != nil {
		s.recordFailure(err)
		return time.Time{}, fmt.Errorf("snapshot service: save: %w", err)
	}
	s.store.MarkSavedAt(rev, now)
	s.recordFailure(nil)
	s.logger.Info("snapshot saved", zap.Int("pages", len(snap.Pages)), zap.Time("updated_at", now))
	s.announce(ctx, "save", snap)
	return now, nil
}

func (s *snapshotService) Replace(ctx context.Context, snap domain.Snapshot) (time.Time, error) {
	snap = snap.Clone().Normalize()
	if err := validateSnapshot(snap); err != nil {
		return time.Time{}, err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	now := s.clock()
	snap.UpdatedAt = now
	if err := s.repo.Save(ctx, snap); err != nil {
		s.recordFailure(err)
		return time.Time{}, fmt.Errorf("snapshot service: replace: %w", err)
	}
	s.store.Replace(snap)
	s.recordFailure(nil)
	s.logger.Info("snapshot replaced", zap.Int("pages", len(snap.Pages)), zap.Time("updated_at", now))
	s.announce(ctx, "replace", snap)
	return now, nil
}

func (s *snapshotService) Status(context.Context) SnapshotStatus {
	snap := s.store.Snapshot()
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return SnapshotStatus{
		Dirty:       s.store.Dirty(),
		UpdatedAt:   snap.UpdatedAt,
		LoadedFrom:  s.source,
		LastSaveErr: s.lastFail,
		Categories:  len(snap.CategoryOrder),
		Pages:       len(snap.Pages),
	}
}

// announce publishes a saved event. The snapshot is already stored, so a publish failure
// is logged and not returned.
func (s *snapshotService) announce(ctx context.Context, reason string, snap domain.Snapshot) {
	if s.publisher == nil {
		return
	}
	id, err := s.publisher.PublishSnapshotSaved(ctx, SnapshotSavedEvent{
		Reason:     reason,
		SavedAt:    snap.UpdatedAt,
		Categories: len(snap.CategoryOrder),
		Pages:      len(snap.Pages),
	})
	if err != nil {
		s.logger.Warn("snapshot event publish failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Debug("snapshot event published", zap.String("message_id", id))
}

func (s *snapshotService) setSource(src SnapshotSource) {
	s.stateMu.Lock()
	s.source = src
	s.stateMu.Unlock()
}

func (s *snapshotService) recordFailure(err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err == nil {
		s.lastFail = ""
		return
	}
	s.lastFail = err.Error()
	s.logger.Error("snapshot save failed", zap.Error(err))
}

// validateSnapshot checks that every page listed in the menu is a well-formed id with
// metadata, appears once, and belongs to a listed category. Page ids and translation keys
// must stay out of the menu label namespace.
func validateSnapshot(snap domain.Snapshot) error {
	listed := make(map[string]struct{}, len(snap.CategoryOrder))
	for _, cat := range snap.CategoryOrder {
		if !domain.ValidIdentifier(cat) {
			return fmt.Errorf("%w: category id %q", ErrInvalidSnapshot, cat)
		}
		if _, dup := listed[cat]; dup {
			return fmt.Errorf("%w: category %q listed twice", ErrInvalidSnapshot, cat)
		}
		listed[cat] = struct{}{}
	}
	seen := make(map[string]string, len(snap.Pages))
	for cat, pages := range snap.MenuStructure {
		if _, ok := listed[cat]; !ok {
			return fmt.Errorf("%w: menu references unknown category %q", ErrInvalidSnapshot, cat)
		}
		for _, page := range pages {
			if !domain.ValidContentPrefix(page) {
				return fmt.Errorf("%w: page id %q", ErrInvalidSnapshot, page)
			}
			if other, dup := seen[page]; dup {
				return fmt.Errorf("%w: page %q listed in %q and %q", ErrInvalidSnapshot, page, other, cat)
			}
			seen[page] = cat
			if _, ok := snap.Pages[page]; !ok {
				return fmt.Errorf("%w: page %q has no metadata", ErrInvalidSnapshot, page)
			}
		}
	}
	for id, meta := range snap.Pages {
		if _, err := domain.ParseLayout(string(meta.Layout)); err != nil {
			return fmt.Errorf("%w: page %q: %v", ErrInvalidSnapshot, id, err)
		}
		if !domain.ValidContentPrefix(id) {
			return fmt.Errorf("%w: page id %q", ErrInvalidSnapshot, id)
		}
		if tk := meta.TranslationKey; tk != "" && !domain.ValidContentPrefix(tk) {
			return fmt.Errorf("%w: page %q translation key %q", ErrInvalidSnapshot, id, tk)
		}
	}
	return nil
}
