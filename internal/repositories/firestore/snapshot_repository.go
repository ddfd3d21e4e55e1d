// Package firestore stores the content snapshot as a single Firestore document.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"finitefield.org/manual/internal/domain"
	pfirestore "finitefield.org/manual/internal/platform/firestore"
	"finitefield.org/manual/internal/repositories"
)

const (
	defaultCollection = "manual"
	defaultDocumentID = "content"
	schemaVersion     = 1
)

// snapshotDocument keeps the snapshot as a JSON payload: translation keys contain dots,
// which Firestore would otherwise treat as field paths.
type snapshotDocument struct {
	Payload       string    `firestore:"payload"`
	SchemaVersion int       `firestore:"schemaVersion"`
	PageCount     int       `firestore:"pageCount"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// SnapshotRepository implements repositories.SnapshotRepository on one Firestore document.
type SnapshotRepository struct {
	provider   *pfirestore.Provider
	collection string
	documentID string
}

var _ repositories.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository constructs the repository. Empty names fall back to manual/content.
func NewSnapshotRepository(provider *pfirestore.Provider, collection, documentID string) (*SnapshotRepository, error) {
	if provider == nil {
		return nil, errors.New("snapshot repository requires firestore provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultCollection
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		documentID = defaultDocumentID
	}
	return &SnapshotRepository{provider: provider, collection: collection, documentID: documentID}, nil
}

// Load reads the snapshot document.
func (r *SnapshotRepository) Load(ctx context.Context) (domain.Snapshot, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	docSnap, err := client.Collection(r.collection).Doc(r.documentID).Get(ctx)
	if err != nil {
		wrapped := pfirestore.WrapError("snapshot.load", err)
		if pfirestore.IsNotFound(wrapped) {
			return domain.Snapshot{}, fmt.Errorf("%w: %s/%s", repositories.ErrSnapshotNotFound, r.collection, r.documentID)
		}
		return domain.Snapshot{}, wrapped
	}

	var doc snapshotDocument
	if err := docSnap.DataTo(&doc); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot.load: decode document: %w", err)
	}
	if doc.SchemaVersion > schemaVersion {
		return domain.Snapshot{}, fmt.Errorf("snapshot.load: unsupported schema version %d", doc.SchemaVersion)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(doc.Payload), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot.load: decode payload: %w", err)
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = doc.UpdatedAt
	}
	return snap.Normalize(), nil
}

// Save overwrites the snapshot document.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot.save: encode payload: %w", err)
	}
	doc := snapshotDocument{
		Payload:       string(payload),
		SchemaVersion: schemaVersion,
		PageCount:     len(snap.Pages),
		UpdatedAt:     snap.UpdatedAt.UTC(),
	}
	if _, err := client.Collection(r.collection).Doc(r.documentID).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("snapshot.save", err)
	}
	return nil
}

// Ping verifies the backend is reachable.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, r.collection, r.documentID)
}
