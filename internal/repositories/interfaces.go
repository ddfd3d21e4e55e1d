// Package repositories declares the persistence contracts used by services. Backend
// implementations live in the firestore, redis and memory sub-packages.
package repositories

import (
	"context"
	"errors"

	"finitefield.org/manual/internal/domain"
)

// ErrSnapshotNotFound is returned by Load when the backend holds no snapshot yet.
var ErrSnapshotNotFound = errors.New("snapshot repository: snapshot not found")

// SnapshotRepository stores the single global content snapshot.
type SnapshotRepository interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	// Save overwrites the stored snapshot wholesale.
	Save(ctx context.Context, snapshot domain.Snapshot) error
}

// HealthRepository probes backend dependencies for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err means the snapshot does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrSnapshotNotFound) {
		return true
	}
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports a transient backend failure.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
