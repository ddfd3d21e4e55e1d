// Package services coordinates the content store with its persistence backends and
// object storage.
package services

import (
	"context"
	"io"
	"time"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/exchange"
)

// SnapshotSource reports where Load found the snapshot.
type SnapshotSource string

const (
	SourceBackend SnapshotSource = "backend"
	SourceSeed    SnapshotSource = "seed"
	SourceEmpty   SnapshotSource = "empty"
)

// SnapshotStatus summarises the in-memory snapshot for the admin status endpoint.
type SnapshotStatus struct {
	Dirty       bool           `json:"dirty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	LoadedFrom  SnapshotSource `json:"loadedFrom"`
	LastSaveErr string         `json:"lastSaveError,omitempty"`
	Categories  int            `json:"categories"`
	Pages       int            `json:"pages"`
}

// SnapshotService moves the content snapshot between memory and the backend.
type SnapshotService interface {
	Load(ctx context.Context) (SnapshotSource, error)
	Save(ctx context.Context) (time.Time, error)
	Replace(ctx context.Context, snapshot domain.Snapshot) (time.Time, error)
	Status(ctx context.Context) SnapshotStatus
}

// SnapshotSavedEvent announces that a new snapshot reached the backend, so other replicas
// can reload.
type SnapshotSavedEvent struct {
	Reason     string    `json:"reason"`
	SavedAt    time.Time `json:"savedAt"`
	Categories int       `json:"categories"`
	Pages      int       `json:"pages"`
}

// SnapshotEventPublisher delivers SnapshotSavedEvents.
type SnapshotEventPublisher interface {
	PublishSnapshotSaved(ctx context.Context, event SnapshotSavedEvent) (string, error)
}

// UploadImageCommand carries an image upload.
type UploadImageCommand struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadedImage describes a stored image.
type UploadedImage struct {
	Object      string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// ImageService stores and removes images referenced by page content.
type ImageService interface {
	Upload(ctx context.Context, cmd UploadImageCommand) (UploadedImage, error)
	Delete(ctx context.Context, ref string) error
}

// ExchangeService exports and imports the spreadsheet form of the content.
type ExchangeService interface {
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (exchange.Result, error)
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport is the readiness payload.
type SystemHealthReport struct {
	domain.HealthReport
	Version     string        `json:"version,omitempty"`
	CommitSHA   string        `json:"commitSha,omitempty"`
	Environment string        `json:"environment,omitempty"`
	Uptime      time.Duration `json:"uptime"`
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
