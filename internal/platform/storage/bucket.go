// Package storage writes and deletes uploaded images in Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"finitefield.org/manual/internal/platform/config"
)

// ErrObjectNotFound is returned when deleting an object that does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Bucket is a Cloud Storage bucket holding uploaded images.
type Bucket struct {
	client *gcs.Client
	name   string
}

// NewClient creates a Cloud Storage client from cfg.
func NewClient(ctx context.Context, cfg config.StorageConfig) (*gcs.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}
	return client, nil
}

// NewBucket binds client to the named bucket.
func NewBucket(client *gcs.Client, name string) (*Bucket, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &Bucket{client: client, name: name}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Put streams body into object with the given content type. Objects are immutable once
// written, so they are served with a long cache lifetime.
func (b *Bucket) Put(ctx context.Context, object, contentType string, body io.Reader) error {
	w := b.client.Bucket(b.name).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return nil
}

// Delete removes object.
func (b *Bucket) Delete(ctx context.Context, object string) error {
	err := b.client.Bucket(b.name).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", object, err)
	}
	return nil
}

// PublicURL returns the URL under which object is served.
func (b *Bucket) PublicURL(baseURL, object string) string {
	return PublicURL(baseURL, b.name, object)
}

// Ping reads the bucket attributes to confirm the bucket is reachable.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.client.Bucket(b.name).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: bucket %s: %w", b.name, err)
	}
	return nil
}
