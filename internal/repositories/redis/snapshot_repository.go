// Package redis stores the content snapshot as one JSON value in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/repositories"
)

const defaultKey = "manual:content"

// Client is the subset of the go-redis API the repository needs.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// SnapshotRepository implements repositories.SnapshotRepository on a single Redis key.
type SnapshotRepository struct {
	client Client
	key    string
	closer func() error
}

var _ repositories.SnapshotRepository = (*SnapshotRepository)(nil)

// Open dials the Redis server described by rawURL (redis:// or rediss://).
func Open(rawURL, key string) (*SnapshotRepository, error) {
	opts, err := goredis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("redis snapshot repository: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	repo, err := NewSnapshotRepository(client, key)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	repo.closer = client.Close
	return repo, nil
}

// NewSnapshotRepository wraps an existing client. An empty key falls back to manual:content.
func NewSnapshotRepository(client Client, key string) (*SnapshotRepository, error) {
	if client == nil {
		return nil, errors.New("redis snapshot repository requires client")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultKey
	}
	return &SnapshotRepository{client: client, key: key}, nil
}

// Load reads and decodes the snapshot value.
func (r *SnapshotRepository) Load(ctx context.Context) (domain.Snapshot, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("%w: key %s", repositories.ErrSnapshotNotFound, r.key)
	}
	if err != nil {
		return domain.Snapshot{}, wrapError("snapshot.load", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot.load: decode payload: %w", err)
	}
	return snap.Normalize(), nil
}

// Save overwrites the snapshot value without expiry.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot.save: encode payload: %w", err)
	}
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return wrapError("snapshot.save", err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return wrapError("ping", r.client.Ping(ctx).Err())
}

// Close releases the connection pool created by Open.
func (r *SnapshotRepository) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Error classifies Redis failures. Server replies are permanent; transport failures are
// reported as unavailable.
type Error struct {
	op  string
	err error
}

func (e *Error) Error() string { return fmt.Sprintf("redis %s: %v", e.op, e.err) }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool { return errors.Is(e.err, goredis.Nil) }

func (e *Error) IsConflict() bool { return errors.Is(e.err, goredis.TxFailedErr) }

func (e *Error) IsUnavailable() bool {
	var reply goredis.Error
	return !e.IsNotFound() && !errors.As(e.err, &reply)
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{op: op, err: err}
}
