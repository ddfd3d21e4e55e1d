// Package secrets resolves secret:// configuration references against Google Secret
// Manager, falling back to a local dotenv-style file during development.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// Scheme prefixes configuration values that must be resolved through a Resolver.
	Scheme = "secret://"

	defaultFallbackPath = ".secrets.local"
	meterName           = "finitefield.org/manual/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver fetches secret values and caches them for the life of the process.
type Resolver struct {
	client     accessClient
	clientOnce sync.Once
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	latency metric.Float64Histogram
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFallbackFile overrides the local fallback file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallbackPath = strings.TrimSpace(path) }
}

// WithClient injects a Secret Manager client, mainly for tests.
func WithClient(client accessClient) Option {
	return func(r *Resolver) { r.client = client }
}

// NewResolver builds a Resolver for projectID. The Secret Manager client is created on the
// first lookup; when that fails the resolver answers from the fallback file only.
func NewResolver(ctx context.Context, projectID string, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		projectID:    strings.TrimSpace(projectID),
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	latency, err := otel.GetMeterProvider().Meter(meterName).Float64Histogram(
		"secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"),
	)
	if err != nil {
		r.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	} else {
		r.latency = latency
	}

	return r, nil
}

func (r *Resolver) ensureClient(ctx context.Context) accessClient {
	r.clientOnce.Do(func() {
		if r.client != nil {
			return
		}
		client, err := newSecretManagerClient(ctx)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable; using fallback file only", zap.Error(err))
			return
		}
		r.client = client
		r.ownsClient = true
	})
	return r.client
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	r.clientOnce.Do(func() {})
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref, e.g. secret://manual-jwt or
// secret://manual-jwt?version=3&project=other.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	value, ok := r.cache[parsed.key()]
	r.mu.RUnlock()
	if ok {
		r.record(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}
	if project != "" {
		client := r.ensureClient(ctx)
		if client == nil {
			return r.resolveFallback(ctx, start, parsed)
		}
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.secret, parsed.version)
		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		switch {
		case err == nil && resp.GetPayload() != nil:
			value = strings.TrimSpace(string(resp.GetPayload().GetData()))
			r.store(parsed.key(), value)
			r.record(ctx, start, "remote")
			return value, nil
		case err == nil:
			return "", fmt.Errorf("secrets: empty payload for %s", parsed.canonical)
		case !fallbackAllowed(err):
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", parsed.canonical, err)
		}
		r.logger.Debug("secrets: remote lookup failed; trying fallback file", zap.String("secret", parsed.secret), zap.Error(err))
	}
	return r.resolveFallback(ctx, start, parsed)
}

func (r *Resolver) resolveFallback(ctx context.Context, start time.Time, parsed reference) (string, error) {
	value, ok := r.lookupFallback(parsed)
	if !ok {
		r.record(ctx, start, "error")
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	r.store(parsed.key(), value)
	r.record(ctx, start, "fallback")
	return value, nil
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) record(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	r.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// lookupFallback reads the fallback file once. Keys are bare secret names.
func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			r.fallbackErr = err
			return
		}
		r.fallback = values
	})
	if r.fallbackErr != nil {
		r.logger.Warn("secrets: fallback file unreadable", zap.String("path", r.fallbackPath), zap.Error(r.fallbackErr))
		return "", false
	}
	v, ok := r.fallback[ref.secret]
	return strings.TrimSpace(v), ok
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) key() string {
	return r.project + "/" + r.secret + "#" + r.version
}

// IsReference reports whether value should be resolved rather than used literally.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), Scheme)
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if !IsReference(raw) {
		return reference{}, fmt.Errorf("secrets: %q is not a %s reference", raw, Scheme)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	secret := strings.Trim(u.Host+u.Path, "/")
	if secret == "" || strings.Contains(secret, "/") {
		return reference{}, fmt.Errorf("secrets: invalid secret name in %q", raw)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: Scheme + secret,
		secret:    secret,
		version:   version,
		project:   strings.TrimSpace(u.Query().Get("project")),
	}, nil
}

// fallbackAllowed is true for failures that mean Secret Manager is unreachable for this
// process rather than that the secret is wrong.
func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
