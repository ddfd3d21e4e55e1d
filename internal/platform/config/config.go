// Package config assembles runtime configuration from a .env file, the process
// environment and explicit overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 4 << 20
	defaultMaxUploadBytes  = 10 << 20
	defaultLogLevel        = "info"
	defaultCollection      = "manual"
	defaultDocumentID      = "content"
	defaultRedisKey        = "manual:content"
	defaultLanguage        = "ko"
	defaultTokenTimeout    = 5 * time.Second
)

// Snapshot backends.
const (
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendMemory    = "memory"
)

// Admin authentication modes.
const (
	AuthFirebase     = "firebase"
	AuthSharedSecret = "shared_secret"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Storage   StorageConfig
	Snapshot  SnapshotConfig
	Events    EventsConfig
	Security  SecurityConfig
	Content   ContentConfig
	Build     BuildConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures image uploads. An empty bucket disables the image endpoints.
type StorageConfig struct {
	ImagesBucket    string
	PublicBaseURL   string
	CredentialsFile string
	MaxUploadBytes  int64
}

// SnapshotConfig selects where the content snapshot is persisted.
type SnapshotConfig struct {
	Backend    string
	Collection string
	DocumentID string
	RedisURL   string
	RedisKey   string
	SeedFile   string
}

// EventsConfig configures save notifications. An empty topic disables them.
type EventsConfig struct {
	PubSubTopic string
}

// SecurityConfig controls admin authentication.
type SecurityConfig struct {
	AuthMode     string
	JWTSecret    string
	JWTIssuer    string
	TokenTimeout time.Duration
}

// ContentConfig holds content defaults.
type ContentConfig struct {
	DefaultLanguage string
}

// BuildConfig carries release metadata reported by the health endpoints.
type BuildConfig struct {
	Version     string
	CommitSHA   string
	Environment string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretResolver resolves secret:// references such as secret://manual-jwt.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError describes a failure to resolve a secret reference.
type SecretError struct {
	Field string
	Ref   string
	Err   error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s (%s): %v", e.Field, e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

const secretScheme = "secret://"

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secrets      SecretResolver
}

// WithEnvFile overrides the .env file path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithSecretResolver resolves secret:// values for the JWT secret and the Redis URL.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secrets = resolver }
}

// WithoutSystemEnv stops Load from consulting the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// Load resolves configuration. Precedence is explicit map, then process environment,
// then the .env file, then defaults.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := options.envMap[key]; ok {
			return v, true
		}
		if options.useSystemEnv {
			if v, ok := os.LookupEnv(key); ok {
				return v, true
			}
		}
		v, ok := dotEnv[key]
		return v, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "MANUAL_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "MANUAL_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "MANUAL_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "MANUAL_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "MANUAL_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			MaxBodyBytes:    int64WithDefault(lookup, "MANUAL_SERVER_MAX_BODY_BYTES", defaultMaxBodyBytes),
			AllowedOrigins:  csvWithDefault(lookup, "MANUAL_SERVER_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "MANUAL_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "MANUAL_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "MANUAL_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ImagesBucket:    stringWithDefault(lookup, "MANUAL_STORAGE_IMAGES_BUCKET", ""),
			PublicBaseURL:   strings.TrimRight(stringWithDefault(lookup, "MANUAL_STORAGE_PUBLIC_BASE_URL", ""), "/"),
			CredentialsFile: stringWithDefault(lookup, "MANUAL_STORAGE_CREDENTIALS_FILE", ""),
			MaxUploadBytes:  int64WithDefault(lookup, "MANUAL_STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		},
		Snapshot: SnapshotConfig{
			Backend:    strings.ToLower(stringWithDefault(lookup, "MANUAL_SNAPSHOT_BACKEND", BackendFirestore)),
			Collection: stringWithDefault(lookup, "MANUAL_SNAPSHOT_COLLECTION", defaultCollection),
			DocumentID: stringWithDefault(lookup, "MANUAL_SNAPSHOT_DOCUMENT_ID", defaultDocumentID),
			RedisURL:   stringWithDefault(lookup, "MANUAL_REDIS_URL", ""),
			RedisKey:   stringWithDefault(lookup, "MANUAL_REDIS_KEY", defaultRedisKey),
			SeedFile:   stringWithDefault(lookup, "MANUAL_SEED_FILE", ""),
		},
		Events: EventsConfig{
			PubSubTopic: stringWithDefault(lookup, "MANUAL_PUBSUB_TOPIC", ""),
		},
		Security: SecurityConfig{
			AuthMode:     strings.ToLower(stringWithDefault(lookup, "MANUAL_AUTH_MODE", AuthFirebase)),
			JWTSecret:    stringWithDefault(lookup, "MANUAL_JWT_SECRET", ""),
			JWTIssuer:    stringWithDefault(lookup, "MANUAL_JWT_ISSUER", ""),
			TokenTimeout: durationWithDefault(lookup, "MANUAL_AUTH_TOKEN_TIMEOUT", defaultTokenTimeout),
		},
		Content: ContentConfig{
			DefaultLanguage: strings.ToLower(stringWithDefault(lookup, "MANUAL_DEFAULT_LANGUAGE", defaultLanguage)),
		},
		Build: BuildConfig{
			Version:     stringWithDefault(lookup, "MANUAL_BUILD_VERSION", "dev"),
			CommitSHA:   stringWithDefault(lookup, "MANUAL_BUILD_COMMIT_SHA", "unknown"),
			Environment: stringWithDefault(lookup, "MANUAL_ENVIRONMENT", "local"),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	if err := resolveSecrets(ctx, options.secrets, map[string]*string{
		"Security.JWTSecret": &cfg.Security.JWTSecret,
		"Snapshot.RedisURL":  &cfg.Snapshot.RedisURL,
	}); err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecrets(ctx context.Context, resolver SecretResolver, fields map[string]*string) error {
	for field, target := range fields {
		ref := strings.TrimSpace(*target)
		if !strings.HasPrefix(ref, secretScheme) {
			continue
		}
		if resolver == nil {
			return &SecretError{Field: field, Ref: ref, Err: errSecretResolverNotConfigured}
		}
		value, err := resolver.ResolveSecret(ctx, ref)
		if err != nil {
			return &SecretError{Field: field, Ref: ref, Err: err}
		}
		*target = value
	}
	return nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		invalid = append(invalid, "Server.MaxBodyBytes")
	}
	switch cfg.Snapshot.Backend {
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
		if cfg.Snapshot.Collection == "" || cfg.Snapshot.DocumentID == "" {
			invalid = append(invalid, "Snapshot.DocumentID")
		}
	case BackendRedis:
		if cfg.Snapshot.RedisURL == "" {
			invalid = append(invalid, "Snapshot.RedisURL")
		}
	case BackendMemory:
	default:
		invalid = append(invalid, "Snapshot.Backend")
	}
	switch cfg.Security.AuthMode {
	case AuthFirebase:
		if cfg.Firebase.ProjectID == "" {
			invalid = append(invalid, "Firebase.ProjectID")
		}
	case AuthSharedSecret:
		if len(cfg.Security.JWTSecret) < 32 {
			invalid = append(invalid, "Security.JWTSecret")
		}
	default:
		invalid = append(invalid, "Security.AuthMode")
	}
	if cfg.Events.PubSubTopic != "" && cfg.Firebase.ProjectID == "" && cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Events.ProjectID")
	}
	if cfg.Storage.ImagesBucket != "" && cfg.Storage.MaxUploadBytes <= 0 {
		invalid = append(invalid, "Storage.MaxUploadBytes")
	}
	if cfg.Content.DefaultLanguage != "ko" && cfg.Content.DefaultLanguage != "en" {
		invalid = append(invalid, "Content.DefaultLanguage")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
