package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/handlers"
	"finitefield.org/manual/internal/platform/auth"
	"finitefield.org/manual/internal/platform/config"
	"finitefield.org/manual/internal/platform/events"
	pfirestore "finitefield.org/manual/internal/platform/firestore"
	"finitefield.org/manual/internal/platform/locale"
	"finitefield.org/manual/internal/platform/observability"
	"finitefield.org/manual/internal/platform/secrets"
	platformstorage "finitefield.org/manual/internal/platform/storage"
	"finitefield.org/manual/internal/render"
	"finitefield.org/manual/internal/repositories"
	firestoreRepo "finitefield.org/manual/internal/repositories/firestore"
	"finitefield.org/manual/internal/repositories/memory"
	redisRepo "finitefield.org/manual/internal/repositories/redis"
	"finitefield.org/manual/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	secretResolver, err := secrets.NewResolver(ctx, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise secret resolver: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = secretResolver.Close()
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(secretResolver.Resolve)))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", strings.Join(invalid.Fields(), ", "))
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("manual")

	buildInfo := services.BuildInfo{
		Version:     cfg.Build.Version,
		CommitSHA:   cfg.Build.CommitSHA,
		Environment: cfg.Build.Environment,
		StartedAt:   startedAt,
	}

	var probes []repositories.Probe

	snapshotRepo, closeSnapshots, snapshotProbe, err := openSnapshotRepository(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise snapshot repository", zap.String("backend", cfg.Snapshot.Backend), zap.Error(err))
	}
	defer func() {
		if err := closeSnapshots(); err != nil {
			logger.Warn("snapshot repository close error", zap.Error(err))
		}
	}()
	if snapshotProbe != nil {
		probes = append(probes, repositories.Probe{Name: "snapshot", Check: snapshotProbe})
	}

	var publisher services.SnapshotEventPublisher
	if topicID := strings.TrimSpace(cfg.Events.PubSubTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID(cfg))
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		publisher, err = events.NewPubSubSnapshotPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise snapshot publisher", zap.Error(err))
		}
	}

	store := content.NewStore()
	snapshotService, err := services.NewSnapshotService(services.SnapshotServiceDeps{
		Store:      store,
		Repository: snapshotRepo,
		SeedFile:   cfg.Snapshot.SeedFile,
		Publisher:  publisher,
		Logger:     logger.Named("snapshot"),
	})
	if err != nil {
		logger.Fatal("failed to initialise snapshot service", zap.Error(err))
	}
	loadCtx, cancelLoad := context.WithTimeout(ctx, 30*time.Second)
	source, err := snapshotService.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatal("failed to load content snapshot", zap.Error(err))
	}
	logger.Info("content snapshot loaded",
		zap.String("source", string(source)),
		zap.Int("categories", len(store.Categories())),
	)

	var imageService services.ImageService
	if bucketName := strings.TrimSpace(cfg.Storage.ImagesBucket); bucketName != "" {
		storageClient, err := platformstorage.NewClient(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		bucket, err := platformstorage.NewBucket(storageClient, bucketName)
		if err != nil {
			logger.Fatal("failed to initialise image bucket", zap.Error(err))
		}
		imageService, err = services.NewImageService(services.ImageServiceDeps{
			Store:         bucket,
			Bucket:        bucket.Name(),
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			MaxBytes:      cfg.Storage.MaxUploadBytes,
			Logger:        logger.Named("images"),
		})
		if err != nil {
			logger.Fatal("failed to initialise image service", zap.Error(err))
		}
		probes = append(probes, repositories.Probe{Name: "storage", Timeout: 3 * time.Second, Check: bucket.Ping})
	} else {
		logger.Info("image uploads disabled; no bucket configured")
	}

	exchangeService, err := services.NewExchangeService(services.ExchangeServiceDeps{
		Store:  store,
		Logger: logger.Named("exchange"),
	})
	if err != nil {
		logger.Fatal("failed to initialise exchange service", zap.Error(err))
	}

	healthRepo, err := repositories.NewHealthRepository(probes)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Build:            buildInfo,
	})
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	verifier, err := newTokenVerifier(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.String("mode", cfg.Security.AuthMode), zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier, auth.WithVerificationTimeout(cfg.Security.TokenTimeout))

	publicHandlers := handlers.NewPublicHandlers(store, render.NewRenderer(store), locale.NewResolver(cfg.Content.DefaultLanguage))
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminDeps{
		Authenticator:  authenticator,
		Store:          store,
		Snapshots:      snapshotService,
		Images:         imageService,
		Exchange:       exchangeService,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if systemService != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(systemService))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID(cfg)),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		middlewares = append(middlewares, cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router := handlers.NewRouter(
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("manual api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if store.Dirty() {
		logger.Warn("unsaved content changes discarded at shutdown")
	}
}

// openSnapshotRepository builds the configured snapshot backend together with its close
// function and an optional readiness check.
func openSnapshotRepository(ctx context.Context, cfg config.Config) (repositories.SnapshotRepository, func() error, func(context.Context) error, error) {
	noop := func() error { return nil }
	switch cfg.Snapshot.Backend {
	case config.BackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, noop, nil, err
		}
		repo, err := firestoreRepo.NewSnapshotRepository(provider, cfg.Snapshot.Collection, cfg.Snapshot.DocumentID)
		if err != nil {
			_ = provider.Close()
			return nil, noop, nil, err
		}
		return repo, provider.Close, repo.Ping, nil
	case config.BackendRedis:
		repo, err := redisRepo.Open(cfg.Snapshot.RedisURL, cfg.Snapshot.RedisKey)
		if err != nil {
			return nil, noop, nil, err
		}
		return repo, repo.Close, repo.Ping, nil
	case config.BackendMemory:
		return memory.NewSnapshotRepository(), noop, nil, nil
	default:
		return nil, noop, nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func projectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firebase.ProjectID)
}

func newTokenVerifier(ctx context.Context, cfg config.Config) (auth.TokenVerifier, error) {
	switch cfg.Security.AuthMode {
	case config.AuthSharedSecret:
		return auth.NewSharedSecretVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	case config.AuthFirebase:
		return auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Security.AuthMode)
	}
}
