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
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aistore/storefront/internal/cartstore"
	"github.com/aistore/storefront/internal/handlers"
	"github.com/aistore/storefront/internal/payments"
	"github.com/aistore/storefront/internal/platform/auth"
	"github.com/aistore/storefront/internal/platform/cache"
	"github.com/aistore/storefront/internal/platform/config"
	pfirestore "github.com/aistore/storefront/internal/platform/firestore"
	"github.com/aistore/storefront/internal/platform/jobs"
	"github.com/aistore/storefront/internal/platform/metrics"
	"github.com/aistore/storefront/internal/platform/observability"
	"github.com/aistore/storefront/internal/platform/secrets"
	"github.com/aistore/storefront/internal/repositories"
	firestoreRepo "github.com/aistore/storefront/internal/repositories/firestore"
	"github.com/aistore/storefront/internal/services"
	"github.com/aistore/storefront/internal/session"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(config.DefaultRequiredSecrets()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	collectors := metrics.New()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	redisStore := cache.New(cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisStore.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}()

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	categoryRepo, err := firestoreRepo.NewCategoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise category repository", zap.Error(err))
	}
	customerRepo, err := firestoreRepo.NewCustomerRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise customer repository", zap.Error(err))
	}

	gateway, err := payments.NewGateway(payments.GatewayConfig{
		APIKey:    cfg.PSP.StripeSecretKey,
		AccountID: cfg.PSP.StripeAccountID,
		Logger:    observability.EventLogger(logger.Named("payments")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}

	var events services.CheckoutEventPublisher
	topicID := strings.TrimSpace(cfg.PubSub.CheckoutTopic)
	if topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
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
		publisher, err := jobs.NewPubSubCheckoutPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise checkout publisher", zap.Error(err))
		}
		events = publisher
	} else {
		logger.Info("checkout event publishing disabled")
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    productRepo,
		Categories:  categoryRepo,
		Cache:       redisStore,
		CategoryTTL: cfg.Redis.CatalogTTL,
		Metrics:     collectors,
		Clock:       time.Now,
		Logger:      observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	customerService, err := services.NewCustomerService(services.CustomerServiceDeps{
		Customers: customerRepo,
		Payments:  gateway,
		Metrics:   collectors,
		Clock:     time.Now,
		Logger:    observability.EventLogger(logger.Named("customer")),
	})
	if err != nil {
		logger.Fatal("failed to initialise customer service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Products:          productRepo,
		Customers:         customerService,
		Payments:          gateway,
		Events:            events,
		Metrics:           collectors,
		BaseURL:           cfg.Storefront.BaseURL,
		Currency:          cfg.Storefront.Currency,
		ShippingCountries: cfg.Storefront.ShippingCountries,
		AllowPromotion:    cfg.Storefront.AllowPromotionCodes,
		Clock:             time.Now,
		Logger:            observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreProvider, redisStore, fetcher, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	signer, err := session.NewSigner(cfg.Session.SigningSecret, 0)
	if err != nil {
		logger.Fatal("failed to initialise session signer", zap.Error(err))
	}
	registry, err := session.NewRegistry(session.Config{
		Persister:     cartstore.NewCachePersister(redisStore, "", cfg.Redis.CartTTL),
		Fetcher:       catalogService,
		IdleTTL:       cfg.Session.IdleTTL,
		SweepInterval: cfg.Session.SweepInterval,
		FetchTimeout:  cfg.Storefront.StockFetchTimeout,
		Clock:         time.Now,
		Logger:        observability.EventLogger(logger.Named("session")),
	})
	if err != nil {
		logger.Fatal("failed to initialise session registry", zap.Error(err))
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.Run(sweepCtx)
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	catalogHandlers := handlers.NewCatalogHandlers(catalogService, cfg.Storefront.Currency)
	cartHandlers := handlers.NewCartHandlers(registry, cfg.Storefront.Currency)
	chatHandlers := handlers.NewChatHandlers(registry, catalogService)
	checkoutHandlers := handlers.NewCheckoutHandlers(checkoutService, registry)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		observability.TraceMiddleware(traceProjectID(cfg)),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		collectors.Middleware,
		session.Middleware(signer, session.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Redis.CartTTL,
		}),
		authenticator.OptionalFirebaseAuth(),
		observability.IdentityLoggerMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(collectors.Handler()),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithChatRoutes(chatHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithLandingRoutes(checkoutHandlers.LandingRoutes),
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
		serverLogger.Info("storefront listening", zap.String("environment", cfg.Environment))
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

	stopSweep()
	<-sweepDone
	registry.Close()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STOREFRONT_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STOREFRONT_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(provider *pfirestore.Provider, redisStore *cache.Store, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if redisStore != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check:   redisStore.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("STOREFRONT_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("STOREFRONT_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("STOREFRONT_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("STOREFRONT_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
