package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/contracts"
	limitshandler "github.com/zenGate-Global/schoolhub/domains/limits/be/handler"
	limitsrepo "github.com/zenGate-Global/schoolhub/domains/limits/be/repo"
	limitsservice "github.com/zenGate-Global/schoolhub/domains/limits/be/service"
	schoolsrepo "github.com/zenGate-Global/schoolhub/domains/schools/be/repo"
	schoolsservice "github.com/zenGate-Global/schoolhub/domains/schools/be/service"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/schoolhub/platform/go/middleware"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/setups"
	platformstorage "github.com/zenGate-Global/schoolhub/platform/go/storage"
	tenantmiddleware "github.com/zenGate-Global/schoolhub/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	DBStmtTimeout   time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	EnvKey          string        `env:"ENV_KEY,required"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	StorageMeter    string        `env:"STORAGE_METER" envDefault:"documents"` // documents | gcs
	StorageBucket   string        `env:"STORAGE_BUCKET"`                       // required when STORAGE_METER=gcs
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:       cfg.DatabaseURL,
		ApplicationName:  "schoolhub-api",
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStmtTimeout,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	db := persistence.NewDB(pool)
	stores, err := setups.NewStores(db)
	if err != nil {
		logger.Fatal("init stores", zap.Error(err))
	}

	schoolService := schoolsservice.New(schoolsrepo.NewPostgresRepository(stores.Schools), cfg.EnvKey)

	var meter limitsservice.UsageMeter
	switch cfg.StorageMeter {
	case "gcs":
		if cfg.StorageBucket == "" {
			logger.Fatal("storage bucket required when STORAGE_METER=gcs")
		}
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		gcsMeter := platformstorage.NewGCSUsageMeter(gcsClient, cfg.StorageBucket, schoolService)
		if err := gcsMeter.CheckBucket(ctx); err != nil {
			logger.Fatal("storage bucket unavailable", zap.Error(err))
		}
		meter = gcsMeter
	case "documents":
		meter = limitsrepo.NewDocumentMeter(stores.Resources)
	default:
		logger.Fatal("invalid STORAGE_METER (use documents or gcs)", zap.String("meter", cfg.StorageMeter))
	}

	limitsRepo := limitsrepo.NewPostgresRepository(db, stores.Schools, stores.Subscriptions, stores.Resources)
	limitsService := limitsservice.New(limitsRepo, meter, logger)
	limitsHTTPHandler := limitshandler.New(limitsService, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(registry, "api")

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSOrigins),
		httpMetrics.Middleware,
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", metrics.Handler(registry))

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(buildAuthMiddleware(cfg))
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(tenantmiddleware.WithTenant(schoolService, tenantmiddleware.Config{
		CacheTTL: time.Minute,
	}))

	limitsValidator := mustNewSpecValidator(logger, "limits")
	apiRouter.Group(func(r chi.Router) {
		r.Use(limitsValidator)
		limitsHTTPHandler.Register(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// mustNewSpecValidator loads the embedded contract and builds the request validator middleware
// for the routes it describes.
func mustNewSpecValidator(logger *zap.Logger, name string) func(http.Handler) http.Handler {
	spec, err := contracts.Load(name)
	if err != nil {
		logger.Fatal("load openapi contract", zap.String("name", name), zap.Error(err))
	}
	logSecuritySchemes(logger, name, spec)

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSpec,
		},
	})
}

func logSecuritySchemes(logger *zap.Logger, name string, spec *openapi3.T) {
	if spec.Components.SecuritySchemes == nil {
		spec.Components.SecuritySchemes = openapi3.SecuritySchemes{}
	}

	if _, ok := spec.Components.SecuritySchemes["bearerAuth"]; !ok {
		spec.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:   "http",
				Scheme: "bearer",
			},
		}
		logger.Warn("injecting default bearerAuth security scheme", zap.String("contract", name))
	}

	names := make([]string, 0, len(spec.Components.SecuritySchemes))
	for name := range spec.Components.SecuritySchemes {
		names = append(names, name)
	}
	logger.Info("loaded security schemes", zap.String("contract", name), zap.Strings("names", names))
}
