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
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/apps/internal/sweeps"
	jobsrunner "github.com/zenGate-Global/schoolhub/domains/jobs/be/runner"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/mail"
	notificationsrepo "github.com/zenGate-Global/schoolhub/domains/notifications/be/repo"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/metrics"
	"github.com/zenGate-Global/schoolhub/platform/go/persistence"
	"github.com/zenGate-Global/schoolhub/platform/go/setups"
)

type config struct {
	Port             string        `env:"PORT" envDefault:"3001"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	DBMaxConns       int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	Redis            setups.RedisConfig
	Sweeps           sweeps.Config
	SendGridAPIKey   string        `env:"SENDGRID_API_KEY"`
	MailFrom         string        `env:"MAIL_FROM" envDefault:"no-reply@schoolhub.app"`
	MailFromName     string        `env:"MAIL_FROM_NAME" envDefault:"SchoolHub"`
	RecoveryInterval time.Duration `env:"OUTBOX_RECOVERY_INTERVAL" envDefault:"5m"`
	MaxAttempts      int           `env:"NOTIFICATION_MAX_ATTEMPTS" envDefault:"10"`
	DisableScheduler bool          `env:"DISABLE_SCHEDULER" envDefault:"false"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "worker",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Sweeps.Location()
	if err != nil {
		logger.Fatal("resolve school timezone", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, ApplicationName: "schoolhub-worker", MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	stores, err := setups.NewStores(persistence.NewDB(pool))
	if err != nil {
		logger.Fatal("init stores", zap.Error(err))
	}

	redisClient, err := setups.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("init redis", zap.Error(err))
	}
	defer redisClient.Close()

	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = "worker"
	}
	ob := cfg.Sweeps.Outbox(redisClient, consumer)
	if err := ob.EnsureGroup(ctx); err != nil {
		logger.Fatal("ensure outbox consumer group", zap.Error(err))
	}

	var mailer dispatcher.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = mail.NewSendGridMailer(mail.SendGridConfig{
			APIKey:   cfg.SendGridAPIKey,
			FromName: cfg.MailFromName,
			FromAddr: cfg.MailFrom,
		})
	} else {
		logger.Warn("SENDGRID_API_KEY not set; emails are logged, not sent")
		mailer = mail.NewLogMailer(logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sweepMetrics := metrics.NewSweepMetrics(registry)

	deps := sweeps.Deps{Stores: stores, Redis: redisClient, Outbox: ob, Logger: logger}
	sweepService := sweeps.NewService(cfg.Sweeps, loc, deps)
	runner := jobsrunner.New(sweepService, sweepMetrics, cfg.Sweeps.RunnerConfig(loc), logger)

	notificationRepo := notificationsrepo.NewPostgresRepository(stores.Notifications, stores.Users)
	disp := dispatcher.New(ob, notificationRepo, mailer, dispatcher.Config{
		RecoveryInterval: cfg.RecoveryInterval,
		MaxAttempts:      cfg.MaxAttempts,
	}, logger)

	router := chi.NewRouter()
	router.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			logger.Warn("readiness: postgres unavailable", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			logger.Warn("readiness: redis unavailable", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting worker health server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := disp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()

	if cfg.DisableScheduler {
		logger.Warn("sweep scheduler disabled; only the dispatcher runs")
	} else if err := runner.Start(ctx); err != nil {
		logger.Fatal("start sweep scheduler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("sweep scheduler did not stop in time", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		logger.Error("dispatcher did not stop in time")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
