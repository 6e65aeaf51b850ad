package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/kinohall/vodpipe/internal/asset"
	"github.com/kinohall/vodpipe/internal/cache"
	"github.com/kinohall/vodpipe/internal/config"
	"github.com/kinohall/vodpipe/internal/database"
	"github.com/kinohall/vodpipe/internal/events"
	"github.com/kinohall/vodpipe/internal/logging"
	"github.com/kinohall/vodpipe/internal/middleware"
	"github.com/kinohall/vodpipe/internal/pipeline"
	"github.com/kinohall/vodpipe/internal/scheduler"
	"github.com/kinohall/vodpipe/internal/storage"
	"github.com/kinohall/vodpipe/internal/tracing"
)

// API bundles the handler dependencies.
type API struct {
	assets *asset.Service
	pipe   *pipeline.Service
	db     *database.DB
	cfg    *config.Config
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	_, tracerCloser, err := tracing.Init("vodpipe-api", cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer tracerCloser.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	repo := database.NewRepository(db)

	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize storage")
	}

	cch, err := cache.New(cfg.Redis)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer cch.Close()

	publisher, err := events.New(cfg.Events)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to event broker")
	}
	defer publisher.Close()

	sched := scheduler.New()
	defer sched.Stop()

	assets := asset.NewService(repo, store, cch, publisher, cch, sched, cfg.Asset)
	pipe := pipeline.New(store, cfg.Pipeline)

	if err := os.MkdirAll(cfg.Pipeline.ScratchDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create scratch dir")
	}

	// Retry deferred storage purges for as long as the process lives.
	sched.ScheduleEvery(scheduler.OutboxDrainJob, cfg.Asset.OutboxInterval, assets.DrainOutbox)

	api := &API{assets: assets, pipe: pipe, db: db, cfg: cfg}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("forced shutdown")
	}

	logger.Info("server stopped")
}
