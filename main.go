package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/saquibalam09/kanban/api"
	"github.com/saquibalam09/kanban/config"
	"github.com/saquibalam09/kanban/storage"
	"github.com/saquibalam09/kanban/telemetry"
)

const serviceName = "kanban-board"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("dotenv: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("tracer: %v", err)
	}

	client := storage.New(cfg.TaskStoreURL, cfg.TaskStoreTimeout, nil)

	var rc *redis.Client
	if cfg.Redis != nil {
		rc = redis.NewClient(cfg.Redis)
		defer rc.Close()
	} else {
		logger.Info("REDIS_CONNECTION_STRING not set; task list is cached in process only")
	}
	queries := storage.NewQueries(client, rc, cfg.TasksCacheTTL, logger)
	if rc != nil {
		go queries.ListenInvalidations(ctx)
	}

	sessions := api.NewSessions(client, queries, cfg.SessionIdleTimeout, logger)
	go sessions.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	api.Register(e, api.Options{
		Sessions:      sessions,
		Queries:       queries,
		SessionSecret: cfg.SessionSecret,
		Secure:        !cfg.Debug,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           telemetry.HTTPHandler(e, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.ListenAddr).WithField("task_store", cfg.TaskStoreURL).Info("board server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}
