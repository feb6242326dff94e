package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"sap-sales-sync/internal/api"
	"sap-sales-sync/internal/api/handlers"
	"sap-sales-sync/internal/auth"
	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/db"
	"sap-sales-sync/internal/health"
	"sap-sales-sync/internal/logger"
	"sap-sales-sync/internal/metrics"
	"sap-sales-sync/internal/odata"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/scheduler"
	"sap-sales-sync/internal/service"
	"sap-sales-sync/internal/sync"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load and validate configuration first (before logger)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logger)

	logger.Info().
		Str("environment", cfg.Logger.Environment).
		Str("log_level", cfg.Logger.Level).
		Int("dynamic_sources", len(cfg.MultiAPI.Sources)).
		Msg("configuration loaded successfully")

	// Run migrations before connecting to database
	logger.Info().Msg("running database migrations")
	if err := db.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()
	database, err := db.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("database connected successfully")

	m := metrics.New()
	client := odata.NewClient(cfg.Remote.Username, cfg.Remote.Password, cfg.Remote.Timeout)
	registry := sync.NewRegistry(sync.DefaultSpecs(cfg.Remote)...)

	// Repositories
	upserter := repository.NewUpsertExecutor(database.Pool)
	runRepo := repository.NewSyncRunRepository(database.Pool)
	provisioner := repository.NewProvisioner(database.Pool)

	// Services
	syncService := service.NewSyncService(registry, client, upserter, runRepo, m)
	multiAPI := service.NewMultiAPISync(cfg.MultiAPI.Sources, client, provisioner, upserter, m)

	cronScheduler := scheduler.NewScheduler(syncService, cfg.Scheduler, m)
	if cfg.Scheduler.Enabled {
		if err := cronScheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
		defer cronScheduler.Stop()
	} else {
		logger.Info().Msg("scheduler disabled")
	}

	syncHandler := handlers.NewSyncHandler(syncService, cronScheduler, multiAPI)
	systemHandler := handlers.NewSystemHandler(syncService, cronScheduler, cfg.Scheduler, cfg.Logger.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(api.RequestIDMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.CORSMiddleware(cfg.CORS))
	router.Use(api.ErrorHandlerMiddleware())

	router.GET("/health", health.HealthHandler(database, cfg.Database.HealthTimeout))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handlers.RegisterRoutes(router, syncHandler, systemHandler, auth.APIKeyMiddleware(cfg.External))

	addr := cfg.GetBindAddress()
	// Use a listener so we can discover the selected port when PORT=0
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to bind listener")
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		logger.Fatal().Msg("failed to determine TCP address")
	}
	selectedPort := tcpAddr.Port

	srv := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: router,
	}

	go func() {
		logger.Info().
			Int("port", selectedPort).
			Str("addr", cfg.Server.Host).
			Strs("entities", registry.Names()).
			Msg("starting server")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Give outstanding requests a configured timeout to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")

	fmt.Printf("PORT=%d\n", selectedPort) //nolint:forbidigo // supervisor reads the selected port from stdout
}
