package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spectra-monitor/internal/api"
	"spectra-monitor/internal/insights"
	"spectra-monitor/internal/session"
	"spectra-monitor/internal/store"
	"spectra-monitor/internal/worker"
	"spectra-monitor/pkg/config"
	"spectra-monitor/pkg/db"
	"spectra-monitor/pkg/logger"
)

func main() {
	if err := logger.Init(os.Getenv("GO_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", logger.Err(err))
	}

	logger.Info("Configuration loaded",
		logger.String("environment", cfg.Environment),
		logger.String("port", cfg.Port),
	)

	dbConn, err := db.NewPostgresConnection(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("Error closing database connection", logger.Err(err))
		}
	}()
	logger.Info("Connected to PostgreSQL")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Migrate(migrateCtx, dbConn); err != nil {
		cancelMigrate()
		logger.Fatal("Failed to run schema migration", logger.Err(err))
	}
	cancelMigrate()

	redisClient, err := db.NewRedisConnection(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", logger.Err(err))
		}
	}()
	logger.Info("Connected to Redis")

	minioClient, err := db.NewMinioClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to MinIO", logger.Err(err))
	}
	logger.Info("Connected to MinIO")

	telemetry := store.NewPostgres(dbConn)

	hub := session.NewHub()
	events := session.NewRouter(hub, telemetry, redisClient, cfg.OfflineGrace)
	defer events.Close()

	clusterCtx, stopCluster := context.WithCancel(context.Background())
	defer stopCluster()
	go events.ListenCluster(clusterCtx)

	var provider insights.Provider
	if cfg.GeminiAPIKey != "" {
		provider = insights.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel)
		logger.Info("AI insights enabled", logger.String("model", cfg.GeminiModel))
	} else {
		provider = insights.NewMockProvider()
		logger.Warn("GEMINI_API_KEY not set, AI insights run in mock mode")
	}
	insightsService := insights.NewService(provider)

	archiver := worker.NewArchiver(minioClient, telemetry)
	workerPool := worker.NewWorkerPool(cfg, telemetry, events, archiver)
	workerPool.Start()
	defer workerPool.Stop()

	apiServer := api.NewServer(cfg, telemetry, hub, events, insightsService, dbConn, redisClient)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting monitoring server",
			logger.String("port", cfg.Port),
			logger.String("address", fmt.Sprintf("http://localhost:%s", cfg.Port)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down monitoring server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.Err(err))
	}

	logger.Info("Monitoring server stopped")
}
