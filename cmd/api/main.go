package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eventsnap/facefinder/internal/api"
	"github.com/eventsnap/facefinder/internal/archive"
	"github.com/eventsnap/facefinder/internal/config"
	"github.com/eventsnap/facefinder/internal/database"
	"github.com/eventsnap/facefinder/internal/face"
	"github.com/eventsnap/facefinder/internal/index"
	"github.com/eventsnap/facefinder/internal/repository"
	"github.com/eventsnap/facefinder/internal/session"
	"github.com/eventsnap/facefinder/internal/ws"
)

const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting FaceFinder API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	if err := database.MigrateUp(cfg.DatabaseURL, "facefinder"); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	detector, extractor, err := face.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build face pipeline: %w", err)
	}

	store, err := index.NewStore(cfg.IndexDir)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	builder := index.NewBuilder(detector, extractor, logger)
	manager := index.NewManager(builder, store, index.NewRegistry(), cfg.PhotoDir, logger)

	repo := repository.NewSessionRepository(pool)
	archiver := archive.NewWriter(cfg.PhotoDir, logger)
	hub := ws.NewHub()

	queue := session.NewQueue(repo, store, hub, logger, cfg.MatchWorkers)
	service := session.NewService(repo, detector, extractor, store, archiver, queue, session.Config{
		DefaultThreshold: cfg.MatchThreshold,
		MaxResultPhotos:  cfg.MaxResultPhotos,
		SessionTimeout:   cfg.SessionTimeout,
	}, logger)
	sweeper := session.NewSweeper(repo, service, logger, sweepInterval, cfg.SessionGrace)

	router := api.NewRouter(logger, &api.Dependencies{
		Sessions:   service,
		Queue:      queue,
		Sweeper:    sweeper,
		IndexAdmin: manager,
		Hub:        hub,
		DB:         pool,
	})
	router.Setup()

	// Sessions interrupted by the previous shutdown go back on the queue.
	if err := service.Resume(ctx); err != nil {
		logger.Warn("failed to resume interrupted sessions", slog.Any("error", err))
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	<-shutdownCtx.Done()
	logger.Info("server stopped")

	return nil
}
