package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/config"
	"github.com/Darshan124-get/kisan--mitra/internal/connect"
	"github.com/Darshan124-get/kisan--mitra/internal/container"
	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/routes"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("Starting Kisan Mitra API server", "environment", cfg.Environment)

	cld, err := connect.CloudinaryCredentials(cfg)
	if err != nil {
		logger.Error("Failed to connect to Cloudinary", "error", err)
		os.Exit(1)
	}

	mongoClient, err := connect.MongoDBConnect(cfg)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to MongoDB successfully")

	verifier, err := helpers.NewTokenVerifier(cfg.AuthJWKSURL, cfg.AuthJWTSecret)
	if err != nil {
		logger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}
	defer verifier.Close()

	appContainer := container.NewContainer(logger, cld, mongoClient, verifier)

	// Geo and conflict queries depend on these indexes.
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 15*time.Second)
	if err := appContainer.Repo.EnsureServiceIndexes(indexCtx); err != nil {
		logger.Error("Failed to create service indexes", "error", err)
	}
	if err := appContainer.Repo.EnsureBookingIndexes(indexCtx); err != nil {
		logger.Error("Failed to create booking indexes", "error", err)
	}
	cancelIndex()

	router := routes.SetupRoutes(appContainer, cfg.AllowedOrigins, cfg.IsProduction())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	return slog.New(handler)
}
