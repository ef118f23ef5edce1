/*
Package main is the entry point for the DM Chat Server.

It loads configuration, initializes the global logger, opens the message store,
wires the realtime Hub and chat service into the HTTP server, and shuts everything down
gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmchat/internal/app/chat"
	"dmchat/internal/app/db"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/store"
	"dmchat/internal/configs"
	"dmchat/internal/handler"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logx.InitWithLevel(cfg.IsDevelopment(), cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("message_store", cfg.MessageStore).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, closeStore := openStore(ctx, cfg)
	defer closeStore()

	storageService, err := storage.NewStorageService(ctx, storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:     cfg.S3PublicBaseURL,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize storage service")
	}

	hub := chat.NewHub()

	deps := &handler.AppDeps{
		Hub:            hub,
		Chat:           chat.NewService(dataStore, dataStore, storageService, hub),
		Users:          dataStore,
		StorageService: storageService,
		PoW:            pow.NewPoWManager(ctx, cfg.PowDifficulty),
		Config:         cfg,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.Router(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("DM Chat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hub.Shutdown()

	logx.Info("Server gracefully stopped.")
}

// openStore returns the configured Store and a function releasing its resources.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, func()) {
	if cfg.MessageStore == configs.StoreMemory {
		logx.Warn("Using the in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to the database")
	}

	return store.NewPostgres(pool), pool.Close
}
