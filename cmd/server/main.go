package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/akhilaminc/bankfeed/internal/airwallex"
	"github.com/akhilaminc/bankfeed/internal/api"
	"github.com/akhilaminc/bankfeed/internal/config"
	"github.com/akhilaminc/bankfeed/internal/db"
	"github.com/akhilaminc/bankfeed/internal/provider"
	"github.com/akhilaminc/bankfeed/internal/skript"
	syncengine "github.com/akhilaminc/bankfeed/internal/sync"
)

// @title Bankfeed API
// @version 1.0
// @description API for syncing bank transactions from connected banking providers
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DBConnectionString == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING must be set)")
	}
	if !cfg.Airwallex.Enabled && !cfg.Skript.Enabled {
		logger.Warn("No banking provider is enabled")
	}

	// Initialize database
	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return store.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize sync services
	status := syncengine.NewStatusManager(store)
	publisher := syncengine.NewLogPublisher(logger)
	engine := syncengine.NewEngine(store, status, publisher, cfg.Sync, logger)
	validator := provider.NewValidator(logger)
	schedules := make(map[string]string)

	if cfg.Airwallex.Enabled {
		for _, client := range cfg.Airwallex.Clients {
			auth := airwallex.NewAuthenticator(cfg.Airwallex.APIBaseURL, client.ClientID, client.APIKey, store, logger, cfg.Sync.EnableAPILog)
			tokens := airwallex.NewTokenManager(store, auth, client.ClientID, cfg.Sync.TokenExpiryBuffer, logger)
			apiClient := provider.NewClient(cfg.Airwallex.APIBaseURL, tokens, store, logger,
				provider.WithAPILog(cfg.Sync.EnableAPILog),
				provider.WithSecrets(client.APIKey),
			)
			engine.Register("airwallex", airwallex.NewFeed(apiClient, client.ClientID, client.BankAccount, logger))
			validator.Register("airwallex/"+client.ClientID, tokens)
		}
		schedules["airwallex"] = cfg.Airwallex.Schedule
	}

	var skriptFeed *skript.Feed
	if cfg.Skript.Enabled {
		auth := skript.NewAuthenticator(cfg.Skript.TokenURL, cfg.Skript.ClientID, cfg.Skript.ClientSecret, cfg.Skript.Scope, store, logger, cfg.Sync.EnableAPILog)
		tokens := skript.NewTokenManager(store, auth, cfg.Skript.ConsumerID, cfg.Sync.TokenExpiryBuffer, logger)
		apiClient := provider.NewClient(cfg.Skript.APIBaseURL, tokens, store, logger,
			provider.WithAPILog(cfg.Sync.EnableAPILog),
			provider.WithSecrets(cfg.Skript.ClientSecret),
		)
		skriptFeed = skript.NewFeed(apiClient, store, cfg.Skript.ConsumerID, logger)
		engine.Register("skript", skriptFeed)
		validator.Register("skript/"+cfg.Skript.ConsumerID, tokens)
		schedules["skript"] = cfg.Skript.Schedule
	}

	// Start scheduled syncs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := syncengine.NewScheduler(engine, status, schedules, logger)
	scheduler.Start(ctx)

	// Setup router
	var accounts api.AccountLister
	if skriptFeed != nil {
		accounts = skriptFeed
	}
	handler := api.NewHandler(engine, status, store, accounts, validator, logger)
	router := api.SetupRouter(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("Database close failed: %v", err)
	}
	logger.Info("Server exited properly")
}

func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
