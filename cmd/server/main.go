package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/storefront-cart/config"
	"github.com/ikkim/storefront-cart/internal/app/controller"
	"github.com/ikkim/storefront-cart/internal/app/repository"
	"github.com/ikkim/storefront-cart/internal/db"
	"github.com/ikkim/storefront-cart/internal/gateway"
	"github.com/ikkim/storefront-cart/internal/middleware"
	"github.com/ikkim/storefront-cart/internal/router"
	"github.com/ikkim/storefront-cart/internal/scheduler"
	"github.com/ikkim/storefront-cart/internal/session"
	ws "github.com/ikkim/storefront-cart/internal/websocket"
	"github.com/ikkim/storefront-cart/pkg/logger"
	"github.com/ikkim/storefront-cart/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := cfg.Log.Level
	if logLevel == "" {
		logLevel = "info"
		if cfg.Server.Environment == "development" {
			logLevel = "debug"
		}
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      cfg.Log.Format,
		EnableColor: cfg.Log.Format == "console",
	})

	logger.Info("Starting storefront cart server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
		"storage":     cfg.Storage.Driver,
		"upstream":    cfg.Upstream.BaseURL,
	})

	// Guest cart storage
	storage, purger, closeStorage, err := openStorage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize guest cart storage", err, map[string]interface{}{
			"driver": cfg.Storage.Driver,
		})
	}
	defer closeStorage()

	// Storefront API
	client, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, nil)
	if err != nil {
		logger.Fatal("Failed to create storefront client", err)
	}

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	registry := session.NewRegistry(session.Options{
		Storage:          storage,
		Upstream:         session.ClientFactory(client),
		KeyPrefix:        cfg.Cart.KeyPrefix,
		GuestCartTTL:     cfg.Cart.GuestCartTTL,
		OperationTimeout: cfg.Cart.OperationTimeout,
		Connected:        hub.Connected,
	})

	janitor := scheduler.NewSessionJanitor(cfg.Session.JanitorSpec, cfg.Session.IdleTTL, registry, purger)
	if err := janitor.Start(); err != nil {
		logger.Fatal("Failed to start session janitor", err)
	}
	defer janitor.Stop()

	// Initialize controllers
	cartController := controller.NewCartController(client)
	sessionController := controller.NewSessionController()
	socketController := controller.NewCartSocketController(hub, cfg.CORS.AllowedOrigins)

	// Initialize middleware
	sessionMiddleware := middleware.NewSessionMiddleware(registry, cfg.Session)

	// Setup router
	r := router.NewRouter(
		cartController,
		sessionController,
		socketController,
		sessionMiddleware,
		cfg,
	)
	engine := r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Cart.OperationTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown did not complete", err)
	}
	logger.Info("Server stopped successfully")
}

// openStorage builds the guest cart storage for STORAGE_DRIVER. purger is
// non-nil for drivers without native key expiry.
func openStorage(cfg *config.Config) (repository.Storage, scheduler.ExpiredPurger, func(), error) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case "redis":
		if err := redis.Init(&cfg.Redis); err != nil {
			return nil, nil, noop, err
		}
		closeRedis := func() {
			if err := redis.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}
		return repository.NewRedisStorage(redis.GetClient()), nil, closeRedis, nil

	case "gorm":
		if err := db.Initialize(&cfg.Database); err != nil {
			return nil, nil, noop, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", err)
			}
		}
		if err := db.Migrate(db.GetDB()); err != nil {
			closeDB()
			return nil, nil, noop, err
		}
		storage := repository.NewGormStorage(db.GetDB())
		return storage, storage, closeDB, nil

	case "file":
		storage, err := repository.NewFileStorage(cfg.Storage.FileDir)
		if err != nil {
			return nil, nil, noop, err
		}
		return storage, nil, noop, nil

	case "memory":
		logger.Warn("Using in-memory guest cart storage; carts are lost on restart")
		return repository.NewMemoryStorage(), nil, noop, nil
	}
	return nil, nil, noop, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}
