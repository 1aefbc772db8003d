/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bar inventory server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logger, catalog and SQLite store
  3. Choose the label lock (Redis when REDIS_ADDR is set) and evidence store
  4. Build ledger, reconciler, movement log and oversight
  5. Start the alert monitor
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the alert monitor
  4. Close database, Redis and storage clients
  5. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ./server -db="./data/barstock.db"

  # Run with in-memory database
  JWT_SECRET=dev ./server -db=":memory:"

ENVIRONMENT:
  See config/config.go for every key and its default.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/api"
	"github.com/warp/barstock/config"
	"github.com/warp/barstock/evidence"
	"github.com/warp/barstock/inventory"
	"github.com/warp/barstock/locking"
	"github.com/warp/barstock/shift"
	"github.com/warp/barstock/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := config.NewLogger(cfg.LogLevel, os.Stdout)

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load catalog")
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	ctx := context.Background()

	// Writer lock
	var locker inventory.Locker = locking.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).WithField("addr", cfg.RedisAddr).Fatal("Failed to connect to Redis")
		}
		locker = locking.NewRedis(rdb, locking.WithLogger(logger))
		logger.WithField("addr", cfg.RedisAddr).Info("Using Redis label locks")
	}

	// Evidence
	var photos inventory.EvidenceStore = evidence.NewMemory()
	if cfg.EvidenceProvider == config.EvidenceGCS {
		gcs, err := evidence.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON, evidence.WithLogger(logger))
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize evidence storage")
		}
		defer gcs.Close()
		photos = gcs
		logger.WithField("bucket", cfg.GCSBucket).Info("Using GCS evidence storage")
	}

	opts := []inventory.Option{
		inventory.WithCalendar(shift.NewCalendar(cfg.Timezone)),
		inventory.WithLocker(locker),
		inventory.WithLogger(logger),
		inventory.WithTolerance(cfg.Tolerance),
	}
	ledger := inventory.NewLedger(store, catalog, opts...)
	reconciler := inventory.NewReconciler(store, catalog, opts...)
	movements := inventory.NewMovementLog(store, catalog)
	oversight := inventory.NewOversight(ledger, movements, reconciler)

	restaurants := config.Restaurants()
	configured := make([]inventory.LocationID, len(restaurants))
	for i, r := range restaurants {
		configured[i] = r.ID
	}
	monitor := api.NewAlertMonitor(oversight, cfg.AlertScanInterval, logger, configured...)
	monitor.Start()
	defer monitor.Stop()

	// Initialize handler
	handler := api.NewHandler(api.Deps{
		Ledger:      ledger,
		Movements:   movements,
		Reconciler:  reconciler,
		Oversight:   oversight,
		Evidence:    photos,
		Catalog:     catalog,
		Restaurants: restaurants,
		Report:      cfg.ReportOptions(),
		Monitor:     monitor,
		Logger:      logger,
	})

	// Create router
	router := api.NewRouter(handler, api.NewAuthenticator(cfg.JWTSecret), api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"port":     *port,
			"db":       *dbPath,
			"timezone": cfg.Timezone.String(),
			"shift":    oversight.CurrentShift(),
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server stopped")
}
