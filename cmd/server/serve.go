package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"autodrive/internal/app"
	"autodrive/internal/config"
	"autodrive/internal/events"
	"autodrive/internal/handler"
	"autodrive/internal/ledger"
	"autodrive/internal/pricing"
	"autodrive/internal/repository/postgres"
	"autodrive/internal/service"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger := opts.cfg, opts.logger

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	nrApp := newNewRelic(cfg.NewRelic, logger)
	if nrApp != nil {
		defer nrApp.Shutdown(shutdownTimeout)
	}

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(startCtx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	ledgerClient, err := app.NewLedgerClient(cfg.Ledger, logger)
	if err != nil {
		return err
	}

	publisher, closePublisher := app.NewPublisher(cfg.Kafka, logger)
	defer func() {
		if err := closePublisher(); err != nil {
			logger.WithError(err).Warn("close event publisher")
		}
	}()

	stores := app.NewRedisStores(redisClient)
	stopTelemetry, err := app.StartTelemetry(cfg.MQTT, stores.Locations, logger)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	server := wireServer(db, stores, ledgerClient, publisher, nrApp, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func newNewRelic(cfg config.NewRelicConfig, logger logrus.FieldLogger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize New Relic")
		return nil
	}
	logger.WithField("app", cfg.AppName).Info("New Relic enabled")
	return nrApp
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	stores app.RedisStores,
	ledgerClient ledger.Client,
	publisher events.Publisher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *http.Server {
	// Initialize repositories.
	accountRepo := postgres.NewAccountRepository(db)
	vehicleRepo := postgres.NewVehicleRepository(db)
	tripRepo := postgres.NewTripRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	transactor := postgres.NewTransactor(db)

	// Initialize services.
	fares := pricing.NewCalculator(pricing.Rates{
		BaseFare:       cfg.Fare.BaseFare,
		PerKm:          cfg.Fare.PerKm,
		PerMinute:      cfg.Fare.PerMinute,
		PlatformFeeBps: cfg.Fare.PlatformFeeBps,
	})
	notificationService := service.NewNotificationService(publisher, logger)
	escrowService := service.NewEscrowService(ledgerClient, settlementRepo, accountRepo, stores.Locks, cfg.Ledger, logger)
	receiptService := service.NewReceiptService(escrowService, notificationService, cfg.Ledger.ReceiptsEnabled, logger)
	matchingService := service.NewMatchingService(vehicleRepo, stores.Locations, cfg.Trip.SearchRadiusKm, logger)
	vehicleService := service.NewVehicleService(vehicleRepo, accountRepo, stores.Locations, matchingService, cfg.Trip.AvgSpeedKmh, logger)
	tripService := service.NewTripService(
		transactor, tripRepo, vehicleRepo, matchingService, fares,
		escrowService, notificationService, receiptService, cfg.Trip, logger,
	)

	router := app.NewRouter(app.RouterDeps{
		TripHandler:    handler.NewTripHandler(tripService),
		VehicleHandler: handler.NewVehicleHandler(vehicleService),
		AccountHandler: handler.NewAccountHandler(accountRepo),
		Cache:          stores.Cache,
		Auth:           cfg.Auth,
		Logger:         logger,
		NewRelicApp:    nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
