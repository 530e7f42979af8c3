package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/novavida/novavida-backend/api/routes"
	internalaccounts "github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/activation"
	"github.com/novavida/novavida-backend/internal/coins"
	"github.com/novavida/novavida-backend/internal/commission"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/internal/orders"
	"github.com/novavida/novavida-backend/internal/purge"
	"github.com/novavida/novavida-backend/internal/reporting"
	"github.com/novavida/novavida-backend/pkg/bigquery"
	"github.com/novavida/novavida-backend/pkg/config"
	"github.com/novavida/novavida-backend/pkg/db"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/migrate"
	"github.com/novavida/novavida-backend/pkg/outbox"
	"github.com/novavida/novavida-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gdb := dbClient.DB()
	accountsRepo := internalaccounts.NewRepository(gdb)
	ordersRepo := orders.NewRepository(gdb)
	ledgerRepo := ledger.NewRepository(gdb)
	payoutsRepo := commission.NewPayoutRepository(gdb)
	purgeRepo := purge.NewRepository(gdb)
	activationRepo := activation.NewRepository(gdb)
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerSvc, err := ledger.NewService(ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	accountsSvc, err := internalaccounts.NewService(accountsRepo, ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}
	activationSvc, err := activation.NewService(accountsRepo, ledgerSvc, activationRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create activation service", err)
		os.Exit(1)
	}

	// Analytics export is optional. Without a GCP project the engine and the
	// purge service simply skip fact recording.
	var payoutRecorder commission.PayoutRecorder
	var purgeRecorder purge.RunRecorder
	if cfg.GCP.ProjectID != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()

		writer, err := reporting.New(bqClient, reporting.Config{
			PayoutsTable: cfg.BigQuery.PayoutsTable,
			PurgesTable:  cfg.BigQuery.PurgesTable,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create reporting writer", err)
			os.Exit(1)
		}
		payoutRecorder = writer
		purgeRecorder = writer
	}

	engine, err := commission.NewEngine(commission.EngineConfig{
		Runner:   dbClient,
		Orders:   ordersRepo,
		Accounts: accountsRepo,
		Ledger:   ledgerRepo,
		Payouts:  payoutsRepo,
		Outbox:   outboxSvc,
		Recorder: payoutRecorder,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission engine", err)
		os.Exit(1)
	}

	purgeSvc, err := purge.NewService(purge.Config{
		Runner:   dbClient,
		Accounts: accountsRepo,
		Ledger:   ledgerRepo,
		Repo:     purgeRepo,
		Outbox:   outboxSvc,
		Recorder: purgeRecorder,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purge service", err)
		os.Exit(1)
	}

	coinsSvc, err := coins.NewService(coins.Config{
		Runner:   dbClient,
		Accounts: accountsRepo,
		Ledger:   ledgerRepo,
		Outbox:   outboxSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coins service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:         dbClient,
			Redis:      redisClient,
			Accounts:   accountsSvc,
			Ledger:     ledgerSvc,
			Activation: activationSvc,
			Engine:     engine,
			Purge:      purgeSvc,
			Coins:      coinsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
