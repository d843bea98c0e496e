package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/sokohub/sokohub-backend/api/routes"
	"github.com/sokohub/sokohub-backend/internal/cart"
	"github.com/sokohub/sokohub-backend/internal/checkout"
	"github.com/sokohub/sokohub-backend/internal/cron"
	"github.com/sokohub/sokohub-backend/internal/inventory"
	"github.com/sokohub/sokohub-backend/internal/ledger"
	"github.com/sokohub/sokohub-backend/internal/orders"
	"github.com/sokohub/sokohub-backend/internal/payments"
	"github.com/sokohub/sokohub-backend/pkg/config"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/migrate"
	"github.com/sokohub/sokohub-backend/pkg/mpesa"
	"github.com/sokohub/sokohub-backend/pkg/redis"
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

	var gateway checkout.Gateway
	if !cfg.Mpesa.TestMode {
		client, err := mpesa.NewClient(context.Background(), cfg.Mpesa, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create mpesa client", err)
			os.Exit(1)
		}
		gateway = client
	}

	cartRepo := cart.NewRepository(dbClient)
	orderRepo := orders.NewRepository(dbClient)
	ledgerRepo := ledger.NewRepository(dbClient)
	inventoryService := inventory.NewService()

	ledgerService, err := ledger.NewService(dbClient, ledgerRepo, orderRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	checkoutService, err := checkout.NewService(dbClient, cfg, cartRepo, orderRepo, inventoryService, ledgerService, gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(dbClient, orderRepo, inventoryService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	paymentsService, err := payments.NewService(dbClient, orderRepo, inventoryService, ledgerService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	reservationSweep, err := cron.NewStaleReservationJob(cron.StaleReservationJobParams{
		Logger:    logg,
		DB:        dbClient,
		Products:  inventory.NewRepository(dbClient),
		Orders:    orderRepo,
		Inventory: inventoryService,
		TTL:       cfg.Checkout.ReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation sweep job", err)
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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, checkoutService, ordersService, ledgerService, paymentsService, reservationSweep),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
