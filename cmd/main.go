package main

import (
	"cardpay/config"
	"cardpay/database"
	"cardpay/handler"
	"cardpay/helper"
	"cardpay/lib"
	"cardpay/middleware"
	"cardpay/repository"
	"cardpay/router"
	"cardpay/scheduler"
	"cardpay/service"
	"cardpay/worker"
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	config.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	out, err := config.SetupLogfile(cfg.LogDir)
	if err != nil {
		log.Fatalf("Error opening log file: %v", err)
	}
	helper.InitLogger(helper.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})
	defer helper.SyncLogger()

	if err := config.InitPaymentLoggers(cfg.LogDir); err != nil {
		helper.Warn("Gateway audit logs disabled: %v", err)
	}
	defer config.ShutdownPaymentLoggers()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := setupRegistry(ctx, cfg)
	if err != nil {
		helper.Fatal("Error setting up transaction registry: %v", err)
	}
	defer closeRegistry()

	store, closeStore, err := setupPaymentLogStore(ctx, cfg)
	if err != nil {
		helper.Fatal("Error setting up payment log store: %v", err)
	}
	defer closeStore()

	paymentLogs := worker.NewPaymentLogQueue(store, 100)
	paymentLogs.Start()
	defer paymentLogs.Close()

	middleware.PrometheusInit()
	lib.PrometheusInit()
	service.PrometheusInit()

	checkout := service.NewCheckoutService(
		registry,
		lib.NewWorldpayClient(cfg.Worldpay),
		helper.NewMerchantDataCodec(cfg.MerchantDataSecret, cfg.Registry.TTL),
		paymentLogs,
		service.CheckoutConfigFrom(cfg),
	)

	sweeper := scheduler.NewTransactionScheduler(checkout, cfg.Registry.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		helper.Fatal("Error starting scheduler: %v", err)
	}
	defer sweeper.Stop()

	app := router.NewApp()
	router.SetupRoutes(app, router.Handlers{
		Checkout: handler.NewCheckoutHandler(checkout, handler.PageConfig{
			ProfilingOrgID:  cfg.ProfilingOrgID,
			ProfilingDomain: cfg.ProfilingDomain,
			Amount:          cfg.Amount,
			Currency:        cfg.Currency,
		}),
		Status:         handler.NewStatusHandler(checkout, store, sweeper),
		AdminJWTSecret: cfg.AdminJWTSecret,
	})

	go func() {
		helper.Info("Checkout listening on :%s (%s)", cfg.Port, cfg.BaseURL)
		if err := app.Listen(":" + cfg.Port); err != nil {
			helper.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	helper.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		helper.Error("Error during shutdown: %v", err)
	}
	helper.Info("Server stopped gracefully.")
}

func setupRegistry(ctx context.Context, cfg *config.AppConfig) (repository.TransactionRegistry, func(), error) {
	switch cfg.Registry.Driver {
	case "redis":
		client, err := database.InitRedis(ctx, cfg.Registry)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisRegistry(client, cfg.Registry.RedisPrefix, cfg.Registry.TTL), func() { _ = client.Close() }, nil
	default:
		return repository.NewMemoryRegistry(cfg.Registry.TTL), func() {}, nil
	}
}

func setupPaymentLogStore(ctx context.Context, cfg *config.AppConfig) (repository.PaymentLogStore, func(), error) {
	switch cfg.PaymentLog.Driver {
	case "postgres":
		db, err := database.ConnectDB(cfg.PaymentLog.Database)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewGormPaymentLogStore(db), closeDB, nil
	case "mongo":
		client, err := database.SetupMongoDB(ctx, cfg.PaymentLog.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		collection := database.GetCollection(client, cfg.PaymentLog.MongoDatabase, repository.PaymentLogCollection)
		closeMongo := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		}
		return repository.NewMongoPaymentLogStore(collection), closeMongo, nil
	case "none":
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported payment log driver %q", cfg.PaymentLog.Driver)
	}
}
