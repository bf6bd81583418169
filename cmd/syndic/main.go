package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syndic/internal/amqp"
	"syndic/internal/billing"
	"syndic/internal/cache"
	"syndic/internal/cli"
	apphttp "syndic/internal/http"
	"syndic/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store
	defer func() {
		if result.Cleanup != nil {
			result.Cleanup()
		}
	}()

	// AMQP is optional: without a broker, alerts stay in the database
	// and allocation events are not mirrored to the audit stream.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPAlertQueue, cfg.AMQPPaymentQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"alert_queue", cfg.AMQPAlertQueue,
				"payment_queue", cfg.AMQPPaymentQueue)
		}
	}

	cacheManager := cache.NewManager()
	cacheManager.StartCleanup(5 * time.Minute)
	defer cacheManager.Stop()

	allocator := billing.New(store, billing.WithLookahead(cfg.LookaheadMonths))
	payments := services.NewPaymentService(store, allocator, amqpClient)
	reports := services.NewReportService(store, allocator, cacheManager)
	payments.OnChange(reports.Invalidate)

	policy := services.ThresholdPolicy{
		MinMonths: cfg.AlertMinMonths,
		Cooldown:  cfg.AlertCooldown,
	}
	detector := services.NewAlertDetector(store, allocator, policy, amqpClient)

	srv := apphttp.NewServer(":"+cfg.Port, store, payments, reports, detector)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting syndic server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
