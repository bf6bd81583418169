package main

import (
	"context"
	"time"

	"syndic/internal/amqp"
	"syndic/internal/billing"
	"syndic/internal/cli"
	"syndic/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting alert-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store
	defer func() {
		if result.Cleanup != nil {
			result.Cleanup()
		}
	}()

	// AMQP client for publishing alert events to syndic-worker (optional)
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPAlertQueue, cfg.AMQPPaymentQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, alerts stay database-only", "error", err)
			amqpClient = nil
		} else {
			logger.Info("AMQP client initialized - alerts will dispatch via syndic-worker")
		}
	} else {
		logger.Info("AMQP disabled - alerts will not dispatch")
	}

	allocator := billing.New(store, billing.WithLookahead(cfg.LookaheadMonths))
	policy := services.ThresholdPolicy{
		MinMonths: cfg.AlertMinMonths,
		Cooldown:  cfg.AlertCooldown,
	}
	detector := services.NewAlertDetector(store, allocator, policy, amqpClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if amqpClient != nil {
			amqpClient.Close()
		}
	})

	logger.Info("Unpaid-alert scanner configured",
		"interval", cfg.AlertScanInterval,
		"min_months", cfg.AlertMinMonths,
		"cooldown", cfg.AlertCooldown)

	ticker := time.NewTicker(cfg.AlertScanInterval)
	defer ticker.Stop()

	// Run initial scan on startup
	logger.Info("Running initial unpaid scan...")
	if count, err := detector.ScanAll(ctx); err != nil {
		logger.Error("Initial scan failed", "error", err)
	} else {
		logger.Info("Initial scan complete", "alerts_raised", count)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				logger.Info("Scanning for unpaid apartments...")
				count, err := detector.ScanAll(ctx)
				if err != nil {
					logger.Error("Periodic scan failed", "error", err)
				} else {
					logger.Info("Periodic scan complete",
						"alerts_raised", count,
						"next_scan", now.Add(cfg.AlertScanInterval).Format("15:04:05"))
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert-worker stopped")
}
