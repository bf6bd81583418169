package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"syndic/internal/amqp"
	"syndic/internal/cli"
	"syndic/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting syndic-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store
	defer func() {
		if result.Cleanup != nil {
			result.Cleanup()
		}
	}()

	// The worker is pointless without a broker to consume from.
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for syndic-worker")
		os.Exit(1)
	}
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPAlertQueue, cfg.AMQPPaymentQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewAlertWorker(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One consumer per queue; either failing stops the process.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeAlerts(gctx, func(msg *amqp.AlertRaisedMessage) error {
			return w.HandleAlert(gctx, msg)
		})
	})
	g.Go(func() error {
		return amqpClient.ConsumePayments(gctx, func(msg *amqp.PaymentAllocatedMessage) error {
			return w.HandlePayment(gctx, msg)
		})
	})

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
