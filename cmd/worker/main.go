// Package main runs the background worker that reconciles stale pending payments.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/learnhub/backend/config"
	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/payments"
	"github.com/learnhub/backend/internal/worker"
	"github.com/learnhub/backend/pkg/database"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/queue"
	"github.com/learnhub/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	provider := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.Timeout,
	}, logger)

	paymentRepo := payments.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	reconciler := payments.NewReconciler(paymentRepo, provider, jobQueue, cfg.Commerce.AdminCommission, metrics.New(), logger)

	sweeper := worker.NewSweeper(paymentRepo, jobQueue, cfg.Reconcile.Interval, cfg.Reconcile.StaleAfter, cfg.Reconcile.BatchSize, logger)
	processor := worker.NewReconcileProcessor(reconciler, jobQueue, cfg.Reconcile.Workers, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(workerCtx)
	go func() {
		if err := processor.Run(workerCtx); err != nil {
			logger.Error("reconcile processor", zap.Error(err))
		}
	}()
	logger.Info("worker started",
		zap.Duration("interval", cfg.Reconcile.Interval),
		zap.Duration("stale_after", cfg.Reconcile.StaleAfter),
		zap.Int("consumers", cfg.Reconcile.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
