package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"attendance/internal/catalog"
	"attendance/internal/cloudinary"
	"attendance/internal/config"
	"attendance/internal/imagejob"
	"attendance/internal/logging"
	"attendance/internal/queue"
	"attendance/internal/store"
)

// Worker consumes credential.issued messages and publishes printable QR images.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.IsProduction())
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs a shared queue, set QUEUE_BACKEND=redis")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	cat := catalog.NewService(catalog.NewRepository(db.Client), q, logger.Named("catalog"))

	var uploader imagejob.Uploader
	if cfg.CloudinaryConfigured() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Warn("cloudinary not configured, images are rendered but not uploaded")
	}

	logger.Info("worker started, waiting for messages")
	if err := imagejob.NewProcessor(uploader, cat, logger.Named("imagejob")).Run(ctx, q); err != nil {
		logger.Fatal("queue consume failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}
