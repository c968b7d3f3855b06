package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/config"
	"resumeforge/internal/logging"
	"resumeforge/internal/metrics"
	"resumeforge/internal/storage"
	"resumeforge/internal/tasks"
	"resumeforge/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := logging.New(cfg.API.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready",
		slog.String("icon_bucket", storageClient.IconBucket()),
		slog.String("thumbnail_bucket", storageClient.ThumbnailBucket()),
	)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("close redis client failed", slog.Any("error", err))
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{tasks.QueueMaintenance: 1},
		Logger:      newAsynqLogger(logger),
	})

	purgeHandler := worker.NewPurgeTaskHandler(storageClient, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeStoragePurge, purgeHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
