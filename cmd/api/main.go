package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/api"
	"resumeforge/internal/auth"
	"resumeforge/internal/config"
	"resumeforge/internal/database"
	"resumeforge/internal/icons"
	"resumeforge/internal/logging"
	"resumeforge/internal/notify"
	"resumeforge/internal/render"
	"resumeforge/internal/service"
	"resumeforge/internal/storage"
	"resumeforge/internal/store"
	"resumeforge/internal/tasks"
	"resumeforge/internal/thumbnail"
)

func main() {
	cfg := config.MustLoad()

	logger := logging.New(cfg.API.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready",
		slog.String("icon_bucket", storageClient.IconBucket()),
		slog.String("thumbnail_bucket", storageClient.ThumbnailBucket()),
	)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()
	purgeQueue := tasks.NewPurgeQueue(asynqClient)

	verifier, err := auth.NewVerifier(cfg.Auth, logger)
	if err != nil {
		log.Fatalf("init token verifier: %v", err)
	}
	defer verifier.Close()

	docs := store.New(db)
	reconciler := icons.NewReconciler(storageClient, docs, icons.NewScanner(cfg.Clamd.Address), purgeQueue, logger)

	scheduler := render.NewScheduler(render.PoolConfig{
		Workers: cfg.Render.Workers,
		Timeout: cfg.Render.JobTimeout,
		Command: render.BinaryCommand(cfg.Render.RendererBinary, nil),
		Logger:  logger,
	})
	defer func() {
		if err := scheduler.Close(); err != nil {
			logger.Error("close render scheduler failed", slog.Any("error", err))
		}
	}()

	thumbs := thumbnail.NewDeriver(thumbnail.Pdftoppm{Binary: cfg.Render.PdftoppmBinary}, storageClient, logger)
	publisher := notify.NewPublisher(redisClient)

	svc := service.New(service.Deps{
		Store:      docs,
		Objects:    storageClient,
		Reconciler: reconciler,
		Scheduler:  scheduler,
		Thumbnails: thumbs,
		Purge:      purgeQueue,
		Notifier:   publisher,
	}, service.Config{
		MaxResumes:      cfg.Limits.MaxResumes,
		ListMax:         cfg.Limits.ListMax,
		CopyConcurrency: cfg.Limits.CopyConcurrency,
		WorkDir:         cfg.Render.WorkDir,
	}, logger)

	router := api.NewRouter(cfg.API, api.Deps{
		Service:       svc,
		Verifier:      verifier,
		Notifications: publisher,
		RateCounter:   redisClient,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api")
	case err := <-errCh:
		logger.Error("api server stopped", slog.Any("error", err))
	}

	// 留出一个渲染超时的时间让进行中的请求完成。
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Render.JobTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
