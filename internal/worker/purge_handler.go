package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"resumeforge/internal/tasks"
)

// ObjectDeleter 是清理任务需要的对象存储操作，*storage.Client 满足它。
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, bucket, key string) error
}

// PurgeTaskHandler 消费 storage:purge 任务，删除孤儿对象。
type PurgeTaskHandler struct {
	objects ObjectDeleter
	logger  *slog.Logger
}

// NewPurgeTaskHandler 创建任务处理器。
func NewPurgeTaskHandler(objects ObjectDeleter, logger *slog.Logger) *PurgeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeTaskHandler{objects: objects, logger: logger}
}

// ProcessTask 实现 asynq.Handler。有键删除失败时返回错误交给 asynq 重试，
// 重试会重放全部键，删除本身是幂等的。
func (h *PurgeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.StoragePurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	log := h.logger.With(slog.String("bucket", payload.Bucket), slog.Int("keys", len(payload.Keys)))
	if payload.Bucket == "" || len(payload.Keys) == 0 {
		log.Warn("empty purge task, skipping")
		return nil
	}

	var (
		failed []string
		errs   []error
	)
	for _, key := range payload.Keys {
		if err := h.objects.DeleteObject(ctx, payload.Bucket, key); err != nil {
			failed = append(failed, key)
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if len(failed) == 0 {
		log.Info("orphan objects purged")
		return nil
	}

	if isFinalAsynqAttempt(ctx) {
		log.Error("purge gave up, objects left behind", slog.Any("failed_keys", failed))
	} else {
		log.Warn("purge incomplete, will retry", slog.Int("failed", len(failed)))
	}
	return errors.Join(errs...)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
