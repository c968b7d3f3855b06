package icons

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"resumeforge/internal/database"
	"resumeforge/internal/storage"
)

// ObjectStore 是对象存储中图标相关的最小接口，*storage.Client 满足它。
type ObjectStore interface {
	IconBucket() string
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}

// RowStore 负责原子替换图标行，*store.Store 满足它。
type RowStore interface {
	ReplaceIcons(ctx context.Context, resumeID string, rows []database.ResumeIcon) error
}

// PurgeQueue 接收删除失败、需要稍后重试的对象键。
type PurgeQueue interface {
	EnqueuePurge(ctx context.Context, bucket string, keys []string) error
}

// Result 汇总一次对账的执行情况。
type Result struct {
	Rows     []database.ResumeIcon
	Uploaded []string
	Kept     []string
	Deleted  []string
	// Failed 为上传失败或被扫描拒绝的文件名。
	Failed []string
}

// Reconciler 执行图标对账：先写新对象，再替换行，最后删除旧对象。
type Reconciler struct {
	objects ObjectStore
	rows    RowStore
	scanner Scanner
	purge   PurgeQueue
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewReconciler 构造 Reconciler；scanner 与 purge 可为 nil。
func NewReconciler(objects ObjectStore, rows RowStore, scanner Scanner, purge PurgeQueue, logger *slog.Logger) *Reconciler {
	if scanner == nil {
		scanner = NopScanner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		objects: objects,
		rows:    rows,
		scanner: scanner,
		purge:   purge,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// Apply 按计划同步对象与行。单个图标上传失败只记录日志；行替换失败时返回错误。
func (r *Reconciler) Apply(ctx context.Context, ownerID, resumeID string, plan Plan) (Result, error) {
	bucket := r.objects.IconBucket()
	logger := r.logger.With(slog.String("owner_id", ownerID), slog.String("resume_id", resumeID))

	var res Result
	rows := make([]database.ResumeIcon, 0, len(plan.Keep)+len(plan.Upload))
	for _, row := range plan.Keep {
		rows = append(rows, row)
		res.Kept = append(res.Kept, row.Filename)
	}

	for _, d := range plan.Upload {
		key := storage.IconKey(ownerID, resumeID, d.Filename)
		if err := r.scanner.Scan(ctx, d.Data); err != nil {
			logger.Warn("icon scan failed, skipping", slog.String("filename", d.Filename), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, d.Filename)
			rows = r.fallback(rows, plan, d.Filename)
			continue
		}
		if err := r.objects.PutObject(ctx, bucket, key, d.Data, d.MimeType, ""); err != nil {
			logger.Error("icon upload failed, skipping", slog.String("filename", d.Filename), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, d.Filename)
			rows = r.fallback(rows, plan, d.Filename)
			continue
		}
		rows = append(rows, database.ResumeIcon{
			ID:         r.newID(),
			ResumeID:   resumeID,
			OwnerID:    ownerID,
			Filename:   d.Filename,
			StorageKey: key,
			StorageURL: r.objects.PublicURL(bucket, key),
			MimeType:   d.MimeType,
			FileSize:   d.Size,
			CreatedAt:  r.now(),
		})
		res.Uploaded = append(res.Uploaded, d.Filename)
	}

	if err := r.rows.ReplaceIcons(ctx, resumeID, rows); err != nil {
		return res, err
	}
	res.Rows = rows

	var orphaned []string
	for _, row := range plan.Delete {
		if err := r.objects.DeleteObject(ctx, bucket, row.StorageKey); err != nil {
			logger.Warn("icon delete failed, queued for purge", slog.String("key", row.StorageKey), slog.String("error", err.Error()))
			orphaned = append(orphaned, row.StorageKey)
		}
		res.Deleted = append(res.Deleted, row.Filename)
	}
	if len(orphaned) > 0 && r.purge != nil {
		if err := r.purge.EnqueuePurge(ctx, bucket, orphaned); err != nil {
			logger.Error("enqueue purge failed", slog.Int("keys", len(orphaned)), slog.String("error", err.Error()))
		}
	}

	if len(res.Uploaded)+len(res.Deleted)+len(res.Failed) > 0 {
		logger.Info("icons reconciled",
			slog.Int("kept", len(res.Kept)),
			slog.Int("uploaded", len(res.Uploaded)),
			slog.Int("deleted", len(res.Deleted)),
			slog.Int("failed", len(res.Failed)),
		)
	}
	return res, nil
}

// fallback 在替换上传失败时保留旧行，旧对象仍在原键下。
func (r *Reconciler) fallback(rows []database.ResumeIcon, plan Plan, filename string) []database.ResumeIcon {
	if old, ok := plan.Replaced[filename]; ok {
		return append(rows, old)
	}
	return rows
}
