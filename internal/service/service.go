// Package service orchestrates resume persistence, icon reconciliation,
// rendering and thumbnail derivation on behalf of an authenticated owner.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/icons"
	"resumeforge/internal/logging"
	"resumeforge/internal/notify"
	"resumeforge/internal/render"
	"resumeforge/internal/store"
)

// MaxTitleLength 为标题允许的最大字符数。
const MaxTitleLength = 200

// DefaultTitle 用于未命名的新简历。
const DefaultTitle = "Untitled Resume"

// Store 是服务依赖的文档存储操作，*store.Store 满足它。
type Store interface {
	GetResume(ctx context.Context, id, ownerID string, liveOnly bool) (*database.Resume, error)
	ListResumes(ctx context.Context, ownerID string, offset, limit int) ([]database.Resume, int64, error)
	CountLive(ctx context.Context, ownerID string) (int64, error)
	EnsureQuota(ctx context.Context, ownerID string, max int) error
	LatestLive(ctx context.Context, ownerID string) (*database.Resume, error)
	UpsertResume(ctx context.Context, r *database.Resume) error
	PatchResume(ctx context.Context, id, ownerID string, fields map[string]any, preserveUpdatedAt bool) error
	SoftDelete(ctx context.Context, id, ownerID string) error
	GetIcons(ctx context.Context, resumeID string) ([]database.ResumeIcon, error)
	ReplaceIcons(ctx context.Context, resumeID string, rows []database.ResumeIcon) error
	GetPreferences(ctx context.Context, ownerID string) (*database.UserPreference, error)
	UpsertPreferences(ctx context.Context, row *database.UserPreference) error
	SetLastEdited(ctx context.Context, ownerID string, resumeID *string) error
	ListLiveWithIcons(ctx context.Context, ownerID string) (store.ReparentResult, error)
	ReparentOwner(ctx context.Context, from, to string, maxLive int, rekey store.IconRekeyFunc) (store.ReparentResult, error)
}

// Objects 是服务直接使用的对象存储操作，*storage.Client 满足它。
type Objects interface {
	IconBucket() string
	ThumbnailBucket() string
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	CopyObject(ctx context.Context, bucket, srcKey, dstKey string) error
	PublicURL(bucket, key string) string
}

// Reconciler 同步保存请求中的图标，*icons.Reconciler 满足它。
type Reconciler interface {
	Apply(ctx context.Context, ownerID, resumeID string, plan icons.Plan) (icons.Result, error)
}

// Thumbnailer 从 PDF 生成缩略图并返回公开地址，*thumbnail.Deriver 满足它。
type Thumbnailer interface {
	Derive(ctx context.Context, pdfPath, ownerID, resumeID string) (string, error)
}

// Notifier 推送渲染事件，*notify.Publisher 满足它。
type Notifier interface {
	Publish(ctx context.Context, ownerID string, msg notify.Message) error
}

// Config 汇总服务层的限额与工作目录。
type Config struct {
	MaxResumes      int
	ListMax         int
	CopyConcurrency int
	// WorkDir 为渲染会话目录的父目录，空值使用系统临时目录。
	WorkDir string
}

// Deps 是服务的外部协作者。Thumbnails、Purge、Notifier 可为 nil。
type Deps struct {
	Store      Store
	Objects    Objects
	Reconciler Reconciler
	Scheduler  render.Scheduler
	Thumbnails Thumbnailer
	Purge      icons.PurgeQueue
	Notifier   Notifier
}

// Service 实现简历的全部业务操作。所有读写都以 ownerID 为界。
type Service struct {
	store      Store
	objects    Objects
	reconciler Reconciler
	scheduler  render.Scheduler
	thumbs     Thumbnailer
	purge      icons.PurgeQueue
	notifier   Notifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// New 构造 Service。
func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxResumes <= 0 {
		cfg.MaxResumes = 5
	}
	if cfg.ListMax <= 0 {
		cfg.ListMax = 50
	}
	if cfg.CopyConcurrency <= 0 {
		cfg.CopyConcurrency = 10
	}
	return &Service{
		store:      deps.Store,
		objects:    deps.Objects,
		reconciler: deps.Reconciler,
		scheduler:  deps.Scheduler,
		thumbs:     deps.Thumbnails,
		purge:      deps.Purge,
		notifier:   deps.Notifier,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (s *Service) log(ctx context.Context, ownerID, resumeID string) *slog.Logger {
	l := logging.FromContext(ctx, s.logger).With(slog.String("owner_id", ownerID))
	if resumeID != "" {
		l = l.With(slog.String("resume_id", resumeID))
	}
	return l
}

// ValidateTitle 去掉首尾空白后要求 1 到 200 个字符。
func ValidateTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", apperr.Validation("title must not be empty")
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return "", apperr.Validation("title must be at most 200 characters")
	}
	return t, nil
}

// touchLastEdited 更新偏好中的最近编辑简历，失败只记录日志。
func (s *Service) touchLastEdited(ctx context.Context, ownerID string, resumeID *string) {
	if err := s.store.SetLastEdited(ctx, ownerID, resumeID); err != nil {
		s.log(ctx, ownerID, "").Warn("update last edited resume failed", slog.String("error", err.Error()))
	}
}

func (s *Service) publish(ctx context.Context, ownerID string, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, ownerID, msg); err != nil {
		s.log(ctx, ownerID, msg.ResumeID).Warn("publish notification failed", slog.String("error", err.Error()))
	}
}
