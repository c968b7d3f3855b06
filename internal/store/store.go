// Package store is the typed gateway over the resumes, resume_icons and
// user_preferences tables. Every call is retried on transient faults.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/retry"
)

// pgUniqueViolation 为 PostgreSQL 唯一约束冲突错误码。
const pgUniqueViolation = "23505"

// Store 封装 gorm 访问，所有查询都带 owner 条件。
type Store struct {
	db     *gorm.DB
	policy retry.Policy
	now    func() time.Time
}

// Option 调整 Store 的行为。
type Option func(*Store)

// WithRetryPolicy 替换默认的重试策略。
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithClock 注入时间源。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New 构造 Store。
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		policy: retry.Store,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB 返回底层连接，供健康检查使用。
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return fn(s.db.WithContext(ctx))
	})
	return classify(op, err)
}

// classify 将驱动错误映射为 apperr 分类。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.KindNotFound, op+": not found", err)
	}
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, op+": conflict", err)
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) || retry.IsTransient(err) {
		return apperr.Wrap(apperr.KindTransient, op+": store unavailable", err)
	}
	return apperr.Wrap(apperr.KindPermanent, op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") || strings.Contains(lower, "duplicate key")
}

func liveScope(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}

// GetResume 读取 owner 名下的简历；liveOnly 时忽略已软删除的行。
func (s *Store) GetResume(ctx context.Context, id, ownerID string, liveOnly bool) (*database.Resume, error) {
	var out database.Resume
	err := s.run(ctx, "get resume", func(db *gorm.DB) error {
		q := db.Where("id = ? AND owner_id = ?", id, ownerID)
		if liveOnly {
			q = liveScope(q)
		}
		return q.First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResumes 按 updated_at 倒序分页返回，同时给出存活总数。
func (s *Store) ListResumes(ctx context.Context, ownerID string, offset, limit int) ([]database.Resume, int64, error) {
	if offset < 0 {
		offset = 0
	}
	var (
		rows  []database.Resume
		total int64
	)
	err := s.run(ctx, "list resumes", func(db *gorm.DB) error {
		if err := liveScope(db.Model(&database.Resume{})).
			Where("owner_id = ?", ownerID).
			Count(&total).Error; err != nil {
			return err
		}
		return liveScope(db).
			Where("owner_id = ?", ownerID).
			Order("updated_at DESC").
			Order("id").
			Offset(offset).
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountLive 返回 owner 存活简历数量。
func (s *Store) CountLive(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := s.run(ctx, "count resumes", func(db *gorm.DB) error {
		return liveScope(db.Model(&database.Resume{})).
			Where("owner_id = ?", ownerID).
			Count(&n).Error
	})
	return n, err
}

// EnsureQuota 在存活数量达到上限时返回 QuotaExceeded。
func (s *Store) EnsureQuota(ctx context.Context, ownerID string, max int) error {
	n, err := s.CountLive(ctx, ownerID)
	if err != nil {
		return err
	}
	if n >= int64(max) {
		return apperr.QuotaExceeded(fmt.Sprintf("resume limit of %d reached", max))
	}
	return nil
}

// LatestLive 返回最近更新的存活简历。
func (s *Store) LatestLive(ctx context.Context, ownerID string) (*database.Resume, error) {
	var out database.Resume
	err := s.run(ctx, "latest resume", func(db *gorm.DB) error {
		return liveScope(db).
			Where("owner_id = ?", ownerID).
			Order("updated_at DESC").
			First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertResume 以 id 为键插入或整行覆盖。
// 覆盖只作用于同一 owner 的存活行，否则返回 NotFound。
func (s *Store) UpsertResume(ctx context.Context, r *database.Resume) error {
	return s.run(ctx, "upsert resume", func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "resumes", Name: "owner_id"}, Value: r.OwnerID},
				clause.Expr{SQL: "resumes.deleted_at IS NULL"},
			}},
		}).Create(r)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// PatchResume 只更新给定列。preserveUpdatedAt 为 false 时同时推进 updated_at。
func (s *Store) PatchResume(ctx context.Context, id, ownerID string, fields map[string]any, preserveUpdatedAt bool) error {
	if len(fields) == 0 {
		return nil
	}
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	if preserveUpdatedAt {
		delete(updates, "updated_at")
	} else if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = s.now()
	}
	return s.run(ctx, "patch resume", func(db *gorm.DB) error {
		res := liveScope(db.Model(&database.Resume{})).
			Where("id = ? AND owner_id = ?", id, ownerID).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// SoftDelete 设置 deleted_at；已删除或不属于 owner 时返回 NotFound。
func (s *Store) SoftDelete(ctx context.Context, id, ownerID string) error {
	now := s.now()
	return s.run(ctx, "delete resume", func(db *gorm.DB) error {
		res := liveScope(db.Model(&database.Resume{})).
			Where("id = ? AND owner_id = ?", id, ownerID).
			UpdateColumn("deleted_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// GetIcons 返回简历的全部图标行，按文件名排序。
func (s *Store) GetIcons(ctx context.Context, resumeID string) ([]database.ResumeIcon, error) {
	var rows []database.ResumeIcon
	err := s.run(ctx, "get icons", func(db *gorm.DB) error {
		return db.Where("resume_id = ?", resumeID).Order("filename").Find(&rows).Error
	})
	return rows, err
}

// ReplaceIcons 在一个事务内删除旧行并插入新行。
func (s *Store) ReplaceIcons(ctx context.Context, resumeID string, rows []database.ResumeIcon) error {
	return s.run(ctx, "replace icons", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("resume_id = ?", resumeID).Delete(&database.ResumeIcon{}).Error; err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			for i := range rows {
				rows[i].ResumeID = resumeID
			}
			return tx.Create(&rows).Error
		})
	})
}

// DeleteIconsByFilename 删除指定文件名的图标行。
func (s *Store) DeleteIconsByFilename(ctx context.Context, resumeID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.run(ctx, "delete icons", func(db *gorm.DB) error {
		return db.Where("resume_id = ? AND filename IN ?", resumeID, names).Delete(&database.ResumeIcon{}).Error
	})
}

// GetPreferences 读取偏好，不存在时惰性创建空行。
func (s *Store) GetPreferences(ctx context.Context, ownerID string) (*database.UserPreference, error) {
	var out database.UserPreference
	now := s.now()
	err := s.run(ctx, "get preferences", func(db *gorm.DB) error {
		return db.Where(database.UserPreference{OwnerID: ownerID}).
			Attrs(database.UserPreference{Preferences: []byte("{}"), CreatedAt: now, UpdatedAt: now}).
			FirstOrCreate(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertPreferences 覆盖整行偏好。
func (s *Store) UpsertPreferences(ctx context.Context, row *database.UserPreference) error {
	now := s.now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if len(row.Preferences) == 0 {
		row.Preferences = []byte("{}")
	}
	return s.run(ctx, "upsert preferences", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_edited_resume_id", "preferences", "updated_at"}),
		}).Create(row).Error
	})
}

// SetLastEdited 只更新 last_edited_resume_id，行不存在时创建。
func (s *Store) SetLastEdited(ctx context.Context, ownerID string, resumeID *string) error {
	now := s.now()
	row := database.UserPreference{
		OwnerID:            ownerID,
		LastEditedResumeID: resumeID,
		Preferences:        []byte("{}"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return s.run(ctx, "set last edited", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_edited_resume_id", "updated_at"}),
		}).Create(&row).Error
	})
}
