package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
)

// IconRekeyFunc 返回图标在新 owner 下的对象键与公开地址。
type IconRekeyFunc func(icon database.ResumeIcon, newOwner string) (key, url string)

// ReparentResult 记录迁移前的行，供调用方清理旧对象。
type ReparentResult struct {
	Resumes []database.Resume
	Icons   []database.ResumeIcon
}

// ListLiveWithIcons 返回 owner 全部存活简历及其图标行。
func (s *Store) ListLiveWithIcons(ctx context.Context, ownerID string) (ReparentResult, error) {
	var out ReparentResult
	err := s.run(ctx, "list owner resumes", func(db *gorm.DB) error {
		out = ReparentResult{}
		if err := liveScope(db).Where("owner_id = ?", ownerID).Order("updated_at DESC").Find(&out.Resumes).Error; err != nil {
			return err
		}
		if len(out.Resumes) == 0 {
			return nil
		}
		ids := make([]string, 0, len(out.Resumes))
		for _, r := range out.Resumes {
			ids = append(ids, r.ID)
		}
		return db.Where("resume_id IN ?", ids).Order("resume_id, filename").Find(&out.Icons).Error
	})
	return out, err
}

// ReparentOwner 在一个事务内把 from 的存活简历和图标行转给 to。
// 目标 owner 的存活数加上迁入数不得超过 maxLive。缩略图地址被清空，下次渲染重新生成。
func (s *Store) ReparentOwner(ctx context.Context, from, to string, maxLive int, rekey IconRekeyFunc) (ReparentResult, error) {
	if from == to {
		return ReparentResult{}, apperr.Validation("source and target owner are the same")
	}
	var moved ReparentResult
	err := s.run(ctx, "reparent owner", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			moved = ReparentResult{}
			if err := liveScope(tx).Where("owner_id = ?", from).Find(&moved.Resumes).Error; err != nil {
				return err
			}
			if len(moved.Resumes) == 0 {
				return nil
			}

			var targetLive int64
			if err := liveScope(tx.Model(&database.Resume{})).Where("owner_id = ?", to).Count(&targetLive).Error; err != nil {
				return err
			}
			if maxLive > 0 && targetLive+int64(len(moved.Resumes)) > int64(maxLive) {
				return apperr.QuotaExceeded(fmt.Sprintf("target owner would exceed %d resumes", maxLive))
			}

			ids := make([]string, 0, len(moved.Resumes))
			for _, r := range moved.Resumes {
				ids = append(ids, r.ID)
			}
			if err := tx.Where("resume_id IN ?", ids).Find(&moved.Icons).Error; err != nil {
				return err
			}

			if err := tx.Model(&database.Resume{}).
				Where("id IN ?", ids).
				UpdateColumns(map[string]any{"owner_id": to, "thumbnail_url": nil}).Error; err != nil {
				return err
			}

			for _, icon := range moved.Icons {
				key, url := rekey(icon, to)
				if err := tx.Model(&database.ResumeIcon{}).
					Where("id = ?", icon.ID).
					UpdateColumns(map[string]any{"owner_id": to, "storage_key": key, "storage_url": url}).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return ReparentResult{}, err
	}
	return moved, nil
}
