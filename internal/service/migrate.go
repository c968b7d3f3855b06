package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/storage"
)

// MigrateResult 汇总一次 owner 迁移。
type MigrateResult struct {
	Resumes    int `json:"resumes"`
	Icons      int `json:"icons"`
	CopyFailed int `json:"copy_failed"`
}

// MigrateOwner 把 from 的存活简历转给 to（匿名用户登录后的归并）。
// 图标对象先复制到新前缀，行在一个事务内改写；复制失败的图标继续引用旧键。
// 旧键与旧缩略图在事务成功后交给清理队列。
func (s *Service) MigrateOwner(ctx context.Context, from, to string) (MigrateResult, error) {
	logger := s.log(ctx, from, "").With(slog.String("target_owner_id", to))

	snapshot, err := s.store.ListLiveWithIcons(ctx, from)
	if err != nil {
		return MigrateResult{}, err
	}
	if len(snapshot.Resumes) == 0 {
		return MigrateResult{}, nil
	}
	if err := s.checkTargetQuota(ctx, to, len(snapshot.Resumes)); err != nil {
		return MigrateResult{}, err
	}

	bucket := s.objects.IconBucket()
	copied := s.copyForOwner(ctx, snapshot.Icons, to)

	moved, err := s.store.ReparentOwner(ctx, from, to, s.cfg.MaxResumes,
		func(icon database.ResumeIcon, newOwner string) (string, string) {
			if key, ok := copied[icon.ID]; ok {
				return key, s.objects.PublicURL(bucket, key)
			}
			return icon.StorageKey, icon.StorageURL
		})
	if err != nil {
		var orphans []string
		for _, key := range copied {
			orphans = append(orphans, key)
		}
		s.enqueuePurge(ctx, logger, bucket, orphans)
		return MigrateResult{}, err
	}

	var oldIconKeys, oldThumbKeys []string
	for _, icon := range moved.Icons {
		if _, ok := copied[icon.ID]; ok {
			oldIconKeys = append(oldIconKeys, icon.StorageKey)
		}
	}
	for _, r := range moved.Resumes {
		if r.ThumbnailURL != nil {
			oldThumbKeys = append(oldThumbKeys, storage.ThumbnailKey(from, r.ID))
		}
	}
	s.enqueuePurge(ctx, logger, bucket, oldIconKeys)
	s.enqueuePurge(ctx, logger, s.objects.ThumbnailBucket(), oldThumbKeys)

	if len(moved.Resumes) == 0 {
		return MigrateResult{}, nil
	}
	if prefs, err := s.store.GetPreferences(ctx, to); err == nil && prefs.LastEditedResumeID == nil {
		s.touchLastEdited(ctx, to, &moved.Resumes[0].ID)
	}

	res := MigrateResult{
		Resumes:    len(moved.Resumes),
		Icons:      len(moved.Icons),
		CopyFailed: len(moved.Icons) - len(oldIconKeys),
	}
	logger.Info("owner migrated",
		slog.Int("resumes", res.Resumes),
		slog.Int("icons", res.Icons),
		slog.Int("copy_failed", res.CopyFailed),
	)
	return res, nil
}

// checkTargetQuota 在复制对象之前预检配额，事务内还会再检查一次。
func (s *Service) checkTargetQuota(ctx context.Context, to string, incoming int) error {
	n, err := s.store.CountLive(ctx, to)
	if err != nil {
		return err
	}
	if int(n)+incoming > s.cfg.MaxResumes {
		return apperr.QuotaExceeded(fmt.Sprintf("target owner would exceed %d resumes", s.cfg.MaxResumes))
	}
	return nil
}

// copyForOwner 以有限并发复制图标对象，返回 icon id 到新键的映射。
func (s *Service) copyForOwner(ctx context.Context, src []database.ResumeIcon, to string) map[string]string {
	bucket := s.objects.IconBucket()
	var mu sync.Mutex
	out := make(map[string]string, len(src))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.CopyConcurrency)
	for _, icon := range src {
		g.Go(func() error {
			key := storage.IconKey(to, icon.ResumeID, icon.Filename)
			if err := s.objects.CopyObject(ctx, bucket, icon.StorageKey, key); err != nil {
				s.log(ctx, icon.OwnerID, icon.ResumeID).Warn("copy icon for migration failed",
					slog.String("filename", icon.Filename),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[icon.ID] = key
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) enqueuePurge(ctx context.Context, logger *slog.Logger, bucket string, keys []string) {
	if len(keys) == 0 {
		return
	}
	if s.purge == nil {
		logger.Warn("orphan objects left behind, no purge queue", slog.String("bucket", bucket), slog.Int("keys", len(keys)))
		return
	}
	if err := s.purge.EnqueuePurge(ctx, bucket, keys); err != nil {
		logger.Error("enqueue purge failed", slog.String("bucket", bucket), slog.Int("keys", len(keys)), slog.String("error", err.Error()))
	}
}
