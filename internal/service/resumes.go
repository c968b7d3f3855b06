package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/fingerprint"
	"resumeforge/internal/icons"
	"resumeforge/internal/resume"
	"resumeforge/internal/storage"
	"resumeforge/internal/templates"
)

// CreateInput 是新建简历的参数。LoadExample 为 nil 时载入示例内容。
type CreateInput struct {
	TemplateID  string
	LoadExample *bool
}

// CreateResult 返回新简历的标识。
type CreateResult struct {
	ResumeID   string `json:"resume_id"`
	TemplateID string `json:"template_id"`
}

// SaveInput 是一次保存请求的内容，Icons 为期望的完整图标集合。
type SaveInput struct {
	ID                 string
	Title              string
	TemplateID         string
	ContactInfo        map[string]any
	Sections           []any
	Icons              []icons.Upload
	AIImportWarnings   json.RawMessage
	AIImportConfidence *float64
}

// SaveResult 中 Skipped 表示内容未变化，没有写入简历。
type SaveResult struct {
	ResumeID string `json:"resume_id"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Icon 是返回给客户端的图标引用。
type Icon struct {
	Filename   string `json:"filename"`
	StorageURL string `json:"storage_url"`
}

// Detail 是 load 返回的完整简历。
type Detail struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	TemplateID         string           `json:"template_id"`
	ContactInfo        resume.Contact   `json:"contact_info"`
	Sections           []resume.Section `json:"sections"`
	Icons              []Icon           `json:"icons"`
	AIImportWarnings   json.RawMessage  `json:"ai_import_warnings,omitempty"`
	AIImportConfidence *float64         `json:"ai_import_confidence,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	LastAccessedAt     *time.Time       `json:"last_accessed_at"`
	PDFGeneratedAt     *time.Time       `json:"pdf_generated_at"`
	ThumbnailURL       *string          `json:"thumbnail_url"`
}

// Summary 是列表中的一项。
type Summary struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	TemplateID     string     `json:"template_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	PDFGeneratedAt *time.Time `json:"pdf_generated_at"`
	ThumbnailURL   *string    `json:"thumbnail_url"`
}

// ListResult 是一页列表及存活总数。
type ListResult struct {
	Resumes    []Summary `json:"resumes"`
	TotalCount int64     `json:"total_count"`
	Limit      int       `json:"limit"`
}

// Create 按模板新建简历，默认载入示例内容，LoadExample=false 时只保留区块骨架。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (CreateResult, error) {
	templateID := strings.TrimSpace(in.TemplateID)
	if templateID == "" {
		templateID = "modern"
	}
	tpl, ok := templates.Get(templateID)
	if !ok {
		return CreateResult{}, apperr.NotFound("template not found")
	}
	if err := s.store.EnsureQuota(ctx, ownerID, s.cfg.MaxResumes); err != nil {
		return CreateResult{}, err
	}

	doc, err := tpl.ExampleDocument()
	if err != nil {
		return CreateResult{}, fmt.Errorf("load template example: %w", err)
	}
	if in.LoadExample != nil && !*in.LoadExample {
		doc = resume.Skeleton(doc)
	}
	resume.Normalize(&doc)
	hash, err := fingerprint.Compute(doc.Contact, doc.Sections, nil)
	if err != nil {
		return CreateResult{}, err
	}
	contact, sections, err := encodeDocument(doc)
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now()
	row := &database.Resume{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Title:       DefaultTitle,
		TemplateID:  tpl.ID,
		ContactInfo: contact,
		Sections:    sections,
		ContentHash: &hash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertResume(ctx, row); err != nil {
		return CreateResult{}, err
	}
	s.touchLastEdited(ctx, ownerID, &row.ID)

	s.log(ctx, ownerID, row.ID).Info("resume created", slog.String("template_id", tpl.ID))
	return CreateResult{ResumeID: row.ID, TemplateID: tpl.ID}, nil
}

// Save 计算内容指纹，未变化时跳过写入；否则整行覆盖并对账图标。
func (s *Service) Save(ctx context.Context, ownerID string, in SaveInput) (SaveResult, error) {
	templateID := strings.TrimSpace(in.TemplateID)
	if templateID == "" {
		return SaveResult{}, apperr.Validation("template_id is required")
	}
	if _, ok := templates.Get(templateID); !ok {
		return SaveResult{}, apperr.NotFound("template not found")
	}
	title := DefaultTitle
	if strings.TrimSpace(in.Title) != "" {
		t, err := ValidateTitle(in.Title)
		if err != nil {
			return SaveResult{}, err
		}
		title = t
	}
	if len(in.AIImportWarnings) > 0 && !json.Valid(in.AIImportWarnings) {
		return SaveResult{}, apperr.Validation("ai_import_warnings must be valid JSON")
	}

	doc, err := resume.DecodeDocument(in.ContactInfo, in.Sections)
	if err != nil {
		return SaveResult{}, apperr.Wrap(apperr.KindValidation, "invalid resume document", err)
	}
	desired, err := icons.ParseDesired(in.Icons)
	if err != nil {
		return SaveResult{}, err
	}
	metas := make([]fingerprint.IconMeta, 0, len(desired))
	for _, d := range desired {
		metas = append(metas, fingerprint.IconMeta{Filename: d.Filename, Size: d.Size})
	}
	hash, err := fingerprint.Compute(doc.Contact, doc.Sections, metas)
	if err != nil {
		return SaveResult{}, err
	}

	var (
		existing *database.Resume
		current  []database.ResumeIcon
	)
	if in.ID != "" {
		existing, err = s.store.GetResume(ctx, in.ID, ownerID, true)
		if err != nil {
			return SaveResult{}, err
		}
		if existing.ContentHash != nil && *existing.ContentHash == hash {
			s.touchLastEdited(ctx, ownerID, &existing.ID)
			s.log(ctx, ownerID, existing.ID).Debug("resume unchanged, save skipped")
			return SaveResult{ResumeID: existing.ID, Skipped: true}, nil
		}
		current, err = s.store.GetIcons(ctx, existing.ID)
		if err != nil {
			return SaveResult{}, err
		}
	} else if err := s.store.EnsureQuota(ctx, ownerID, s.cfg.MaxResumes); err != nil {
		return SaveResult{}, err
	}

	contact, sections, err := encodeDocument(doc)
	if err != nil {
		return SaveResult{}, err
	}
	now := s.now()
	row := &database.Resume{
		ID:                 in.ID,
		OwnerID:            ownerID,
		Title:              title,
		TemplateID:         templateID,
		ContactInfo:        contact,
		Sections:           sections,
		ContentHash:        &hash,
		AIImportWarnings:   datatypes.JSON(in.AIImportWarnings),
		AIImportConfidence: in.AIImportConfidence,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if existing != nil {
		row.CreatedAt = existing.CreatedAt
		row.LastAccessedAt = existing.LastAccessedAt
		row.PDFGeneratedAt = existing.PDFGeneratedAt
		row.ThumbnailURL = existing.ThumbnailURL
		if len(in.AIImportWarnings) == 0 {
			row.AIImportWarnings = existing.AIImportWarnings
		}
		if in.AIImportConfidence == nil {
			row.AIImportConfidence = existing.AIImportConfidence
		}
	} else {
		row.ID = s.newID()
	}
	if err := s.store.UpsertResume(ctx, row); err != nil {
		return SaveResult{}, err
	}
	logger := s.log(ctx, ownerID, row.ID)

	plan := icons.BuildPlan(current, desired)
	if !plan.Empty() {
		res, err := s.reconciler.Apply(ctx, ownerID, row.ID, plan)
		if err != nil || len(res.Failed) > 0 {
			// 图标未完全同步时清空指纹，下一次保存不会被跳过。
			if perr := s.store.PatchResume(ctx, row.ID, ownerID, map[string]any{"content_hash": nil}, true); perr != nil {
				logger.Error("clear content hash failed", slog.String("error", perr.Error()))
			}
		}
		if err != nil {
			return SaveResult{}, err
		}
		if len(res.Failed) > 0 {
			logger.Warn("resume saved with icon failures", slog.Any("failed", res.Failed))
		}
	}

	s.touchLastEdited(ctx, ownerID, &row.ID)
	logger.Info("resume saved", slog.Bool("created", existing == nil))
	return SaveResult{ResumeID: row.ID}, nil
}

// Load 返回简历与图标地址，并在不推进 updated_at 的前提下记录访问时间。
func (s *Service) Load(ctx context.Context, ownerID, id string) (*Detail, error) {
	row, err := s.store.GetResume(ctx, id, ownerID, true)
	if err != nil {
		return nil, err
	}
	doc, err := resume.LoadStored(row.ContactInfo, row.Sections)
	if err != nil {
		return nil, fmt.Errorf("decode stored resume: %w", err)
	}
	rows, err := s.store.GetIcons(ctx, row.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.store.PatchResume(ctx, row.ID, ownerID, map[string]any{"last_accessed_at": now}, true); err != nil {
		s.log(ctx, ownerID, row.ID).Warn("record last access failed", slog.String("error", err.Error()))
	} else {
		row.LastAccessedAt = &now
	}
	s.touchLastEdited(ctx, ownerID, &row.ID)

	out := &Detail{
		ID:                 row.ID,
		Title:              row.Title,
		TemplateID:         row.TemplateID,
		ContactInfo:        doc.Contact,
		Sections:           doc.Sections,
		Icons:              make([]Icon, 0, len(rows)),
		AIImportConfidence: row.AIImportConfidence,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		LastAccessedAt:     row.LastAccessedAt,
		PDFGeneratedAt:     row.PDFGeneratedAt,
		ThumbnailURL:       row.ThumbnailURL,
	}
	if len(row.AIImportWarnings) > 0 {
		out.AIImportWarnings = json.RawMessage(row.AIImportWarnings)
	}
	for _, r := range rows {
		out.Icons = append(out.Icons, Icon{Filename: r.Filename, StorageURL: r.StorageURL})
	}
	return out, nil
}

// List 分页返回存活简历，limit 超过上限时截断。
func (s *Service) List(ctx context.Context, ownerID string, offset, limit int) (ListResult, error) {
	if limit <= 0 || limit > s.cfg.ListMax {
		limit = s.cfg.ListMax
	}
	if offset < 0 {
		offset = 0
	}
	rows, total, err := s.store.ListResumes(ctx, ownerID, offset, limit)
	if err != nil {
		return ListResult{}, err
	}
	out := ListResult{Resumes: make([]Summary, 0, len(rows)), TotalCount: total, Limit: limit}
	for _, r := range rows {
		out.Resumes = append(out.Resumes, Summary{
			ID:             r.ID,
			Title:          r.Title,
			TemplateID:     r.TemplateID,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
			LastAccessedAt: r.LastAccessedAt,
			PDFGeneratedAt: r.PDFGeneratedAt,
			ThumbnailURL:   r.ThumbnailURL,
		})
	}
	return out, nil
}

// Count 返回存活简历数量。
func (s *Service) Count(ctx context.Context, ownerID string) (int64, error) {
	return s.store.CountLive(ctx, ownerID)
}

// Delete 软删除简历；若它是最近编辑的简历，改指向最新的存活简历。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.SoftDelete(ctx, id, ownerID); err != nil {
		return err
	}
	logger := s.log(ctx, ownerID, id)
	logger.Info("resume deleted")

	prefs, err := s.store.GetPreferences(ctx, ownerID)
	if err != nil {
		logger.Warn("load preferences after delete failed", slog.String("error", err.Error()))
		return nil
	}
	if prefs.LastEditedResumeID == nil || *prefs.LastEditedResumeID != id {
		return nil
	}
	latest, err := s.store.LatestLive(ctx, ownerID)
	switch {
	case err == nil:
		s.touchLastEdited(ctx, ownerID, &latest.ID)
	case apperr.Is(err, apperr.KindNotFound):
		s.touchLastEdited(ctx, ownerID, nil)
	default:
		logger.Warn("find latest resume failed", slog.String("error", err.Error()))
	}
	return nil
}

// Rename 修改标题并推进 updated_at。
func (s *Service) Rename(ctx context.Context, ownerID, id, title string) (string, error) {
	t, err := ValidateTitle(title)
	if err != nil {
		return "", err
	}
	if err := s.store.PatchResume(ctx, id, ownerID, map[string]any{"title": t}, false); err != nil {
		return "", err
	}
	return t, nil
}

// Duplicate 复制简历行，并以有限并发把图标对象复制到新简历的前缀下。
// 单个图标复制失败只会让副本缺少该图标。
func (s *Service) Duplicate(ctx context.Context, ownerID, id, newTitle string) (string, error) {
	src, err := s.store.GetResume(ctx, id, ownerID, true)
	if err != nil {
		return "", err
	}
	title := src.Title + " (Copy)"
	if strings.TrimSpace(newTitle) != "" {
		if title, err = ValidateTitle(newTitle); err != nil {
			return "", err
		}
	} else if len([]rune(title)) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}
	if err := s.store.EnsureQuota(ctx, ownerID, s.cfg.MaxResumes); err != nil {
		return "", err
	}
	srcIcons, err := s.store.GetIcons(ctx, src.ID)
	if err != nil {
		return "", err
	}

	now := s.now()
	dup := &database.Resume{
		ID:                 s.newID(),
		OwnerID:            ownerID,
		Title:              title,
		TemplateID:         src.TemplateID,
		ContactInfo:        src.ContactInfo,
		Sections:           src.Sections,
		ContentHash:        src.ContentHash,
		AIImportWarnings:   src.AIImportWarnings,
		AIImportConfidence: src.AIImportConfidence,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.UpsertResume(ctx, dup); err != nil {
		return "", err
	}
	logger := s.log(ctx, ownerID, dup.ID).With(slog.String("source_id", src.ID))

	copied, failed := s.copyIcons(ctx, srcIcons, ownerID, dup.ID)
	if len(copied) > 0 {
		if err := s.store.ReplaceIcons(ctx, dup.ID, copied); err != nil {
			return "", err
		}
	}
	if failed > 0 {
		logger.Warn("some icons were not copied", slog.Int("failed", failed))
		if err := s.store.PatchResume(ctx, dup.ID, ownerID, map[string]any{"content_hash": nil}, true); err != nil {
			logger.Error("clear content hash failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("resume duplicated", slog.Int("icons", len(copied)))
	return dup.ID, nil
}

func (s *Service) copyIcons(ctx context.Context, src []database.ResumeIcon, ownerID, resumeID string) ([]database.ResumeIcon, int) {
	bucket := s.objects.IconBucket()
	var (
		mu     sync.Mutex
		out    = make([]database.ResumeIcon, 0, len(src))
		failed int
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.CopyConcurrency)
	for _, icon := range src {
		g.Go(func() error {
			key := storage.IconKey(ownerID, resumeID, icon.Filename)
			if err := s.objects.CopyObject(ctx, bucket, icon.StorageKey, key); err != nil {
				s.log(ctx, ownerID, resumeID).Warn("copy icon failed",
					slog.String("filename", icon.Filename),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			row := icon
			row.ID = s.newID()
			row.ResumeID = resumeID
			row.OwnerID = ownerID
			row.StorageKey = key
			row.StorageURL = s.objects.PublicURL(bucket, key)
			row.CreatedAt = s.now()
			mu.Lock()
			out = append(out, row)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out, failed
}

func encodeDocument(doc resume.Document) (datatypes.JSON, datatypes.JSON, error) {
	contact, err := json.Marshal(doc.Contact)
	if err != nil {
		return nil, nil, fmt.Errorf("encode contact: %w", err)
	}
	sections, err := json.Marshal(doc.Sections)
	if err != nil {
		return nil, nil, fmt.Errorf("encode sections: %w", err)
	}
	return contact, sections, nil
}
