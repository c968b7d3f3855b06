package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"resumeforge/internal/apperr"
	"resumeforge/internal/database"
	"resumeforge/internal/notify"
	"resumeforge/internal/render"
	"resumeforge/internal/resume"
	"resumeforge/internal/retry"
	"resumeforge/internal/storage"
	"resumeforge/internal/templates"
)

const (
	sessionYAML = "resume.yaml"
	sessionPDF  = "resume.pdf"
)

var (
	errNoPDF         = errors.New("renderer reported success but produced no pdf")
	errNoThumbnailer = errors.New("thumbnail derivation is not configured")
)

// RenderOutput 是一次成功渲染的结果。
type RenderOutput struct {
	PDF            []byte
	Filename       string
	Inline         bool
	PDFGeneratedAt time.Time
	ThumbnailURL   *string
}

// ThumbnailResult 是 derive_thumbnail 的结果。
// 可重试的失败不是错误：ThumbnailURL 为 nil，Retryable 为 true。
type ThumbnailResult struct {
	ThumbnailURL   *string    `json:"thumbnail_url"`
	PDFGeneratedAt *time.Time `json:"pdf_generated_at,omitempty"`
	Retryable      bool       `json:"retryable,omitempty"`
	ErrorType      string     `json:"error_type,omitempty"`
}

type produced struct {
	pdf          []byte
	generatedAt  time.Time
	thumbnailURL *string
	thumbErr     error
}

// Render 渲染简历并返回 PDF。preview 为 true 时以 inline 方式展示。
func (s *Service) Render(ctx context.Context, ownerID, id string, preview bool) (*RenderOutput, error) {
	row, err := s.store.GetResume(ctx, id, ownerID, true)
	if err != nil {
		return nil, err
	}
	p, err := s.produce(ctx, row)
	if err != nil {
		return nil, err
	}
	return &RenderOutput{
		PDF:            p.pdf,
		Filename:       PDFFilename(row.Title),
		Inline:         preview,
		PDFGeneratedAt: p.generatedAt,
		ThumbnailURL:   p.thumbnailURL,
	}, nil
}

// DeriveThumbnail 渲染简历但只返回缩略图地址。
func (s *Service) DeriveThumbnail(ctx context.Context, ownerID, id string) (ThumbnailResult, error) {
	row, err := s.store.GetResume(ctx, id, ownerID, true)
	if err != nil {
		return ThumbnailResult{}, err
	}
	p, err := s.produce(ctx, row)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindRenderFailed && e.Retryable {
			return ThumbnailResult{Retryable: true, ErrorType: e.ErrorType}, nil
		}
		return ThumbnailResult{}, err
	}
	generatedAt := p.generatedAt
	if p.thumbErr != nil {
		class := render.Classify(p.thumbErr)
		if !class.Retryable() {
			return ThumbnailResult{}, renderFailed(class, p.thumbErr)
		}
		return ThumbnailResult{PDFGeneratedAt: &generatedAt, Retryable: true, ErrorType: string(class)}, nil
	}
	if p.thumbnailURL == nil {
		return ThumbnailResult{}, renderFailed(render.ClassDependency, errNoThumbnailer)
	}
	return ThumbnailResult{ThumbnailURL: p.thumbnailURL, PDFGeneratedAt: &generatedAt}, nil
}

// produce 在独立会话目录中准备图标与 YAML，提交渲染任务，成功后派生缩略图并回写元数据。
// 客户端断开不会中止渲染。
func (s *Service) produce(ctx context.Context, row *database.Resume) (*produced, error) {
	ctx = context.WithoutCancel(ctx)
	logger := s.log(ctx, row.OwnerID, row.ID)

	doc, err := resume.LoadStored(row.ContactInfo, row.Sections)
	if err != nil {
		return nil, renderFailed(render.ClassData, err)
	}
	tpl, ok := templates.Resolve(row.TemplateID)
	if !ok {
		return nil, renderFailed(render.ClassDependency, fmt.Errorf("no template for %q", row.TemplateID))
	}

	sessionID := s.newID()
	dir, err := os.MkdirTemp(s.cfg.WorkDir, "render-"+sessionID+"-")
	if err != nil {
		return nil, renderFailed(render.ClassStorage, fmt.Errorf("create session dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("remove session dir failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}()

	if err := s.materializeIcons(ctx, dir, row, doc, tpl); err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindMissingIcons {
			logger.Warn("render aborted, icons missing", slog.Any("missing_icons", e.MissingIcons))
			s.publish(ctx, row.OwnerID, notify.Message{
				Status:       notify.StatusError,
				ResumeID:     row.ID,
				ErrorMessage: e.Message,
				MissingIcons: e.MissingIcons,
			})
		}
		return nil, err
	}

	data, err := resume.MarshalYAML(doc)
	if err != nil {
		return nil, renderFailed(render.ClassData, err)
	}
	yamlPath := filepath.Join(dir, sessionYAML)
	if err := os.WriteFile(yamlPath, data, 0o600); err != nil {
		return nil, renderFailed(render.ClassStorage, fmt.Errorf("write session yaml: %w", err))
	}

	job := render.Job{
		ID:         s.newID(),
		Engine:     render.EngineForTemplate(row.TemplateID),
		TemplateID: tpl.ID,
		YAMLPath:   yamlPath,
		OutputPath: filepath.Join(dir, sessionPDF),
		SessionDir: dir,
		SessionID:  sessionID,
	}
	start := time.Now()
	if err := s.scheduler.Run(ctx, job); err != nil {
		class := render.Classify(err)
		logger.Error("render failed",
			slog.String("job_id", job.ID),
			slog.String("engine", string(job.Engine)),
			slog.String("class", string(class)),
			slog.String("error", err.Error()),
		)
		s.publish(ctx, row.OwnerID, notify.Message{
			Status:       notify.StatusError,
			ResumeID:     row.ID,
			ErrorType:    string(class),
			ErrorMessage: class.UserMessage(),
			Retryable:    class.Retryable(),
		})
		return nil, renderFailed(class, err)
	}
	pdf, err := os.ReadFile(job.OutputPath)
	if err != nil || len(pdf) == 0 {
		if err == nil {
			err = errNoPDF
		}
		logger.Error("render produced no pdf", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return nil, renderFailed(render.ClassUnknown, err)
	}
	logger.Info("render completed",
		slog.String("job_id", job.ID),
		slog.String("engine", string(job.Engine)),
		slog.Int("bytes", len(pdf)),
		slog.Duration("elapsed", time.Since(start)),
	)

	out := &produced{pdf: pdf, generatedAt: s.now()}
	fields := map[string]any{"pdf_generated_at": out.generatedAt}
	if s.thumbs != nil {
		url, err := s.thumbs.Derive(ctx, job.OutputPath, row.OwnerID, row.ID)
		if err != nil {
			out.thumbErr = err
			logger.Warn("thumbnail derivation failed",
				slog.String("class", string(render.Classify(err))),
				slog.String("error", err.Error()),
			)
		} else {
			out.thumbnailURL = &url
			fields["thumbnail_url"] = url
		}
	}
	if err := s.store.PatchResume(ctx, row.ID, row.OwnerID, fields, true); err != nil {
		logger.Error("record render metadata failed", slog.String("error", err.Error()))
	}

	msg := notify.Message{Status: notify.StatusCompleted, ResumeID: row.ID}
	if out.thumbnailURL != nil {
		msg.ThumbnailURL = *out.thumbnailURL
	}
	s.publish(ctx, row.OwnerID, msg)
	return out, nil
}

// materializeIcons 把渲染需要的全部图标写入会话目录：正文引用的图标，
// 以及支持图标的模板始终引用的联系方式图标。用户上传的优先，其次是内置图标。
func (s *Service) materializeIcons(ctx context.Context, dir string, row *database.Resume, doc resume.Document, tpl templates.Template) error {
	uploaded, err := s.store.GetIcons(ctx, row.ID)
	if err != nil {
		return err
	}
	byName := make(map[string]database.ResumeIcon, len(uploaded))
	for _, icon := range uploaded {
		byName[icon.Filename] = icon
	}

	needed := resume.ReferencedIcons(doc.Sections)
	if tpl.SupportsIcons {
		needed = append(needed, resume.BaseContactIcons()...)
	}

	seen := make(map[string]struct{}, len(needed))
	var missing []string
	for _, name := range needed {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		data, ok, err := s.fetchIcon(ctx, byName, row, name)
		if err != nil {
			return renderFailed(render.ClassDependency, err)
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return renderFailed(render.ClassStorage, fmt.Errorf("write icon %s: %w", name, err))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperr.MissingIcons(missing)
	}
	return nil
}

// fetchIcon 优先读取上传的图标，读取失败时回落到内置默认图标；桶缺失直接返回错误。
func (s *Service) fetchIcon(ctx context.Context, byName map[string]database.ResumeIcon, row *database.Resume, name string) ([]byte, bool, error) {
	if icon, ok := byName[name]; ok {
		bucket := s.objects.IconBucket()
		data, err := retry.Value(ctx, retry.Download, func(ctx context.Context) ([]byte, error) {
			return s.objects.GetObject(ctx, bucket, icon.StorageKey)
		})
		if err == nil {
			return data, true, nil
		}
		if errors.Is(err, storage.ErrBucketMissing) {
			return nil, false, err
		}
		s.log(ctx, row.OwnerID, row.ID).Warn("download icon failed",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
	}
	data, ok := templates.DefaultIcon(name)
	return data, ok, nil
}

func renderFailed(class render.Class, err error) error {
	return &apperr.Error{
		Kind:      apperr.KindRenderFailed,
		Message:   class.UserMessage(),
		Retryable: class.Retryable(),
		ErrorType: string(class),
		Err:       err,
	}
}

// PDFFilename 由标题生成下载文件名，只保留字母数字与 -_ 。
func PDFFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "resume"
	}
	return name + ".pdf"
}
