package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/icons"
	"resumeforge/internal/service"
)

// ResumeService 是 handler 依赖的简历服务，由 *service.Service 实现。
type ResumeService interface {
	Create(ctx context.Context, ownerID string, in service.CreateInput) (service.CreateResult, error)
	Save(ctx context.Context, ownerID string, in service.SaveInput) (service.SaveResult, error)
	Load(ctx context.Context, ownerID, id string) (*service.Detail, error)
	List(ctx context.Context, ownerID string, offset, limit int) (service.ListResult, error)
	Count(ctx context.Context, ownerID string) (int64, error)
	Delete(ctx context.Context, ownerID, id string) error
	Rename(ctx context.Context, ownerID, id, title string) (string, error)
	Duplicate(ctx context.Context, ownerID, id, newTitle string) (string, error)
	Render(ctx context.Context, ownerID, id string, preview bool) (*service.RenderOutput, error)
	DeriveThumbnail(ctx context.Context, ownerID, id string) (service.ThumbnailResult, error)
	GetPreferences(ctx context.Context, ownerID string) (service.Preferences, error)
	SetPreferences(ctx context.Context, ownerID string, in service.PreferencesInput) (service.Preferences, error)
}

// ResumeHandler 负责简历相关的 API。
type ResumeHandler struct {
	svc ResumeService
}

func NewResumeHandler(svc ResumeService) *ResumeHandler {
	return &ResumeHandler{svc: svc}
}

type createResumeRequest struct {
	TemplateID  string `json:"template_id"`
	LoadExample *bool  `json:"load_example"`
}

type saveResumeRequest struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	TemplateID         string          `json:"template_id"`
	ContactInfo        map[string]any  `json:"contact_info"`
	Sections           []any           `json:"sections"`
	Icons              []icons.Upload  `json:"icons"`
	AIImportWarnings   json.RawMessage `json:"ai_import_warnings"`
	AIImportConfidence *float64        `json:"ai_import_confidence"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type duplicateRequest struct {
	NewTitle string `json:"new_title"`
}

// bindOptionalJSON 允许空请求体。
func bindOptionalJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func ownerFromContext(c *gin.Context) (string, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "", "unauthorized")
	}
	return ownerID, ok
}

// POST /api/resumes/create
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	var req createResumeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.Create(c.Request.Context(), ownerID, service.CreateInput{
		TemplateID:  req.TemplateID,
		LoadExample: req.LoadExample,
	})
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"resume_id":   res.ResumeID,
		"template_id": res.TemplateID,
	})
}

// POST /api/resumes
// 保存：带 id 为更新，不带 id 为新建；内容未变化时返回 skipped。
func (h *ResumeHandler) SaveResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	var req saveResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	res, err := h.svc.Save(c.Request.Context(), ownerID, service.SaveInput{
		ID:                 req.ID,
		Title:              req.Title,
		TemplateID:         req.TemplateID,
		ContactInfo:        req.ContactInfo,
		Sections:           req.Sections,
		Icons:              req.Icons,
		AIImportWarnings:   req.AIImportWarnings,
		AIImportConfidence: req.AIImportConfidence,
	})
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}

	body := gin.H{"success": true, "resume_id": res.ResumeID}
	if res.Skipped {
		body["skipped"] = true
	}
	c.JSON(http.StatusOK, body)
}

// GET /api/resumes?limit&offset
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	limit, err := queryInt(c, "limit")
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil || offset < 0 {
		BadRequest(c, "offset must be a non-negative integer")
		return
	}

	res, err := h.svc.List(c.Request.Context(), ownerID, offset, limit)
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"resumes":     res.Resumes,
		"total_count": res.TotalCount,
		"limit":       res.Limit,
	})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

// GET /api/resumes/count
func (h *ResumeHandler) CountResumes(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	count, err := h.svc.Count(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// GET /api/resumes/:id
func (h *ResumeHandler) GetResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	detail, err := h.svc.Load(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resume": detail})
}

// DELETE /api/resumes/:id
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PATCH /api/resumes/:id
func (h *ResumeHandler) RenameResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	title, err := h.svc.Rename(c.Request.Context(), ownerID, c.Param("id"), req.Title)
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "title": title})
}

// POST /api/resumes/:id/duplicate
func (h *ResumeHandler) DuplicateResume(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	var req duplicateRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	id, err := h.svc.Duplicate(c.Request.Context(), ownerID, c.Param("id"), req.NewTitle)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resume_id": id})
}

// POST /api/resumes/:id/pdf?preview=bool
func (h *ResumeHandler) RenderPDF(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	preview := false
	if raw := c.Query("preview"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, "preview must be a boolean")
			return
		}
		preview = v
	}

	out, err := h.svc.Render(c.Request.Context(), ownerID, c.Param("id"), preview)
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}

	disposition := "attachment"
	if out.Inline {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, out.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", out.PDF)
}

// POST /api/resumes/:id/thumbnail
// 可重试的失败返回 200 且 thumbnail_url 为 null，客户端据此重新轮询。
func (h *ResumeHandler) GenerateThumbnail(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	res, err := h.svc.DeriveThumbnail(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}

	body := gin.H{
		"success":          true,
		"thumbnail_url":    res.ThumbnailURL,
		"pdf_generated_at": res.PDFGeneratedAt,
	}
	if res.Retryable {
		body["retryable"] = true
		body["error_type"] = res.ErrorType
	}
	c.JSON(http.StatusOK, body)
}
