package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/templates"
)

// TemplateHandler 负责模板目录相关的 API，无需登录。
type TemplateHandler struct{}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

type templateListItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// GET /api/templates
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	catalog := templates.Catalog()
	items := make([]templateListItem, 0, len(catalog))
	for _, t := range catalog {
		items = append(items, templateListItem{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			ImageURL:    t.ImageURL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "templates": items})
}

// GET /api/template/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, data, ok := h.example(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"yaml":          string(data),
		"template_id":   tpl.ID,
		"supportsIcons": tpl.SupportsIcons,
	})
}

// GET /api/template/:id/download
func (h *TemplateHandler) DownloadTemplate(c *gin.Context) {
	tpl, data, ok := h.example(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tpl.ID+".yaml"))
	c.Data(http.StatusOK, "application/x-yaml; charset=utf-8", data)
}

func (h *TemplateHandler) example(c *gin.Context) (templates.Template, []byte, bool) {
	tpl, ok := templates.Get(c.Param("id"))
	if !ok {
		NotFound(c, "template not found")
		return templates.Template{}, nil, false
	}
	data, err := tpl.ExampleYAML()
	if err != nil {
		middleware.LoggerFromContext(c).Error("read template example failed", "template_id", tpl.ID, "error", err)
		Internal(c)
		return templates.Template{}, nil, false
	}
	return tpl, data, true
}
