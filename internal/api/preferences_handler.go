package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/service"
)

type preferencesRequest struct {
	LastEditedResumeID *string         `json:"last_edited_resume_id"`
	Preferences        json.RawMessage `json:"preferences"`
}

// GET /api/user/preferences
func (h *ResumeHandler) GetPreferences(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}
	prefs, err := h.svc.GetPreferences(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
}

// POST /api/user/preferences
// 只更新请求中出现的字段。
func (h *ResumeHandler) UpdatePreferences(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		return
	}

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	prefs, err := h.svc.SetPreferences(c.Request.Context(), ownerID, service.PreferencesInput{
		LastEditedResumeID: req.LastEditedResumeID,
		Preferences:        req.Preferences,
	})
	if err != nil {
		respondError(c, err, http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "preferences": prefs})
}
