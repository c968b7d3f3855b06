package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/apperr"
	"resumeforge/internal/errcode"
)

type errorBody struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error"`
	ErrorCode    string   `json:"error_code,omitempty"`
	MissingIcons []string `json:"missing_icons,omitempty"`
	Retryable    *bool    `json:"retryable,omitempty"`
}

func Error(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorBody{Error: msg, ErrorCode: code})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, errcode.ValidationError, msg)
}

func NotFound(c *gin.Context, msg string) { Error(c, http.StatusNotFound, errcode.NotFound, msg) }

func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, errcode.InternalError, "internal server error")
}

// quotaStatus 决定配额错误的状态码：新建与保存为 403，复制为 400。
func respondError(c *gin.Context, err error, quotaStatus int) {
	log := middleware.LoggerFromContext(c)

	e, ok := apperr.As(err)
	if !ok {
		log.Error("request failed", slog.String("error", err.Error()))
		Internal(c)
		return
	}

	switch e.Kind {
	case apperr.KindValidation:
		BadRequest(c, e.Message)
	case apperr.KindAuthMissing, apperr.KindAuthInvalid:
		Error(c, http.StatusUnauthorized, errcode.Unauthorized, "unauthorized")
	case apperr.KindNotFound:
		NotFound(c, e.Message)
	case apperr.KindConflict:
		Error(c, http.StatusConflict, errcode.Conflict, e.Message)
	case apperr.KindQuotaExceeded:
		Error(c, quotaStatus, errcode.ResumeLimitReached, e.Message)
	case apperr.KindMissingIcons:
		c.JSON(http.StatusBadRequest, errorBody{
			Error:        e.Message,
			ErrorCode:    errcode.MissingIcons,
			MissingIcons: e.MissingIcons,
		})
	case apperr.KindRenderFailed:
		log.Warn("render failed",
			slog.String("error_type", e.ErrorType),
			slog.Bool("retryable", e.Retryable),
			slog.String("error", err.Error()),
		)
		retryable := e.Retryable
		c.JSON(http.StatusInternalServerError, errorBody{
			Error:     e.Message,
			ErrorCode: errcode.RenderFailed,
			Retryable: &retryable,
		})
	default:
		log.Error("request failed",
			slog.String("kind", e.Kind.String()),
			slog.String("error", err.Error()),
		)
		Internal(c)
	}
}
