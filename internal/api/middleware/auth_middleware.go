package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/apperr"
	"resumeforge/internal/auth"
	"resumeforge/internal/errcode"
	"resumeforge/internal/logging"
)

const ownerIDKey = "ownerID"

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success":    false,
		"error":      msg,
		"error_code": errcode.Unauthorized,
	})
}

// AuthMiddleware 校验 bearer token 并将 ownerID 注入上下文。
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		ownerID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if apperr.Is(err, apperr.KindAuthMissing) {
				abortUnauthorized(c, "authentication required")
				return
			}
			LoggerFromContext(c).Info("token rejected", slog.String("error", err.Error()))
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ownerIDKey, ownerID)
		log := LoggerFromContext(c).With(slog.String("owner_id", ownerID))
		c.Set(slogLoggerKey, log)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), log))
		c.Next()
	}
}

// OwnerID 返回认证后的 owner id。
func OwnerID(c *gin.Context) (string, bool) {
	value, ok := c.Get(ownerIDKey)
	if !ok {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}
