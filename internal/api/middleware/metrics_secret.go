package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/auth"
)

// MetricsSecretMiddleware 保护 /metrics：密钥通过 X-Metrics-Secret 或 Bearer 头传递，
// 不接受 query，避免泄露到访问日志。
func MetricsSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(secret) == "" {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		token := strings.TrimSpace(c.GetHeader("X-Metrics-Secret"))
		if token == "" {
			token = auth.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			abortUnauthorized(c, "unauthorized")
			return
		}
		c.Next()
	}
}
