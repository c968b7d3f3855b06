package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// CORSMiddleware 把 go-chi/cors 包装为 gin 中间件，只放行白名单内的 Origin。
// 预检请求在这里结束，以 204 应答。
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	handler := cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	return func(c *gin.Context) {
		passed := false
		handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.AbortWithStatus(http.StatusNoContent)
		}
	}
}
