package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CanonicalHostMiddleware 把 www. 前缀的主机 301 到裸域。
// canonical 非空时只处理 www.<canonical>，其余主机原样放行。
func CanonicalHostMiddleware(canonical string) gin.HandlerFunc {
	canonical = strings.ToLower(strings.TrimSpace(canonical))
	return func(c *gin.Context) {
		host := strings.ToLower(c.Request.Host)
		name, port := host, ""
		if h, p, err := net.SplitHostPort(host); err == nil {
			name, port = h, p
		}

		apex, ok := strings.CutPrefix(name, "www.")
		if !ok || apex == "" || (canonical != "" && apex != canonical) {
			c.Next()
			return
		}
		if port != "" {
			apex = net.JoinHostPort(apex, port)
		}

		c.Redirect(http.StatusMovedPermanently, requestScheme(c.Request)+"://"+apex+c.Request.URL.RequestURI())
		c.Abort()
	}
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
