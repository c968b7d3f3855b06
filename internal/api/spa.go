package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// spaHandler 为非 /api 的 GET 请求提供静态文件，找不到时回落到 index.html。
func spaHandler(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || p == "/api" ||
			(c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			NotFound(c, "not found")
			return
		}
		if staticDir == "" {
			NotFound(c, "not found")
			return
		}

		clean := path.Clean("/" + p)
		if clean != "/" {
			file := filepath.Join(staticDir, filepath.FromSlash(clean))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				c.File(file)
				return
			}
		}

		index := filepath.Join(staticDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			NotFound(c, "not found")
			return
		}
		c.Header("Cache-Control", "no-cache")
		c.File(index)
	}
}
