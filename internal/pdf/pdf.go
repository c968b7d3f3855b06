// Package pdf converts a rendered HTML file to PDF in a headless browser.
package pdf

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Converter 把本地 HTML 文件转换为 PDF，文件中的相对路径从同目录加载。
type Converter interface {
	Convert(ctx context.Context, htmlPath string) ([]byte, error)
}

// Options 为两种后端共享的设置。
type Options struct {
	// BrowserBinary 为空时自动查找 Chromium。
	BrowserBinary string
	Timeout       time.Duration
}

// New 按名称选择后端：rod（默认）或 chromedp。
func New(backend string, opts Options) (Converter, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	switch backend {
	case "", "rod":
		return &RodConverter{opts: opts}, nil
	case "chromedp":
		return &ChromedpConverter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown html backend %q", backend)
	}
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve html path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
