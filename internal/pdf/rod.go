package pdf

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConverter 每次转换启动一个独立的浏览器实例。
type RodConverter struct {
	opts Options
}

// Convert 使用 go-rod 在无头浏览器中打开 HTML 文件并返回 PDF 字节。
func (r *RodConverter) Convert(ctx context.Context, htmlPath string) ([]byte, error) {
	target, err := fileURL(htmlPath)
	if err != nil {
		return nil, err
	}

	launch := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Set("allow-file-access-from-files").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")

	if r.opts.BrowserBinary != "" {
		launch = launch.Bin(r.opts.BrowserBinary)
	} else if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	defer launch.Cleanup()

	browser := rod.New().Context(ctx).ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	page, err := browser.Timeout(r.opts.Timeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Timeout(r.opts.Timeout)
	if err := page.Navigate(target); err != nil {
		return nil, fmt.Errorf("navigate to html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}
