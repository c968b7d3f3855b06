package pdf

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromedpConverter 是基于 chromedp 的备用后端。
type ChromedpConverter struct {
	opts Options
}

func (c *ChromedpConverter) Convert(ctx context.Context, htmlPath string) ([]byte, error) {
	target, err := fileURL(htmlPath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if c.opts.BrowserBinary != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.BrowserBinary))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	cctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	runCtx, cancel := context.WithTimeout(cctx, c.opts.Timeout)
	defer cancel()

	var pdfBuf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4: 8.27 x 11.69 英寸，模板里的 @page 优先。
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp print to pdf: %w", err)
	}
	return pdfBuf, nil
}
