package latex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	texName = "resume.tex"
	pdfName = "resume.pdf"
	passes  = 2
)

// Typesetter 调用 xelatex 之类的 Unicode 排版程序。
type Typesetter struct {
	Binary string
	// TempRoot 为空时使用系统临时目录。
	TempRoot string
	Logger   *slog.Logger
}

// Typeset 在进程独占的临时目录中编译 source 两遍，成功标准为 PDF 存在。
// 返回排版日志尾部，仅用于记录。
func (t Typesetter) Typeset(ctx context.Context, source, outputPath string) (string, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := t.Binary
	if binary == "" {
		binary = "xelatex"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return "", fmt.Errorf("typesetter %s: %w", binary, err)
	}

	dir, err := os.MkdirTemp(t.TempRoot, fmt.Sprintf("latex-%d-", os.Getpid()))
	if err != nil {
		return "", fmt.Errorf("create latex work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, texName), []byte(source), 0o600); err != nil {
		return "", fmt.Errorf("write tex source: %w", err)
	}

	var output bytes.Buffer
	var lastErr error
	for pass := 1; pass <= passes; pass++ {
		output.Reset()
		cmd := exec.CommandContext(ctx, binary,
			"-interaction=nonstopmode",
			"-no-shell-escape",
			"-output-directory", dir,
			texName,
		)
		cmd.Dir = dir
		cmd.Stdout = &output
		cmd.Stderr = &output
		lastErr = cmd.Run()
		if ctx.Err() != nil {
			return output.String(), fmt.Errorf("typesetting interrupted: %w", ctx.Err())
		}
		if lastErr != nil {
			logger.Warn("typesetter exited with error", slog.Int("pass", pass), slog.String("error", lastErr.Error()))
		}
	}

	pdfPath := filepath.Join(dir, pdfName)
	if _, err := os.Stat(pdfPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return output.String(), fmt.Errorf("latex error: no pdf produced: %s", firstError(output.String()))
		}
		return output.String(), fmt.Errorf("stat pdf: %w", err)
	}
	if lastErr != nil {
		logger.Info("typesetter reported errors but produced a pdf")
	}

	if err := copyFile(pdfPath, outputPath); err != nil {
		return output.String(), err
	}
	return output.String(), nil
}

// firstError 返回日志中第一条以 "!" 开头的错误行。
func firstError(log string) string {
	for _, line := range strings.Split(log, "\n") {
		if strings.HasPrefix(line, "!") {
			return strings.TrimSpace(line)
		}
	}
	return "see typesetter log"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output pdf: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy pdf: %w", err)
	}
	return out.Close()
}
