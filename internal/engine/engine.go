// Package engine is the child-process side of rendering: it loads the session
// YAML, renders the selected template and produces the PDF.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"resumeforge/internal/latex"
	"resumeforge/internal/pdf"
	"resumeforge/internal/render"
	"resumeforge/internal/resume"
	"resumeforge/internal/templates"
)

// Config 为子进程的引擎设置。
type Config struct {
	HTMLBackend   string
	BrowserBinary string
	LatexBinary   string
	Timeout       time.Duration
}

// Executor 按 job 的引擎分派渲染，实现 render.Executor。
type Executor struct {
	html   *htmlEngine
	latex  *latexEngine
	logger *slog.Logger
}

// New 构造 Executor。
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	converter, err := pdf.New(cfg.HTMLBackend, pdf.Options{BrowserBinary: cfg.BrowserBinary, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return NewWithConverter(converter, latex.Typesetter{Binary: cfg.LatexBinary, Logger: logger}, logger), nil
}

// NewWithConverter 允许替换 HTML 转换器与排版程序。
func NewWithConverter(converter pdf.Converter, typesetter latex.Typesetter, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		html:   &htmlEngine{converter: converter},
		latex:  &latexEngine{typesetter: typesetter},
		logger: logger,
	}
}

var _ render.Executor = (*Executor)(nil)

// Execute 读取会话 YAML 并按引擎渲染到 job.OutputPath。
func (e *Executor) Execute(ctx context.Context, job render.Job) (string, error) {
	data, err := os.ReadFile(job.YAMLPath)
	if err != nil {
		return "", fmt.Errorf("read session yaml: %w", err)
	}
	doc, err := resume.UnmarshalYAML(data)
	if err != nil {
		return "", render.WithClass(render.ClassData, err)
	}

	tpl, err := resolveTemplate(job)
	if err != nil {
		return "", err
	}

	switch job.Engine {
	case render.EngineLaTeX:
		return e.latex.render(ctx, tpl, doc, job.OutputPath)
	case render.EngineHTML, "":
		return e.html.render(ctx, tpl, doc, job.SessionDir, job.OutputPath)
	default:
		return "", render.WithClass(render.ClassDependency, fmt.Errorf("unknown engine %q", job.Engine))
	}
}

func resolveTemplate(job render.Job) (templates.Template, error) {
	id := job.TemplateID
	if _, ok := templates.Get(id); !ok && job.Engine == render.EngineLaTeX && !strings.HasPrefix(id, "classic") {
		id = "classic"
	}
	tpl, ok := templates.Resolve(id)
	if !ok {
		return templates.Template{}, render.WithClass(render.ClassDependency, fmt.Errorf("unknown template %q", job.TemplateID))
	}
	return tpl, nil
}
