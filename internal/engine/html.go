package engine

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"os"
	"path/filepath"

	"resumeforge/internal/pdf"
	"resumeforge/internal/resume"
	"resumeforge/internal/templates"
)

const htmlFileName = "resume.html"

func htmlFuncs() htmltemplate.FuncMap {
	return htmltemplate.FuncMap{
		"md":    func(s string) htmltemplate.HTML { return markdownHTML(s) },
		"icon":  func(name string) string { return url.PathEscape(resume.IconBasename(name)) },
		"field": field,
		"list":  list,
		"str":   str,
		"join":  join,
	}
}

// RenderHTML 渲染 HTML 模板到字节。
func RenderHTML(tpl templates.Template, view View) ([]byte, error) {
	source, err := tpl.SourceText()
	if err != nil {
		return nil, err
	}
	t, err := htmltemplate.New(tpl.ID).Funcs(htmlFuncs()).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse html template %s: %w", tpl.ID, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute html template %s: %w", tpl.ID, err)
	}
	return buf.Bytes(), nil
}

// htmlEngine 把 HTML 写进会话目录，图标以相对路径引用同目录文件。
type htmlEngine struct {
	converter pdf.Converter
}

func (e *htmlEngine) render(ctx context.Context, tpl templates.Template, doc resume.Document, sessionDir, outputPath string) (string, error) {
	resume.ApplyLinkedInDisplay(&doc.Contact)
	page, err := RenderHTML(tpl, BuildView(doc, tpl))
	if err != nil {
		return "", err
	}
	htmlPath := filepath.Join(sessionDir, htmlFileName)
	if err := os.WriteFile(htmlPath, page, 0o600); err != nil {
		return "", fmt.Errorf("write html: %w", err)
	}
	data, err := e.converter.Convert(ctx, htmlPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return "", nil
}
