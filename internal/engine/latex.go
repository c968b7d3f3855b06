package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"resumeforge/internal/latex"
	"resumeforge/internal/resume"
	"resumeforge/internal/templates"
)

func latexFuncs() template.FuncMap {
	return template.FuncMap{
		"field": field,
		"list":  list,
		"str":   str,
		"join":  join,
	}
}

// EscapeDocument 深拷贝文档并对全部字符串做 LaTeX 处理。
func EscapeDocument(doc resume.Document) (resume.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return resume.Document{}, fmt.Errorf("copy resume: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return resume.Document{}, fmt.Errorf("copy resume: %w", err)
	}
	escaped, err := json.Marshal(latex.EscapeTree(tree))
	if err != nil {
		return resume.Document{}, fmt.Errorf("copy resume: %w", err)
	}
	var out resume.Document
	if err := json.Unmarshal(escaped, &out); err != nil {
		return resume.Document{}, fmt.Errorf("copy resume: %w", err)
	}
	return out, nil
}

// LaTeXView 基于已转义的文档构建视图。
// 链接目标与正文的转义规则不同：回落为 URL 的链接文本和 mailto 目标从原始值重新转义。
func LaTeXView(raw, escaped resume.Document, tpl templates.Template) View {
	view := BuildView(escaped, tpl)
	view.Contact.EmailURL = latex.EscapeURL(raw.Contact.Email)
	rawLinks := linkViews(raw.Contact.SocialLinks)
	for i := range view.Contact.Links {
		if i >= len(rawLinks) {
			break
		}
		if rawLinks[i].Text == rawLinks[i].URL {
			view.Contact.Links[i].Text = latex.MopUp(latex.Escape(rawLinks[i].URL))
		}
	}
	return view
}

// RenderLaTeX 渲染 .tex 源码，模板使用 << >> 作为定界符。
func RenderLaTeX(tpl templates.Template, view View) (string, error) {
	source, err := tpl.SourceText()
	if err != nil {
		return "", err
	}
	t, err := template.New(tpl.ID).Delims("<<", ">>").Funcs(latexFuncs()).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse latex template %s: %w", tpl.ID, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("execute latex template %s: %w", tpl.ID, err)
	}
	return buf.String(), nil
}

type latexEngine struct {
	typesetter latex.Typesetter
}

func (e *latexEngine) render(ctx context.Context, tpl templates.Template, doc resume.Document, outputPath string) (string, error) {
	resume.ApplyLinkedInDisplay(&doc.Contact)
	escaped, err := EscapeDocument(doc)
	if err != nil {
		return "", err
	}
	source, err := RenderLaTeX(tpl, LaTeXView(doc, escaped, tpl))
	if err != nil {
		return "", err
	}
	return e.typesetter.Typeset(ctx, source, outputPath)
}
