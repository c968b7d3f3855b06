package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"resumeforge/internal/latex"
	"resumeforge/internal/render"
	"resumeforge/internal/resume"
	"resumeforge/internal/templates"
)

type fakeConverter struct {
	html string
}

func (f *fakeConverter) Convert(_ context.Context, htmlPath string) ([]byte, error) {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}
	f.html = string(data)
	return []byte("%PDF-1.7 fake"), nil
}

func mustTemplate(t *testing.T, id string) templates.Template {
	t.Helper()
	tpl, ok := templates.Get(id)
	require.True(t, ok)
	return tpl
}

func writeSession(t *testing.T, doc resume.Document) (string, string) {
	t.Helper()
	dir := t.TempDir()
	data, err := resume.MarshalYAML(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, "resume.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return dir, path
}

func TestBuildView_DynamicColumns(t *testing.T) {
	doc := resume.Document{Sections: []resume.Section{
		{Name: "Skills", Type: resume.TypeDynamicColumnList, Content: []any{"a", "b", "c", "d", "e", "f", "g"}},
		{Name: "Few", Type: resume.TypeDynamicColumnList, Content: []any{"a", "b"}},
		{Name: "Summary", Content: "hello"},
	}}
	view := BuildView(doc, templates.Template{Theme: templates.Theme{MaxColumns: 4, MinPerColumn: 3}})
	require.Len(t, view.Sections[0].Columns, 2)
	require.Len(t, view.Sections[1].Columns, 1)
	require.Equal(t, resume.TypeText, view.Sections[2].Type)
	require.Equal(t, "hello", view.Sections[2].Text)
}

func TestBuildView_LinkText(t *testing.T) {
	doc := resume.Document{Contact: resume.Contact{
		Name: "Jane Doe",
		SocialLinks: []resume.SocialLink{
			{Platform: "github", URL: "https://github.com/jd", Handle: "jd"},
			{Platform: "website", URL: "https://jd.dev"},
			{Platform: "medium"},
		},
	}}
	view := BuildView(doc, templates.Template{})
	require.Len(t, view.Contact.Links, 2)
	require.Equal(t, "jd", view.Contact.Links[0].Text)
	require.Equal(t, "github.png", view.Contact.Links[0].Icon)
	require.Equal(t, "https://jd.dev", view.Contact.Links[1].Text)
}

func TestRenderLaTeX_URLLinkTextAndMailto(t *testing.T) {
	tpl := mustTemplate(t, "classic")
	doc := resume.Document{Contact: resume.Contact{
		Name:  "Jane Doe",
		Email: "jane_doe@x.com",
		SocialLinks: []resume.SocialLink{
			{Platform: "github", URL: "https://github.com/jane_doe"},
			{Platform: "website", URL: "https://example.com/~jane"},
			{Platform: "blog", URL: "https://blog.io/a_b", DisplayText: "my_blog"},
		},
	}}
	escaped, err := EscapeDocument(doc)
	require.NoError(t, err)

	src, err := RenderLaTeX(tpl, LaTeXView(doc, escaped, tpl))
	require.NoError(t, err)
	require.Contains(t, src, `\href{https://github.com/jane_doe}{https://github.com/jane\_doe}`)
	require.Contains(t, src, `\href{https://example.com/~jane}{https://example.com/\textasciitilde{}jane}`)
	require.Contains(t, src, `\href{https://blog.io/a_b}{my\_blog}`)
	require.Contains(t, src, `\href{mailto:jane_doe@x.com}{jane\_doe@x.com}`)
}

func TestMarkdownHTML(t *testing.T) {
	require.Equal(t, `<strong>bold</strong> &amp; <em>it</em>`, string(markdownHTML("**bold** & *it*")))
	require.Equal(t, `<a href="https://x.io/?a=1&amp;b=2">x</a>`, string(markdownHTML("[x](https://x.io/?a=1&b=2)")))
	require.Equal(t, `click`, string(markdownHTML("[click](javascript:alert(1))")))
	require.Equal(t, `&lt;script&gt;`, string(markdownHTML("<script>")))
}

func TestExecute_HTML(t *testing.T) {
	tpl := mustTemplate(t, "modern")
	doc, err := tpl.ExampleDocument()
	require.NoError(t, err)
	dir, yamlPath := writeSession(t, doc)

	conv := &fakeConverter{}
	exec := NewWithConverter(conv, latex.Typesetter{}, nil)
	out := filepath.Join(dir, "out.pdf")
	_, err = exec.Execute(context.Background(), render.Job{
		ID: "j", Engine: render.EngineHTML, TemplateID: "modern",
		YAMLPath: yamlPath, OutputPath: out, SessionDir: dir,
	})
	require.NoError(t, err)

	pdfBytes, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(pdfBytes), "%PDF"))

	require.Contains(t, conv.html, "Alex Morgan")
	require.Contains(t, conv.html, `src="email.png"`)
	require.Contains(t, conv.html, `src="go.png"`)
	require.Contains(t, conv.html, "<strong>eight years</strong>")
	require.Contains(t, conv.html, "Alex Morgan</a>")
}

func TestExecute_LaTeX(t *testing.T) {
	tpl := mustTemplate(t, "classic")
	doc, err := tpl.ExampleDocument()
	require.NoError(t, err)
	dir, yamlPath := writeSession(t, doc)

	captured := filepath.Join(dir, "captured.tex")
	script := filepath.Join(t.TempDir(), "fake-xelatex")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
out=""
src=""
while [ $# -gt 0 ]; do
  case "$1" in
    -output-directory) out="$2"; shift ;;
    *.tex) src="$1" ;;
  esac
  shift
done
cp "$out/$src" "`+captured+`"
printf '%%PDF-1.5' > "$out/resume.pdf"
`), 0o755))

	exec := NewWithConverter(&fakeConverter{}, latex.Typesetter{Binary: script}, nil)
	out := filepath.Join(dir, "out.pdf")
	_, err = exec.Execute(context.Background(), render.Job{
		ID: "j", Engine: render.EngineLaTeX, TemplateID: "classic",
		YAMLPath: yamlPath, OutputPath: out, SessionDir: dir,
	})
	require.NoError(t, err)

	tex, err := os.ReadFile(captured)
	require.NoError(t, err)
	src := string(tex)
	require.Contains(t, src, `Fabrikam \& Co.`)
	require.Contains(t, src, `AWS\_Glue`)
	require.Contains(t, src, `\textasciitilde{}30\%`)
	require.Contains(t, src, `\textbf{double-entry}`)
	require.Contains(t, src, `\underline{contract tests}`)
	require.Contains(t, src, `99.95\%`)
	require.Contains(t, src, `\href{https://www.linkedin.com/in/jordan-lee}{Jordan Lee}`)
	require.Contains(t, src, `\begin{multicols}{2}`)
}

func TestExecute_BadYAMLIsDataError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contact_info: [unclosed"), 0o600))

	exec := NewWithConverter(&fakeConverter{}, latex.Typesetter{}, nil)
	_, err := exec.Execute(context.Background(), render.Job{ID: "j", Engine: render.EngineHTML, YAMLPath: path, OutputPath: filepath.Join(dir, "o.pdf"), SessionDir: dir})
	require.Error(t, err)
	require.Equal(t, render.ClassData, render.Classify(err))
}
