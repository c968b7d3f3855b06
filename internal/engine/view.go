package engine

import (
	"fmt"
	"strings"

	"resumeforge/internal/resume"
	"resumeforge/internal/templates"
)

// LinkView 是联系方式中的一个社交链接。
type LinkView struct {
	Platform string
	URL      string
	Text     string
	Icon     string
}

// ContactView 是模板看到的联系方式。LinkedIn 为旧模板保留的平铺字段。
type ContactView struct {
	Name     string
	Location string
	Email    string
	EmailURL string
	Phone    string
	LinkedIn string
	Links    []LinkView
}

// SectionView 是模板看到的区块；Text 只对 text 类型有效，Columns 只对动态列表有效。
type SectionView struct {
	Name    string
	Type    string
	Text    string
	Items   []any
	Columns [][]any
}

// View 是传给 HTML 与 LaTeX 模板的数据。
type View struct {
	TemplateID string
	Theme      templates.Theme
	Icons      bool
	Contact    ContactView
	Sections   []SectionView
}

// BuildView 把规范化后的文档转换为模板数据。
func BuildView(doc resume.Document, tpl templates.Template) View {
	v := View{
		TemplateID: tpl.ID,
		Theme:      tpl.Theme,
		Icons:      tpl.SupportsIcons,
		Contact: ContactView{
			Name:     doc.Contact.Name,
			Location: doc.Contact.Location,
			Email:    doc.Contact.Email,
			EmailURL: doc.Contact.Email,
			Phone:    doc.Contact.Phone,
			LinkedIn: resume.CompatLinkedIn(doc.Contact),
		},
	}
	v.Contact.Links = linkViews(doc.Contact.SocialLinks)
	for _, s := range doc.Sections {
		v.Sections = append(v.Sections, buildSection(s, tpl.Theme))
	}
	return v
}

// linkViews 跳过空 URL 的链接，显示文本依次取 display_text、handle、URL。
func linkViews(links []resume.SocialLink) []LinkView {
	var out []LinkView
	for _, l := range links {
		if strings.TrimSpace(l.URL) == "" {
			continue
		}
		text := l.DisplayText
		if text == "" {
			text = l.Handle
		}
		if text == "" {
			text = l.URL
		}
		out = append(out, LinkView{
			Platform: l.Platform,
			URL:      l.URL,
			Text:     text,
			Icon:     strings.ToLower(l.Platform) + ".png",
		})
	}
	return out
}

func buildSection(s resume.Section, theme templates.Theme) SectionView {
	sv := SectionView{Name: s.Name, Type: s.Type}
	if sv.Type == "" {
		if _, ok := s.Content.(string); ok {
			sv.Type = resume.TypeText
		} else {
			sv.Type = resume.TypeBulletedList
		}
	}

	if sv.Type == resume.TypeText {
		if text, ok := s.Content.(string); ok {
			sv.Text = text
		} else {
			parts := make([]string, 0)
			for _, item := range asList(s.Content) {
				parts = append(parts, str(item))
			}
			sv.Text = strings.Join(parts, " ")
		}
		return sv
	}

	sv.Items = asList(s.Content)
	if sv.Type == resume.TypeDynamicColumnList {
		n := resume.ColumnCount(len(sv.Items), theme.MinPerColumn, theme.MaxColumns)
		sv.Columns = resume.SplitColumns(sv.Items, n)
	}
	return sv
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []any{t}
	default:
		return []any{t}
	}
}

// str 把任意标量转为字符串，nil 为空串。
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		for _, k := range []string{"name", "text", "title"} {
			if s, ok := t[k]; ok {
				return str(s)
			}
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func field(v any, key string) string {
	m, ok := v.(map[string]any)
	if !ok {
		if key == "name" {
			return str(v)
		}
		return ""
	}
	return str(m[key])
}

func list(v any, key string) []any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return asList(m[key])
}

func join(items []any, sep string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, str(item))
	}
	return strings.Join(parts, sep)
}
