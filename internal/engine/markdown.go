package engine

import (
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	mdBold      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdStrike    = regexp.MustCompile(`~~(.+?)~~`)
	mdUnderline = regexp.MustCompile(`\+\+(.+?)\+\+`)
	mdItalic    = regexp.MustCompile(`\*([^*\s](?:[^*]*?[^*\s])?)\*`)
	mdLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

	inlinePolicy = newInlinePolicy()
)

// newInlinePolicy 只放行行内 markdown 会生成的标签。
func newInlinePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("strong", "em", "s", "u")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	return p
}

// markdownHTML 转换行内 markdown，输入先做 HTML 转义，输出再过一遍白名单。
func markdownHTML(s string) template.HTML {
	out := html.EscapeString(s)
	out = mdLink.ReplaceAllStringFunc(out, func(m string) string {
		parts := mdLink.FindStringSubmatch(m)
		href := html.UnescapeString(parts[2])
		if !safeHref(href) {
			return parts[1]
		}
		return `<a href="` + html.EscapeString(href) + `">` + parts[1] + `</a>`
	})
	out = mdBold.ReplaceAllString(out, `<strong>$1</strong>`)
	out = mdStrike.ReplaceAllString(out, `<s>$1</s>`)
	out = mdUnderline.ReplaceAllString(out, `<u>$1</u>`)
	out = mdItalic.ReplaceAllString(out, `<em>$1</em>`)
	return template.HTML(inlinePolicy.Sanitize(out))
}

func safeHref(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:")
}
