// Package latex prepares resume content for LaTeX and drives the typesetter.
//
// Content is escaped in three passes: every special character except the
// markdown-active ones (_ * ~ +) is escaped, inline markdown is converted to
// LaTeX commands, and any _ or ~ left over is escaped last.
package latex

import (
	"regexp"
	"strings"
)

var replacements = map[rune]string{
	'\\': `\textbackslash{}`,
	'&':  `\&`,
	'%':  `\%`,
	'$':  `\$`,
	'#':  `\#`,
	'{':  `\{`,
	'}':  `\}`,
	'^':  `\textasciicircum{}`,
}

// Escape escapes LaTeX special characters in one pass, leaving _ * ~ + untouched.
func Escape(s string) string {
	if !strings.ContainsAny(s, `\&%$#{}^`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if rep, ok := replacements[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeURL escapes only what breaks inside \href.
func EscapeURL(s string) string {
	return strings.NewReplacer(`%`, `\%`, `#`, `\#`).Replace(s)
}

var (
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	strikeRe    = regexp.MustCompile(`~~(.+?)~~`)
	underlineRe = regexp.MustCompile(`\+\+(.+?)\+\+`)
	italicRe    = regexp.MustCompile(`\*([^*\s](?:[^*]*?[^*\s])?)\*`)
	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

// Markdown converts inline markdown to LaTeX commands.
func Markdown(s string) string {
	if !strings.ContainsAny(s, "*~+[") {
		return s
	}
	s = linkRe.ReplaceAllString(s, `\href{$2}{$1}`)
	s = boldRe.ReplaceAllString(s, `\textbf{$1}`)
	s = strikeRe.ReplaceAllString(s, `\sout{$1}`)
	s = underlineRe.ReplaceAllString(s, `\underline{$1}`)
	s = italicRe.ReplaceAllString(s, `\textit{$1}`)
	return s
}

const hrefPrefix = `\href{`

// MopUp escapes stray _ and ~ outside \href targets.
func MopUp(s string) string {
	if !strings.ContainsAny(s, "_~") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], hrefPrefix) {
			end := strings.IndexByte(s[i+len(hrefPrefix):], '}')
			if end >= 0 {
				stop := i + len(hrefPrefix) + end + 1
				b.WriteString(s[i:stop])
				i = stop
				continue
			}
		}
		switch s[i] {
		case '\\':
			// 已转义的 \_ 或 \~ 原样保留。
			if i+1 < len(s) && (s[i+1] == '_' || s[i+1] == '~') {
				b.WriteString(s[i : i+2])
				i += 2
				continue
			}
			b.WriteByte(s[i])
		case '_':
			b.WriteString(`\_`)
		case '~':
			b.WriteString(`\textasciitilde{}`)
		default:
			b.WriteByte(s[i])
		}
		i++
	}
	return b.String()
}

// Filter runs the full pipeline on one string.
func Filter(s string) string {
	return MopUp(Markdown(Escape(s)))
}

// EscapeTree 递归处理任意 JSON 形态的数据，key 为 type 的字符串保持原样，url 只做链接转义。
func EscapeTree(v any) any {
	return escapeValue("", v)
}

func escapeValue(key string, v any) any {
	switch t := v.(type) {
	case string:
		switch strings.ToLower(key) {
		case "type":
			return t
		case "url":
			return EscapeURL(t)
		default:
			return Filter(t)
		}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = escapeValue(k, child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			// 列表元素继承父键，使 type 列表同样保持原样。
			out[i] = escapeValue(key, child)
		}
		return out
	default:
		return v
	}
}
