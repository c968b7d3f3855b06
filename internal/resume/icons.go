package resume

import (
	"path"
	"sort"
	"strings"
)

const iconKey = "icon"

// ReferencedIcons 扫描区块树中所有 icon 键，返回去重排序后的文件名（仅保留 basename）。
func ReferencedIcons(sections []Section) []string {
	seen := make(map[string]struct{})
	for _, s := range sections {
		collectIcons(s.Content, seen)
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectIcons(v any, seen map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == iconKey {
				if s, ok := child.(string); ok {
					if name := IconBasename(s); name != "" {
						seen[name] = struct{}{}
					}
					continue
				}
			}
			collectIcons(child, seen)
		}
	case []any:
		for _, child := range t {
			collectIcons(child, seen)
		}
	}
}

// IconBasename strips any directory component from an icon reference.
func IconBasename(ref string) string {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" {
		return ""
	}
	base := path.Base(ref)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// BaseContactIcons 返回支持图标的模板始终引用的联系方式图标。
func BaseContactIcons() []string {
	out := []string{"location.png", "email.png", "phone.png"}
	for _, p := range SocialPlatforms {
		out = append(out, p+".png")
	}
	return out
}
