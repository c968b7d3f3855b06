package resume

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const linkedinPlatform = "linkedin"

// Normalize 在保存与渲染前执行：空列表统一为 []，补全 Experience/Education 区块类型，迁移历史 LinkedIn 字段。
// 重复调用结果不变。
func Normalize(doc *Document) {
	if doc.Sections == nil {
		doc.Sections = []Section{}
	}
	if doc.Contact.SocialLinks == nil {
		doc.Contact.SocialLinks = []SocialLink{}
	}
	NormalizeSections(doc.Sections)
	MigrateLegacyLinkedIn(&doc.Contact)
}

// NormalizeSections attaches the implied type to sections named experience/education.
func NormalizeSections(sections []Section) {
	for i := range sections {
		if strings.TrimSpace(sections[i].Type) != "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(sections[i].Name)) {
		case TypeExperience:
			sections[i].Type = TypeExperience
		case TypeEducation:
			sections[i].Type = TypeEducation
		}
	}
}

// MigrateLegacyLinkedIn moves the flat linkedin field into social_links.
// An existing linkedin social link wins over the legacy value.
func MigrateLegacyLinkedIn(c *Contact) {
	legacy := strings.TrimSpace(c.LinkedIn)
	c.LinkedIn = ""
	if legacy == "" {
		return
	}
	for _, l := range c.SocialLinks {
		if strings.EqualFold(l.Platform, linkedinPlatform) {
			return
		}
	}

	link := SocialLink{Platform: linkedinPlatform}
	if strings.Contains(legacy, "linkedin.com") || strings.HasPrefix(legacy, "http") {
		link.URL = legacy
		if !strings.HasPrefix(link.URL, "http") {
			link.URL = "https://" + link.URL
		}
		link.Handle = LinkedInHandle(legacy)
	} else {
		link.Handle = strings.Trim(legacy, "/@ ")
		link.URL = "https://www.linkedin.com/in/" + link.Handle
	}
	c.SocialLinks = append(c.SocialLinks, link)
}

// LinkedInHandle extracts the profile handle from a LinkedIn URL.
func LinkedInHandle(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "in" || parts[i] == "pub" {
			return parts[i+1]
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}

// CompatLinkedIn 为旧模板派生平铺的 linkedin 字段，不写回存储。
func CompatLinkedIn(c Contact) string {
	for _, l := range c.SocialLinks {
		if strings.EqualFold(l.Platform, linkedinPlatform) {
			return l.URL
		}
	}
	return ""
}

const (
	linkedinFallbackDisplay = "LinkedIn Profile"
	maxHandleLength         = 50
)

var (
	fourDigitsRun = regexp.MustCompile(`\d{4,}`)
	randomSuffix  = regexp.MustCompile(`-[a-z0-9]{8,}$`)
)

// LinkedInDisplay 从 handle 推导可读的展示文本。
// 过长、连字符过多、含 4 位以上连续数字或带随机后缀的 handle 不可读，回落到姓名或通用文案。
func LinkedInDisplay(handle, name string) string {
	h := strings.ToLower(strings.Trim(strings.TrimSpace(handle), "/"))
	if readableHandle(h) {
		parts := strings.Split(h, "-")
		for i, p := range parts {
			parts[i] = titleWord(p)
		}
		return strings.Join(parts, " ")
	}
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return linkedinFallbackDisplay
}

func readableHandle(h string) bool {
	if h == "" || len(h) > maxHandleLength {
		return false
	}
	if strings.Count(h, "-") > 1 {
		return false
	}
	if fourDigitsRun.MatchString(h) {
		return false
	}
	if m := randomSuffix.FindString(h); m != "" && looksRandom(m[1:]) {
		return false
	}
	return true
}

// looksRandom 认为同时混有字母与数字的片段是系统生成的后缀。
func looksRandom(s string) bool {
	var letters, digits bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits = true
		case unicode.IsLetter(r):
			letters = true
		}
	}
	return letters && digits
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ApplyLinkedInDisplay fills display_text for LinkedIn links that lack it.
func ApplyLinkedInDisplay(c *Contact) {
	for i := range c.SocialLinks {
		l := &c.SocialLinks[i]
		if !strings.EqualFold(l.Platform, linkedinPlatform) || strings.TrimSpace(l.DisplayText) != "" {
			continue
		}
		handle := l.Handle
		if handle == "" {
			handle = LinkedInHandle(l.URL)
		}
		l.DisplayText = LinkedInDisplay(handle, c.Name)
	}
}
