// Package resume holds the resume document model and the pure transformations applied to it
// before persistence and rendering.
package resume

// Section types understood by the templates.
const (
	TypeText              = "text"
	TypeBulletedList      = "bulleted-list"
	TypeInlineList        = "inline-list"
	TypeDynamicColumnList = "dynamic-column-list"
	TypeIconList          = "icon-list"
	TypeExperience        = "experience"
	TypeEducation         = "education"
)

// SectionTypes lists every accepted section type.
var SectionTypes = []string{
	TypeText,
	TypeBulletedList,
	TypeInlineList,
	TypeDynamicColumnList,
	TypeIconList,
	TypeExperience,
	TypeEducation,
}

// Social platforms with a dedicated base contact icon.
var SocialPlatforms = []string{
	"linkedin",
	"github",
	"twitter",
	"website",
	"medium",
	"stackoverflow",
}

// SocialLink 是联系方式中的一个社交链接。
type SocialLink struct {
	Platform    string `json:"platform" yaml:"platform"`
	URL         string `json:"url" yaml:"url"`
	Handle      string `json:"handle,omitempty" yaml:"handle,omitempty"`
	DisplayText string `json:"display_text,omitempty" yaml:"display_text,omitempty"`
}

// Contact 是简历的联系方式块。LinkedIn 为历史平铺字段，读写时迁移进 SocialLinks。
type Contact struct {
	Name        string       `json:"name" yaml:"name"`
	Location    string       `json:"location" yaml:"location"`
	Email       string       `json:"email" yaml:"email"`
	Phone       string       `json:"phone" yaml:"phone"`
	LinkedIn    string       `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	SocialLinks []SocialLink `json:"social_links" yaml:"social_links"`
}

// Section 是简历中的一个区块，Content 的形态取决于 Type。
type Section struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Content any    `json:"content" yaml:"content"`
}

// Document 是参与指纹计算与渲染的语义内容。
type Document struct {
	Contact  Contact   `json:"contact_info" yaml:"contact_info"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// IsListType reports whether the section content is a sequence.
func IsListType(t string) bool {
	switch t {
	case TypeText:
		return false
	default:
		return true
	}
}
