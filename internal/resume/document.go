package resume

import (
	"encoding/json"
	"fmt"
)

// DecodeDocument 校验并解码客户端提交的 contact_info 与 sections，随后做规范化。
// contact 为空时视为空联系方式块。
func DecodeDocument(contact map[string]any, sections []any) (Document, error) {
	if contact == nil {
		contact = map[string]any{}
	}
	if sections == nil {
		sections = []any{}
	}
	if err := ValidateDocument(map[string]any{
		"contact_info": contact,
		"sections":     sections,
	}); err != nil {
		return Document{}, err
	}

	var doc Document
	if err := remarshal(contact, &doc.Contact); err != nil {
		return Document{}, fmt.Errorf("decode contact_info: %w", err)
	}
	if err := remarshal(sections, &doc.Sections); err != nil {
		return Document{}, fmt.Errorf("decode sections: %w", err)
	}
	Normalize(&doc)
	return doc, nil
}

// LoadStored decodes persisted JSON columns and applies the read-side migration.
func LoadStored(contactJSON, sectionsJSON []byte) (Document, error) {
	var doc Document
	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &doc.Contact); err != nil {
			return Document{}, fmt.Errorf("decode stored contact: %w", err)
		}
	}
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &doc.Sections); err != nil {
			return Document{}, fmt.Errorf("decode stored sections: %w", err)
		}
	}
	Normalize(&doc)
	return doc, nil
}

// Skeleton 清空示例内容：联系方式置空，区块保留名称与类型但内容为空。
func Skeleton(doc Document) Document {
	out := Document{
		Contact:  Contact{SocialLinks: []SocialLink{}},
		Sections: make([]Section, 0, len(doc.Sections)),
	}
	for _, s := range doc.Sections {
		var content any = []any{}
		if s.Type == TypeText {
			content = ""
		}
		out.Sections = append(out.Sections, Section{Name: s.Name, Type: s.Type, Content: content})
	}
	return out
}

// Clone returns a deep copy of the document.
func Clone(doc Document) (Document, error) {
	var out Document
	if err := remarshal(doc, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
