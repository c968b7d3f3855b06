package resume

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML 把文档写成渲染子进程读取的 YAML。
func MarshalYAML(doc Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode resume yaml: %w", err)
	}
	return data, nil
}

// UnmarshalYAML 解析 YAML 文档并规范化。
func UnmarshalYAML(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode resume yaml: %w", err)
	}
	Normalize(&doc)
	return doc, nil
}
