// Package fingerprint computes the content hash used to coalesce unchanged saves.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// IconMeta is the part of an icon that participates in the fingerprint.
// Size stands in for the bytes.
type IconMeta struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Compute 返回 contact、sections 与排序后图标元数据的规范化 JSON 的 SHA-256 十六进制摘要。
func Compute(contact, sections any, icons []IconMeta) (string, error) {
	sorted := make([]IconMeta, len(icons))
	copy(sorted, icons)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	canonical, err := Canonicalize(map[string]any{
		"contact":  contact,
		"sections": sections,
		"icons":    sorted,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize 序列化为键按字典序排列、无多余空白的 JSON。
// 先编码再以 UseNumber 解码为通用值，结构体字段顺序与数字格式都不会影响结果。
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode canonical content: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
