// Package icons reconciles the icon set a client sends on save with the
// icon rows and objects already persisted for a resume.
package icons

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"resumeforge/internal/apperr"
)

// MaxIconBytes 为单个图标解码后的大小上限。
const MaxIconBytes = 2 << 20

// Upload 是保存请求中携带的图标：文件名加 base64 内容（可带 data URL 前缀）。
type Upload struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// Desired 是解码后的目标图标。
type Desired struct {
	Filename string
	Data     []byte
	Size     int64
	MimeType string
}

// MimeFromFilename 按扩展名推断 MIME，未知扩展名按 png 处理。
func MimeFromFilename(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	default:
		return "image/png"
	}
}

// ValidFilename 校验图标文件名只是一个安全的 basename。
func ValidFilename(name string) bool {
	if name == "" || !utf8.ValidString(name) || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return strings.TrimSpace(name) == name
}

// ParseDesired 解码请求中的图标。同名图标以最后一个为准。
func ParseDesired(in []Upload) ([]Desired, error) {
	out := make([]Desired, 0, len(in))
	index := make(map[string]int, len(in))
	for _, u := range in {
		name := u.Filename
		if !ValidFilename(name) {
			return nil, apperr.Validation(fmt.Sprintf("invalid icon filename %q", name))
		}
		data, err := decodePayload(u.Data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("invalid icon data for %q", name), err)
		}
		if len(data) > MaxIconBytes {
			return nil, apperr.Validation(fmt.Sprintf("icon %q exceeds %d bytes", name, MaxIconBytes))
		}
		d := Desired{
			Filename: name,
			Data:     data,
			Size:     int64(len(data)),
			MimeType: MimeFromFilename(name),
		}
		if i, ok := index[name]; ok {
			out[i] = d
			continue
		}
		index[name] = len(out)
		out = append(out, d)
	}
	return out, nil
}

func decodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data url")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// 浏览器端偶尔会去掉 padding。
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}
	return data, nil
}
