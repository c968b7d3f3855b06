// Package templates holds the embedded template catalog: metadata, template
// sources, example resumes and the default icon set.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"resumeforge/internal/resume"
)

//go:embed catalog.yaml examples/*.yaml html/*.html latex/*.tex icons/*.png
var files embed.FS

// Theme 是模板可调的样式参数。
type Theme struct {
	Accent       string  `yaml:"accent" json:"accent,omitempty"`
	FontSize     float64 `yaml:"font_size" json:"font_size,omitempty"`
	Compact      bool    `yaml:"compact" json:"compact,omitempty"`
	MaxColumns   int     `yaml:"max_columns" json:"max_columns,omitempty"`
	MinPerColumn int     `yaml:"min_per_column" json:"min_per_column,omitempty"`
}

// Template 描述目录中的一个模板。
type Template struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description"`
	ImageURL      string `yaml:"image_url" json:"image_url"`
	SupportsIcons bool   `yaml:"supports_icons" json:"supportsIcons"`
	Source        string `yaml:"source" json:"-"`
	Example       string `yaml:"example" json:"-"`
	Theme         Theme  `yaml:"theme" json:"-"`
}

var (
	loadOnce sync.Once
	catalog  []Template
	loadErr  error
)

func load() ([]Template, error) {
	loadOnce.Do(func() {
		data, err := files.ReadFile("catalog.yaml")
		if err != nil {
			loadErr = fmt.Errorf("read catalog: %w", err)
			return
		}
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			loadErr = fmt.Errorf("parse catalog: %w", err)
		}
	})
	return catalog, loadErr
}

// Catalog 返回全部模板，顺序与 catalog.yaml 一致。
func Catalog() []Template {
	list, err := load()
	if err != nil {
		panic(err)
	}
	out := make([]Template, len(list))
	copy(out, list)
	return out
}

// Get 按 id 查找模板。
func Get(id string) (Template, bool) {
	for _, t := range Catalog() {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Resolve 查找模板，未知 id 按前缀回落：classic 开头用 classic，其余用 modern。
func Resolve(id string) (Template, bool) {
	if tpl, ok := Get(id); ok {
		return tpl, true
	}
	fallback := "modern"
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), "classic") {
		fallback = "classic"
	}
	return Get(fallback)
}

// SourceText 返回模板源文件内容。
func (t Template) SourceText() (string, error) {
	data, err := files.ReadFile(t.Source)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", t.ID, err)
	}
	return string(data), nil
}

// ExampleYAML 返回模板自带的示例简历 YAML。
func (t Template) ExampleYAML() ([]byte, error) {
	data, err := files.ReadFile(t.Example)
	if err != nil {
		return nil, fmt.Errorf("read example for %s: %w", t.ID, err)
	}
	return data, nil
}

// ExampleDocument 解析示例 YAML 并规范化。
func (t Template) ExampleDocument() (resume.Document, error) {
	data, err := t.ExampleYAML()
	if err != nil {
		return resume.Document{}, err
	}
	return resume.UnmarshalYAML(data)
}

// DefaultIcon 返回内置图标内容。
func DefaultIcon(name string) ([]byte, bool) {
	name = resume.IconBasename(name)
	if name == "" {
		return nil, false
	}
	data, err := files.ReadFile(path.Join("icons", name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// DefaultIconNames 列出全部内置图标文件名。
func DefaultIconNames() []string {
	entries, err := fs.ReadDir(files, "icons")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}
