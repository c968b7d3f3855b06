// Package render schedules resume render jobs onto isolated child processes.
//
// The parent and the child speak newline-delimited JSON: one Job per line on
// the child's stdin, one Result per line on its stdout. Child logs go to stderr.
package render

import (
	"strings"
)

// Engine selects the child-side renderer.
type Engine string

const (
	EngineHTML  Engine = "html"
	EngineLaTeX Engine = "latex"
)

// EngineForTemplate maps a template id to its engine. Ids starting with
// "classic" use LaTeX; everything else, including unknown ids, uses HTML.
func EngineForTemplate(templateID string) Engine {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(templateID)), "classic") {
		return EngineLaTeX
	}
	return EngineHTML
}

// Job 描述一次渲染：读取 YAMLPath，在 SessionDir 中寻找图标，写出 OutputPath。
type Job struct {
	ID         string `json:"id"`
	Engine     Engine `json:"engine"`
	TemplateID string `json:"template_id"`
	YAMLPath   string `json:"yaml_path"`
	OutputPath string `json:"output_path"`
	SessionDir string `json:"session_dir"`
	SessionID  string `json:"session_id"`
}

// Result 是子进程对一个 Job 的回答。
type Result struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Class Class  `json:"class,omitempty"`
	// Log 为子进程收集到的引擎输出尾部，只用于日志。
	Log string `json:"log,omitempty"`
}
