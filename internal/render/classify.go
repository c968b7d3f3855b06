package render

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Class is the failure category of a render or thumbnail error.
type Class string

const (
	ClassDependency Class = "dependency"
	ClassData       Class = "data"
	ClassNetwork    Class = "network"
	ClassStorage    Class = "storage"
	ClassUnknown    Class = "unknown"
)

// Retryable reports whether the client may try again later.
func (c Class) Retryable() bool {
	switch c {
	case ClassDependency, ClassData:
		return false
	default:
		return true
	}
}

// UserMessage 返回可以展示给用户的描述，不含任何引擎输出。
func (c Class) UserMessage() string {
	switch c {
	case ClassDependency:
		return "the server is misconfigured and cannot render this template"
	case ClassData:
		return "the resume could not be rendered, please review its content"
	case ClassNetwork:
		return "a network error interrupted rendering, please retry"
	case ClassStorage:
		return "a storage error interrupted rendering, please retry"
	default:
		return "rendering failed, please retry"
	}
}

// ClassifiedError carries an explicit class through error chains.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// WithClass wraps err with an explicit class.
func WithClass(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

var classMarkers = []struct {
	class   Class
	markers []string
}{
	{ClassDependency, []string{
		"executable file not found",
		"command not found",
		"failed to launch browser",
		"launch chromium",
		"unknown engine",
		"unknown template",
		"font not found",
		"cannot find",
	}},
	{ClassData, []string{
		"yaml:",
		"template:",
		"undefined control sequence",
		"latex error",
		"emergency stop",
		"missing $ inserted",
		"runaway argument",
		"decode resume",
	}},
	{ClassStorage, []string{
		"bucket",
		"nosuchkey",
		"minio",
		"storage",
		"put object",
		"get object",
	}},
	{ClassNetwork, []string{
		"server disconnected",
		"connection",
		"timeout",
		"timed out",
		"reset",
		"network",
		"no such host",
	}},
}

// Classify decides the class of a render pipeline error. Explicit classes win,
// then message markers are checked in dependency, data, storage, network order.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	var je *JobError
	if errors.As(err, &je) && je.Class != "" {
		return je.Class
	}
	if errors.Is(err, exec.ErrNotFound) {
		return ClassDependency
	}
	lower := strings.ToLower(err.Error())
	for _, group := range classMarkers {
		for _, m := range group.markers {
			if strings.Contains(lower, m) {
				return group.class
			}
		}
	}
	return ClassUnknown
}
