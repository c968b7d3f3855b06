package render

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by Run after Close.
var ErrPoolClosed = errors.New("render pool closed")

// JobError 描述一次失败的渲染。Stderr 只写日志，不返回给客户端。
type JobError struct {
	JobID    string
	Engine   Engine
	Message  string
	Class    Class
	TimedOut bool
	ExitCode int
	Stderr   string
}

func (e *JobError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("render job %s timed out", e.JobID)
	}
	return fmt.Sprintf("render job %s failed: %s", e.JobID, e.Message)
}
