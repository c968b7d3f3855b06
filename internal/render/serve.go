package render

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Executor runs one job inside the child process and returns engine output for logging.
type Executor interface {
	Execute(ctx context.Context, job Job) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job Job) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, job Job) (string, error) { return f(ctx, job) }

// Serve 是子进程的主循环：逐行读取 Job，执行后逐行写回 Result，直到 stdin 关闭。
func Serve(ctx context.Context, in io.Reader, out io.Writer, exec Executor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64<<10), maxResultLine)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var job Job
		if err := json.Unmarshal(scanner.Bytes(), &job); err != nil {
			logger.Error("decode job", slog.String("error", err.Error()))
			if err := enc.Encode(Result{Error: "malformed job", Class: ClassUnknown}); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			continue
		}
		if err := enc.Encode(runJob(ctx, job, exec, logger)); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return scanner.Err()
}

// ServeOnce 读取一个 Job 并写回 Result。
func ServeOnce(ctx context.Context, in io.Reader, out io.Writer, exec Executor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var job Job
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	return json.NewEncoder(out).Encode(runJob(ctx, job, exec, logger))
}

func runJob(ctx context.Context, job Job, exec Executor, logger *slog.Logger) Result {
	logger = logger.With(slog.String("job_id", job.ID), slog.String("engine", string(job.Engine)))
	log, err := exec.Execute(ctx, job)
	if err != nil {
		class := Classify(err)
		logger.Error("render failed", slog.String("error", err.Error()), slog.String("class", string(class)))
		return Result{ID: job.ID, Error: err.Error(), Class: class, Log: tailString(log, stderrTailBytes)}
	}
	logger.Info("render complete", slog.String("output", job.OutputPath))
	return Result{ID: job.ID, OK: true}
}

func tailString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
