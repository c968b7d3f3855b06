package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"resumeforge/internal/metrics"
)

// OneShot 为每个 job 启动一个新的子进程，进程池不可用时使用。
type OneShot struct {
	command CommandFunc
	timeout time.Duration
	logger  *slog.Logger
}

// NewOneShot 构造 OneShot。
func NewOneShot(command CommandFunc, timeout time.Duration, logger *slog.Logger) *OneShot {
	if logger == nil {
		logger = slog.Default()
	}
	return &OneShot{command: command, timeout: timeout, logger: logger.With(slog.String("component", "render_oneshot"))}
}

// Run 启动 `renderer once` 并写入 job；调用方断开不会中止渲染。
func (o *OneShot) Run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	finish := metrics.RenderStarted(string(job.Engine))
	start := time.Now()
	err := o.run(ctx, job)
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err))
	}
	finish(outcome, time.Since(start).Seconds())
	return err
}

func (o *OneShot) run(ctx context.Context, job Job) error {
	logger := o.logger.With(slog.String("job_id", job.ID), slog.String("engine", string(job.Engine)))

	line, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode render job: %w", err)
	}

	cmd := o.command("once")
	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdin = bytes.NewReader(append(line, '\n'))
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &JobError{JobID: job.ID, Engine: job.Engine, Message: err.Error(), Class: Classify(err)}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		logger.Error("one-shot render timed out", slog.Duration("timeout", o.timeout), slog.String("stderr", stderr.String()))
		return &JobError{JobID: job.ID, Engine: job.Engine, TimedOut: true, Class: ClassUnknown, Stderr: stderr.String()}
	case err := <-waitErr:
		res, parseErr := lastResult(stdout.Bytes())
		if parseErr == nil && res.ID == job.ID {
			if res.OK {
				return nil
			}
			logger.Warn("render job failed", slog.String("error", res.Error), slog.String("log", res.Log), slog.String("stderr", stderr.String()))
			return &JobError{JobID: job.ID, Engine: job.Engine, Message: res.Error, Class: res.Class, Stderr: stderr.String()}
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Error("renderer produced no result", slog.Int("exit_code", exitCode), slog.String("stderr", stderr.String()))
		return &JobError{JobID: job.ID, Engine: job.Engine, Message: "renderer produced no result", Class: ClassUnknown, ExitCode: exitCode, Stderr: stderr.String()}
	}
}

func lastResult(out []byte) (Result, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		var res Result
		if err := json.Unmarshal([]byte(lines[i]), &res); err == nil {
			return res, nil
		}
	}
	return Result{}, errors.New("no result line")
}

// Close 无需释放资源。
func (o *OneShot) Close() error { return nil }

// NewScheduler 优先启动进程池，失败时回落为 OneShot。
func NewScheduler(cfg PoolConfig) Scheduler {
	pool, err := StartPool(cfg)
	if err == nil {
		return pool
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("render pool unavailable, falling back to one process per job", slog.String("error", err.Error()))
	return NewOneShot(cfg.Command, cfg.Timeout, logger)
}
