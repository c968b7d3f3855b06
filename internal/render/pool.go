package render

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"resumeforge/internal/metrics"
)

const (
	stderrTailBytes = 8 << 10
	maxResultLine   = 1 << 20
)

// Scheduler runs render jobs. Run blocks until the job finishes or times out.
type Scheduler interface {
	Run(ctx context.Context, job Job) error
	Close() error
}

// CommandFunc 构造一个渲染子进程命令（尚未启动），mode 为 serve 或 once。
type CommandFunc func(mode string) *exec.Cmd

// BinaryCommand 返回以指定可执行文件作为子进程的 CommandFunc。
func BinaryCommand(binary string, env []string) CommandFunc {
	return func(mode string) *exec.Cmd {
		cmd := exec.Command(binary, mode)
		if len(env) > 0 {
			cmd.Env = env
		}
		return cmd
	}
}

// PoolConfig 描述进程池。
type PoolConfig struct {
	Workers int
	Timeout time.Duration
	Command CommandFunc
	Logger  *slog.Logger
}

type request struct {
	job  Job
	done chan error
}

// Pool 维护固定数量的常驻子进程，每个 worker 同一时刻只执行一个 job。
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	jobs chan request
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// StartPool 预先启动全部子进程；任意一个启动失败则整体失败并清理已启动的进程。
func StartPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Workers <= 0 {
		return nil, errors.New("render pool needs at least one worker")
	}
	if cfg.Command == nil {
		return nil, errors.New("render pool needs a command")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pool{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "render_pool")),
		jobs:   make(chan request),
	}

	workers := make([]*poolWorker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w := &poolWorker{id: i, pool: p}
		if err := w.spawn(); err != nil {
			for _, started := range workers {
				started.kill()
			}
			return nil, fmt.Errorf("start render worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	for _, w := range workers {
		p.wg.Add(1)
		go w.loop()
	}
	p.logger.Info("render pool started", slog.Int("workers", cfg.Workers), slog.Duration("timeout", cfg.Timeout))
	return p, nil
}

// Run 把 job 交给空闲 worker 并等待结果。
// 一旦 job 被接收，调用方的取消不会中止它，超时由 worker 保证。
func (p *Pool) Run(ctx context.Context, job Job) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	req := request{job: job, done: make(chan error, 1)}
	select {
	case p.jobs <- req:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return fmt.Errorf("waiting for render worker: %w", ctx.Err())
	}
	return <-req.done
}

// Close 停止接收新任务，等待进行中的任务结束并关闭子进程。
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("render pool stopped")
	return nil
}

type childProc struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	results chan Result
	stderr  *tailBuffer
}

type poolWorker struct {
	id    int
	pool  *Pool
	child *childProc
}

func (w *poolWorker) spawn() error {
	cmd := w.pool.cfg.Command("serve")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start renderer: %w", err)
	}

	results := make(chan Result, 1)
	go readResults(stdout, results, w.pool.logger)

	w.child = &childProc{cmd: cmd, stdin: stdin, results: results, stderr: stderr}
	return nil
}

func readResults(r io.Reader, out chan<- Result, logger *slog.Logger) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxResultLine)
	for scanner.Scan() {
		var res Result
		if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
			logger.Warn("ignoring malformed renderer output", slog.String("error", err.Error()))
			continue
		}
		out <- res
	}
}

func (w *poolWorker) kill() {
	if w.child == nil {
		return
	}
	_ = w.child.stdin.Close()
	if w.child.cmd.Process != nil {
		_ = w.child.cmd.Process.Kill()
	}
	_ = w.child.cmd.Wait()
	w.child = nil
}

// shutdown 关闭 stdin 让子进程自行退出，超过宽限期再强杀。
func (w *poolWorker) shutdown() {
	if w.child == nil {
		return
	}
	child := w.child
	_ = child.stdin.Close()
	exited := make(chan struct{})
	go func() {
		_ = child.cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		if child.cmd.Process != nil {
			_ = child.cmd.Process.Kill()
		}
		<-exited
	}
	w.child = nil
}

func (w *poolWorker) loop() {
	defer w.pool.wg.Done()
	defer w.shutdown()
	for req := range w.pool.jobs {
		req.done <- w.execute(req.job)
	}
}

func (w *poolWorker) execute(job Job) error {
	logger := w.pool.logger.With(slog.Int("worker", w.id), slog.String("job_id", job.ID), slog.String("engine", string(job.Engine)))
	finish := metrics.RenderStarted(string(job.Engine))
	start := time.Now()

	err := w.roundTrip(job, logger)
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err))
	}
	finish(outcome, time.Since(start).Seconds())
	return err
}

func (w *poolWorker) roundTrip(job Job, logger *slog.Logger) error {
	if w.child == nil {
		if err := w.spawn(); err != nil {
			return &JobError{JobID: job.ID, Engine: job.Engine, Message: err.Error(), Class: Classify(err)}
		}
		metrics.RenderChildRestarted()
	}
	child := w.child
	child.stderr.Reset()

	line, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode render job: %w", err)
	}
	if _, err := child.stdin.Write(append(line, '\n')); err != nil {
		w.kill()
		tail := child.stderr.String()
		logger.Error("renderer stdin closed", slog.String("error", err.Error()), slog.String("stderr", tail))
		return &JobError{JobID: job.ID, Engine: job.Engine, Message: "renderer is not accepting jobs", Class: ClassUnknown, Stderr: tail}
	}

	timer := time.NewTimer(w.pool.cfg.Timeout)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-child.results:
			if !ok {
				exitCode := -1
				w.kill()
				tail := child.stderr.String()
				if state := child.cmd.ProcessState; state != nil {
					exitCode = state.ExitCode()
				}
				logger.Error("renderer exited mid-job", slog.Int("exit_code", exitCode), slog.String("stderr", tail))
				return &JobError{JobID: job.ID, Engine: job.Engine, Message: "renderer exited unexpectedly", Class: ClassUnknown, ExitCode: exitCode, Stderr: tail}
			}
			if res.ID != job.ID {
				logger.Warn("discarding stale renderer result", slog.String("result_id", res.ID))
				continue
			}
			if res.OK {
				return nil
			}
			tail := child.stderr.String()
			logger.Warn("render job failed", slog.String("error", res.Error), slog.String("class", string(res.Class)), slog.String("log", res.Log), slog.String("stderr", tail))
			return &JobError{JobID: job.ID, Engine: job.Engine, Message: res.Error, Class: res.Class, Stderr: tail}
		case <-timer.C:
			w.kill()
			tail := child.stderr.String()
			logger.Error("render job timed out, renderer restarted", slog.Duration("timeout", w.pool.cfg.Timeout), slog.String("stderr", tail))
			return &JobError{JobID: job.ID, Engine: job.Engine, TimedOut: true, Class: ClassUnknown, Stderr: tail}
		}
	}
}
