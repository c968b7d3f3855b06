// Command renderer 是渲染子进程：stdin 读 Job，stdout 写 Result，日志只写 stderr。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"resumeforge/internal/config"
	"resumeforge/internal/engine"
	"resumeforge/internal/logging"
	"resumeforge/internal/render"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "renderer: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	mode := "serve"
	if len(args) > 0 {
		mode = args[0]
	}

	cfg, logFormat, err := config.LoadRender()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(logFormat, os.Stderr).With(slog.Int("pid", os.Getpid()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	exec, err := engine.New(engine.Config{
		HTMLBackend:   cfg.HTMLBackend,
		BrowserBinary: cfg.BrowserBinary,
		LatexBinary:   cfg.LatexBinary,
		Timeout:       cfg.JobTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	switch mode {
	case "serve":
		logger.Info("renderer serving", slog.String("html_backend", cfg.HTMLBackend))
		return render.Serve(ctx, os.Stdin, os.Stdout, exec, logger)
	case "once":
		return render.ServeOnce(ctx, os.Stdin, os.Stdout, exec, logger)
	default:
		return fmt.Errorf("unknown mode %q (want serve or once)", mode)
	}
}
