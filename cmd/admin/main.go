// Command admin 是运维工具：迁移简历归属、查看存活简历数。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/hibiken/asynq"

	"resumeforge/internal/config"
	"resumeforge/internal/database"
	"resumeforge/internal/logging"
	"resumeforge/internal/service"
	"resumeforge/internal/storage"
	"resumeforge/internal/store"
	"resumeforge/internal/tasks"
)

const usage = `usage:
  admin migrate-owner --from <owner> --to <owner>
  admin count --owner <owner>`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "migrate-owner":
		err = migrateOwner(os.Args[2:])
	case "count":
		err = count(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q\n%s", os.Args[1], usage)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func migrateOwner(args []string) error {
	fs := flag.NewFlagSet("migrate-owner", flag.ExitOnError)
	from := fs.String("from", "", "原 owner id（必填）")
	to := fs.String("to", "", "目标 owner id（必填）")
	_ = fs.Parse(args)

	src, dst := strings.TrimSpace(*from), strings.TrimSpace(*to)
	if src == "" || dst == "" {
		return errors.New("missing required flags: --from and --to")
	}
	if src == dst {
		return errors.New("--from and --to must differ")
	}

	cfg := config.MustLoad()
	logger := logging.New(cfg.API.LogFormat, os.Stderr)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	svc := service.New(service.Deps{
		Store:   store.New(db),
		Objects: storageClient,
		Purge:   tasks.NewPurgeQueue(asynqClient),
	}, service.Config{
		MaxResumes:      cfg.Limits.MaxResumes,
		ListMax:         cfg.Limits.ListMax,
		CopyConcurrency: cfg.Limits.CopyConcurrency,
	}, logger)

	res, err := svc.MigrateOwner(context.Background(), src, dst)
	if err != nil {
		return fmt.Errorf("migrate owner: %w", err)
	}
	logger.Info("migration finished", slog.String("from", src), slog.String("to", dst))
	return json.NewEncoder(os.Stdout).Encode(res)
}

func count(args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	owner := fs.String("owner", "", "owner id（必填）")
	_ = fs.Parse(args)

	ownerID := strings.TrimSpace(*owner)
	if ownerID == "" {
		return errors.New("missing required flag: --owner")
	}

	cfg := config.MustLoad()
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	n, err := store.New(db).CountLive(context.Background(), ownerID)
	if err != nil {
		return fmt.Errorf("count resumes: %w", err)
	}
	fmt.Println(n)
	return nil
}
