package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/jobs"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

func main() {
	const component = "WorkerMain"

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal(component, "Failed to load config: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel)
	if cfg.RedisAddr == "" {
		appLogger.Fatal(component, "REDIS_ADDR is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(component, "Failed to open dependencies: %v", err)
	}
	defer deps.Close()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer client.Close()

	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		appLogger.Fatal(component, "Failed to create inbox: dir=%s error=%v", cfg.InboxDir, err)
	}
	handlers := jobs.NewHandlers(deps.Storage, deps.State, client, appLogger, deps.LoadOptions()...)

	scanTask, err := jobs.NewScanInboxTask(cfg.InboxDir)
	if err != nil {
		appLogger.Fatal(component, "Failed to build inbox task: %v", err)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    appLogger,
		Handlers:  handlers.TaskHandlers(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.InboxCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
		Location: cfg.Location(),
	})
	if err != nil {
		appLogger.Fatal(component, "Failed to init worker: %v", err)
	}

	appLogger.Info(component, "Watching inbox: dir=%s cron=%q backend=%s", cfg.InboxDir, cfg.InboxCron, cfg.Backend)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Fatal(component, "Worker stopped: %v", err)
	}
}
