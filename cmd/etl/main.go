package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

const usage = `usage: etl [-loglevel level] <command> [flags] [files...]

commands:
  dims           load dimension spreadsheets (files or -dir)
  facts          load fact spreadsheets, ZIP bundles or a downloaded URL
  analyze        report periods and row estimates of fact files
  delete-period  delete one YYYY-MM period from a fact table
  audit          list fact codes missing from their dimension
`

func main() {
	const component = "Main"

	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (default LOG_LEVEL)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal(component, "Failed to load config: %v", err)
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	appLogger := logger.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := NewMonitor()
	monitor.Start(400*time.Millisecond, appLogger)

	start := time.Now()
	appLogger.Info(component, "Command starting: command=%s backend=%s", flag.Arg(0), cfg.Backend)

	deps, err := app.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(component, "Failed to open dependencies: %v", err)
	}

	c := &cli{deps: deps, out: os.Stdout, logger: appLogger}
	runErr := c.run(ctx, flag.Args())
	deps.Close()

	peaks := monitor.Stop()
	if runErr != nil {
		appLogger.Fatal(component, "Command failed: command=%s error=%v", flag.Arg(0), runErr)
	}
	appLogger.Info(component, "Command completed: command=%s duration=%.2fs peakMemoryMB=%d peakGoroutines=%d",
		flag.Arg(0), time.Since(start).Seconds(), peaks.PeakMemoryMB, peaks.PeakGoroutines)
}
