package main

import (
	"context"

	"github.com/farxc/orcamento-analytics/internal/app"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/logger"
)

func main() {
	const component = "APIMain"

	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Fatal(component, "Failed to load config: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel)

	deps, err := app.Open(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Fatal(component, "Failed to open dependencies: %v", err)
	}
	defer deps.Close()
	appLogger.Info(component, "Storage ready: backend=%s state=%s", cfg.Backend, cfg.StateDir)

	application := newApplication(deps)
	mux := application.mount()

	if err := application.run(mux); err != nil {
		appLogger.Fatal(component, "Server stopped: %v", err)
	}
}
