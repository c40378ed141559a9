package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/arcfield/plugindb/internal/config"
	"github.com/arcfield/plugindb/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Initialize logger for bootstrapping
	loggerService, err := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Format: "json", Output: "stdout"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	configService := config.NewConfigService(loggerService)
	cfg, err := configService.Load(".")
	if err != nil {
		loggerService.LogFatal(err, "Failed to load configuration")
	}

	loggerService, err = logger.NewLogger(&logger.Config{
		Level:       logger.Level(cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}

	app, err := NewApp(ctx, cfg, loggerService)
	if err != nil {
		loggerService.LogFatal(err, "Failed to initialize application")
	}
	defer app.Close()

	if err := app.Bootstrap(ctx); err != nil {
		loggerService.LogFatal(err, "Failed to bootstrap database")
	}

	loggerService.LogInfo("Database ready", map[string]interface{}{
		"server": cfg.Isolation.ServerID,
	})
}
