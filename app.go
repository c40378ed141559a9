package main

import (
	"context"

	"gorm.io/gorm"

	"github.com/arcfield/plugindb/internal/config"
	"github.com/arcfield/plugindb/internal/database"
	"github.com/arcfield/plugindb/internal/isolation"
	"github.com/arcfield/plugindb/internal/logger"
	"github.com/arcfield/plugindb/internal/migration"
	"github.com/arcfield/plugindb/internal/schema"
)

// App wires the migrator and both isolation layers over one shared
// connection pool. The pool is pinned to the configured server identity,
// so one App serves exactly one deployment.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	Database database.Service
	DB       *gorm.DB
	Adapter  database.Adapter
	Migrator *migration.Service
	Servers  *isolation.ServerIsolation
	Entities *isolation.EntityIsolation
}

// NewApp initializes the application services
func NewApp(ctx context.Context, cfg *config.Config, loggerService logger.Logger) (*App, error) {
	dbService := database.NewDatabaseService(&cfg.Database, cfg.Isolation.ServerID, loggerService)
	db, err := dbService.Connect(ctx)
	if err != nil {
		return nil, err
	}

	if err := dbService.CheckPrivileges(ctx); err != nil {
		if cfg.Isolation.Strict {
			return nil, err
		}
		loggerService.LogWarn("Row-level security can be bypassed by the active role", map[string]interface{}{
			"error": err.Error(),
		})
	}

	adapter := database.NewAdapter(db)
	inspector := isolation.NewCatalogInspector(adapter)

	// Installer log entries carry the deployment they act for
	isoLogger := loggerService.WithServer(cfg.Isolation.ServerID)

	return &App{
		Config:   cfg,
		Logger:   loggerService,
		Database: dbService,
		DB:       db,
		Adapter:  adapter,
		Migrator: migration.NewService(db, loggerService),
		Servers:  isolation.NewServerIsolation(adapter, inspector, isoLogger),
		Entities: isolation.NewEntityIsolation(adapter, inspector, isoLogger, cfg.Isolation.ExcludedTables),
	}, nil
}

// Bootstrap brings the database to a serving state: migration store,
// isolation layers and this deployment's registration. Every step is
// idempotent; run it on every startup.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.Config.Migration.AutoInitialize {
		if err := a.Migrator.Initialize(ctx); err != nil {
			return err
		}
	}

	if err := a.Servers.InstallFunctions(ctx); err != nil {
		return err
	}
	if _, err := a.Servers.GetOrCreateServer(ctx, a.Config.Isolation.ServerID); err != nil {
		return err
	}

	if err := a.Entities.Install(ctx); err != nil {
		return err
	}
	return a.Entities.ApplyToAllTables(ctx)
}

// MigratePlugin applies a plugin's declared schema and extends both
// isolation layers over whatever tables the migration created.
func (a *App) MigratePlugin(ctx context.Context, pluginName string, def schema.Definition) (*migration.Result, error) {
	result, err := a.Migrator.Migrate(ctx, pluginName, def, migration.Options{
		LockTimeout: a.Config.Migration.LockTimeout,
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		if err := a.Servers.ApplyToNewTables(ctx); err != nil {
			return nil, err
		}
		if err := a.Entities.ApplyToAllTables(ctx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Close releases the connection pool
func (a *App) Close() error {
	return a.Database.Close()
}
