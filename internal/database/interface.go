package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/arcfield/plugindb/internal/logger"
)

// Service defines the interface for database operations
type Service interface {
	Connect(ctx context.Context) (*gorm.DB, error)
	Close() error
	CheckPrivileges(ctx context.Context) error
}

// Adapter is the transactional execution handle handed to the migration
// and isolation subsystems. No package in this module reaches for a global
// connection; the adapter is always passed in.
type Adapter interface {
	Exec(ctx context.Context, stmt string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, stmt string, args ...interface{}) error
	Transaction(ctx context.Context, fn func(tx Adapter) error) error
}

// Logger interface for logging operations
type Logger = logger.Logger
