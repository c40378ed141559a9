package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arcfield/plugindb/internal/apperrors"
	"github.com/arcfield/plugindb/internal/config"
)

// DatabaseService implements the Service interface
type DatabaseService struct {
	config   *config.DatabaseConfig
	serverID string
	logger   Logger
	db       *gorm.DB
}

// NewDatabaseService creates a new database service instance. serverID is
// this deployment's identity: when non-empty, every connection the pool
// hands out has already run set_config for it, so the pool as a whole is
// pinned to one server. Pools are never shared across servers.
func NewDatabaseService(config *config.DatabaseConfig, serverID string, logger Logger) *DatabaseService {
	return &DatabaseService{
		config:   config,
		serverID: serverID,
		logger:   logger,
	}
}

// Connect establishes a connection pool to the database
func (s *DatabaseService) Connect(ctx context.Context) (*gorm.DB, error) {
	s.logger.LogInfo(fmt.Sprintf("Attempting to connect to database: %s", s.config.Dbname), nil)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		s.config.Host,
		s.config.User,
		s.config.Password,
		s.config.Dbname,
		s.config.Port,
		s.config.Sslmode,
		s.config.Timezone,
	)

	s.logger.LogInfo(fmt.Sprintf("Using database connection string (without credentials): host=%s dbname=%s port=%d",
		s.config.Host, s.config.Dbname, s.config.Port), nil)

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	var opts []stdlib.OptionOpenDB
	if s.serverID != "" {
		serverID := s.serverID
		// Connection-level context: the resolver installed by the
		// server-isolation layer reads this setting.
		opts = append(opts, stdlib.OptionAfterConnect(func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SELECT set_config('app.current_server_id', $1, false)", serverID)
			return err
		}))
	}
	sqlDB := stdlib.OpenDB(*connConfig, opts...)

	gormConfig := &gorm.Config{
		PrepareStmt: true,
		Logger:      NewGormLogger(s.logger, 200*time.Millisecond),
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool using values from config
	sqlDB.SetMaxOpenConns(s.config.Pool.MaxOpen)
	sqlDB.SetMaxIdleConns(s.config.Pool.MaxIdle)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var currentDB string
	if err := db.WithContext(ctx).Raw("SELECT current_database()").Scan(&currentDB).Error; err != nil {
		s.logger.LogWarn(fmt.Sprintf("Failed to get current database: %v", err), nil)
	} else {
		s.logger.LogInfo(fmt.Sprintf("Connected to database: %s", currentDB), nil)
	}

	s.db = db
	return db, nil
}

// CheckPrivileges verifies the active role cannot bypass row-level
// security. Installed policies are forced, but a superuser or BYPASSRLS
// role steps around them wholesale, so running as one silently disables
// every isolation guarantee.
func (s *DatabaseService) CheckPrivileges(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not connected")
	}

	var result struct {
		Role   string
		Bypass bool
	}
	err := s.db.WithContext(ctx).
		Raw("SELECT rolname AS role, rolsuper OR rolbypassrls AS bypass FROM pg_roles WHERE rolname = current_user").
		Scan(&result).Error
	if err != nil {
		return fmt.Errorf("failed to inspect role privileges: %w", err)
	}

	if result.Bypass {
		return apperrors.NewPrivilegeError(result.Role)
	}
	return nil
}

// Close closes the database connection
func (s *DatabaseService) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %v", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %v", err)
		}
	}
	return nil
}
