package config

import "time"

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment" yaml:"environment"`
	Database    DatabaseConfig  `yaml:"database"`
	Migration   MigrationConfig `yaml:"migration"`
	Isolation   IsolationConfig `yaml:"isolation"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig represents database configuration settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Dbname   string `mapstructure:"dbname"`
	Port     int    `mapstructure:"port"`
	Sslmode  string `mapstructure:"sslmode"`
	Timezone string `mapstructure:"timezone"`
	Pool     struct {
		MaxOpen int `mapstructure:"maxOpen"`
		MaxIdle int `mapstructure:"maxIdle"`
	} `mapstructure:"pool"`
}

// MigrationConfig represents migrator configuration settings
type MigrationConfig struct {
	// LockTimeout bounds the wait for the per-plugin advisory lock.
	LockTimeout time.Duration `mapstructure:"lockTimeout" yaml:"lockTimeout"`
	// AutoInitialize creates the migration store schema on startup.
	AutoInitialize bool `mapstructure:"autoInitialize" yaml:"autoInitialize"`
}

// IsolationConfig represents row-isolation configuration settings
type IsolationConfig struct {
	// ServerID is this deployment's identity. Every connection in the pool
	// carries it; pools are never shared across servers.
	ServerID string `mapstructure:"serverId" yaml:"serverId"`
	// Strict turns the privilege diagnostic into a startup failure.
	Strict bool `mapstructure:"strict" yaml:"strict"`
	// ExcludedTables are additionally exempted from entity filtering.
	ExcludedTables []string `mapstructure:"excludedTables" yaml:"excludedTables"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	Output      string `mapstructure:"output" yaml:"output"`
	Development bool   `mapstructure:"development" yaml:"development"`

	File struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Path    string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"file" yaml:"file"`
}
