package testhelper

import (
	"fmt"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config represents the minimal configuration needed for the test
// environment.
type Config struct {
	Environment string `mapstructure:"environment"`
	Database    struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"dbname"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`
}

// LoadTestConfig loads the test configuration from config_test.yaml.
func LoadTestConfig() (*Config, error) {
	// Best effort: tests run from varying directory depths
	for _, envFile := range []string{".env.test", "../.env.test", "../../.env.test"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	if cfgFile := os.Getenv("TEST_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config_test")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath("../..")
		v.AddConfigPath("../../..")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetupTestDB connects to the test database. Tests needing a live
// database skip when none is reachable; set TEST_DB_REQUIRED to turn
// that into a failure on CI.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg, err := LoadTestConfig()
	if err != nil {
		skipOrFail(t, "failed to load test config: %v", err)
		return nil
	}

	if testDB := os.Getenv("TEST_DB"); testDB != "" {
		cfg.Database.Name = testDB
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		skipOrFail(t, "failed to connect to test database: %v", err)
		return nil
	}

	var currentDB string
	if err := db.Raw("SELECT current_database()").Scan(&currentDB).Error; err != nil {
		skipOrFail(t, "test database unreachable: %v", err)
		return nil
	}

	return db
}

func skipOrFail(t *testing.T, format string, args ...interface{}) {
	t.Helper()
	if os.Getenv("TEST_DB_REQUIRED") != "" {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}
