/*
Package config loads server configuration.

SOURCES (highest priority first):
  1. Environment variables, prefix FEES_ (FEES_SERVER_PORT, FEES_DB_PATH, ...)
  2. .env file in the working directory, if present
  3. Config file (config.yaml in ./config or ., or an explicit path)
  4. Defaults below

KEYS:
  server.port                   HTTP port (8080)
  db.path                       SQLite path (fees.db), ":memory:" allowed
  log.level                     debug|info|warn|error (info)
  log.format                    json|console (json)
  cors.allowed_origins          list of origins
  clearance.probation_threshold clearance % that renders purple (80)
  integrity.enabled             run the periodic integrity scan (true)
  integrity.interval            scan interval (1h)
  account_groups                group name -> payment methods
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/fees-ledger/ledger"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Clearance ClearanceConfig `mapstructure:"clearance"`
	Integrity IntegrityConfig `mapstructure:"integrity"`

	AccountGroups map[string][]string `mapstructure:"account_groups"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ClearanceConfig struct {
	// Kept as a string so "82.5" survives without float rounding.
	ProbationThreshold string `mapstructure:"probation_threshold"`
}

type IntegrityConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultAccountGroups is used when no account_groups are configured.
var DefaultAccountGroups = map[string][]string{
	"Cash":         {"Cash"},
	"Bank":         {"Bank", "Bank Transfer", "Cheque"},
	"Mobile Money": {"Mobile Money", "MTN", "Airtel"},
}

// Load reads configuration from path (optional), .env and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("db.path", "fees.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("clearance.probation_threshold", "80")
	v.SetDefault("integrity.enabled", true)
	v.SetDefault("integrity.interval", "1h")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FEES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.AccountGroups) == 0 {
		cfg.AccountGroups = DefaultAccountGroups
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("config: db.path is required")
	}
	threshold, err := c.ProbationThreshold()
	if err != nil {
		return err
	}
	if !threshold.IsPositive() || threshold.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("config: clearance.probation_threshold must be in (0, 100], got %s", threshold)
	}
	if c.Integrity.Enabled && c.Integrity.Interval <= 0 {
		return fmt.Errorf("config: integrity.interval must be positive")
	}
	return nil
}

// ProbationThreshold parses clearance.probation_threshold.
func (c *Config) ProbationThreshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Clearance.ProbationThreshold))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: clearance.probation_threshold %q: %w", c.Clearance.ProbationThreshold, err)
	}
	return d, nil
}

// ManagerConfig converts the loaded values into ledger settings.
func (c *Config) ManagerConfig() ledger.ManagerConfig {
	threshold, err := c.ProbationThreshold()
	if err != nil {
		threshold = ledger.DefaultProbationThreshold
	}
	return ledger.ManagerConfig{
		ProbationThreshold: threshold,
		AccountGroups:      ledger.AccountGroups(c.AccountGroups),
	}
}
