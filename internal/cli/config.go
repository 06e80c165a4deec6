package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete planner configuration.
// Maps config file fields through YAML tags.
type Config struct {
	Server struct {
		HTTPAddr        string        `yaml:"http_addr"`
		GRPCAddr        string        `yaml:"grpc_addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"` // memory | file | mysql
		Path   string `yaml:"path"`   // file driver
		DSN    string `yaml:"dsn"`    // mysql driver
		// Fixed active unit count; unset asks the store's unit roster.
		ActiveUnits *int `yaml:"active_units"`
		Migrate     bool `yaml:"migrate"`
	} `yaml:"store"`

	Events struct {
		RedisURL string `yaml:"redis_url"` // empty disables publishing
		Stream   string `yaml:"stream"`
		MaxLen   int64  `yaml:"max_len"`
	} `yaml:"events"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// Environment overrides, applied after the YAML file.
const (
	envMySQLDSN = "PLANNER_MYSQL_DSN"
	envRedisURL = "PLANNER_REDIS_URL"
	envHTTPAddr = "PLANNER_HTTP_ADDR"
	envLogLevel = "PLANNER_LOG_LEVEL"
)

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.HTTPAddr = ":8080"
	cfg.Server.GRPCAddr = ":50051"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Store.Driver = "memory"
	cfg.Store.Path = "data/missions.json"
	cfg.Metrics.Port = 9090
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return &cfg
}

// loadConfig reads the YAML file over the defaults. Validation happens in
// resolveConfig, after environment overrides.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Store.Driver {
	case "memory":
	case "file":
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the file driver")
		}
	case "mysql":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn (or %s) is required for the mysql driver", envMySQLDSN)
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.ActiveUnits != nil && *cfg.Store.ActiveUnits < 0 {
		return errors.New("store.active_units must not be negative")
	}
	return nil
}

// loadEnvFile loads a .env file into the process environment when present.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config values from the environment.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(envMySQLDSN); ok && v != "" {
		cfg.Store.DSN = v
	}
	if v, ok := lookup(envRedisURL); ok && v != "" {
		cfg.Events.RedisURL = v
	}
	if v, ok := lookup(envHTTPAddr); ok && v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v, ok := lookup(envLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
}

// resolveConfig loads the .env file, the YAML config and env overrides.
func resolveConfig(path string) (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
