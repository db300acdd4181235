package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	appName       = "costbasis"
	defaultDBName = "book.db"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Prices  PricesConfig  `yaml:"prices"`
	Reports ReportsConfig `yaml:"reports"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig controls where the book database lives.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DBName  string `yaml:"db_name"`
}

// PricesConfig tunes the quote fetcher. Durations are in seconds.
type PricesConfig struct {
	CacheTTLSeconds    int     `yaml:"cache_ttl_seconds"`
	FailThreshold      int     `yaml:"fail_threshold"`
	FailWindowSeconds  int     `yaml:"fail_window_seconds"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	HTTPTimeoutSeconds int     `yaml:"http_timeout_seconds"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
}

// ReportsConfig controls report caching.
type ReportsConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// LogConfig controls log level, format and file retention.
type LogConfig struct {
	Level         string `yaml:"level"`  // debug | info | warn | error
	Format        string `yaml:"format"` // text | json
	RetentionDays int    `yaml:"retention_days"`
}

var runtimeDataDir string

// SetRuntimeDataDir overrides the data dir for this process.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

// Load reads .env when present, then the YAML file at path. An empty path
// means <app config dir>/config.yaml; a missing file yields defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		dir, err := appConfigDir()
		if err == nil {
			path = filepath.Join(dir, "config.yaml")
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COSTBASIS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("COSTBASIS_PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("COSTBASIS_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := envInt("COSTBASIS_PRICE_CACHE_TTL"); v > 0 {
		cfg.Prices.CacheTTLSeconds = v
	}
	if v := envFloat("COSTBASIS_PRICE_RPS"); v > 0 {
		cfg.Prices.RequestsPerSecond = v
	}
	if v := os.Getenv("COSTBASIS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COSTBASIS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return 0
	}
	return v
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.DBName == "" {
		cfg.Storage.DBName = defaultDBName
	}
	if cfg.Prices.CacheTTLSeconds <= 0 {
		cfg.Prices.CacheTTLSeconds = 30
	}
	if cfg.Prices.FailThreshold <= 0 {
		cfg.Prices.FailThreshold = 3
	}
	if cfg.Prices.FailWindowSeconds <= 0 {
		cfg.Prices.FailWindowSeconds = 60
	}
	if cfg.Prices.CooldownSeconds <= 0 {
		cfg.Prices.CooldownSeconds = 120
	}
	if cfg.Prices.HTTPTimeoutSeconds <= 0 {
		cfg.Prices.HTTPTimeoutSeconds = 10
	}
	if cfg.Prices.RequestsPerSecond <= 0 {
		cfg.Prices.RequestsPerSecond = 2
	}
	if cfg.Reports.CacheTTLSeconds <= 0 {
		cfg.Reports.CacheTTLSeconds = 300
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.RetentionDays <= 0 {
		cfg.Log.RetentionDays = 7
	}
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// IsMacOS reports whether the process runs on macOS.
func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

// IsWindows reports whether the process runs on Windows.
func IsWindows() bool {
	return runtime.GOOS == "windows"
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "CostBasis"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "CostBasis"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	return filepath.Join(configDir, appName), nil
}

// GetDataDir resolves and creates the data dir: runtime override, then
// COSTBASIS_DATA_DIR, then the configured dir, then the app config dir.
func (c *Config) GetDataDir() (string, error) {
	dir := runtimeDataDir
	if dir == "" {
		dir = os.Getenv("COSTBASIS_DATA_DIR")
	}
	if dir == "" && c != nil {
		dir = c.Storage.DataDir
	}
	if dir == "" {
		def, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = def
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDBPath returns COSTBASIS_DB_PATH or <data dir>/<db name>.
func (c *Config) GetDBPath() (string, error) {
	if envPath := os.Getenv("COSTBASIS_DB_PATH"); envPath != "" {
		return envPath, nil
	}
	dataDir, err := c.GetDataDir()
	if err != nil {
		return "", err
	}
	name := defaultDBName
	if c != nil && strings.TrimSpace(c.Storage.DBName) != "" {
		name = strings.TrimSpace(c.Storage.DBName)
	}
	return filepath.Join(dataDir, name), nil
}
