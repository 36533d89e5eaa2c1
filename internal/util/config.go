// Package util provides common utilities for dnslogd.
package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is loaded once at startup
// and never mutated afterwards.
type Config struct {
	// Input files
	LogFilePath   string `mapstructure:"log_file_path"`
	DeviceMapPath string `mapstructure:"device_map_path"`

	// Output directory for shards, summaries, checkpoint and index
	StorageDir string `mapstructure:"storage_dir"`

	PollIntervalMinutes int `mapstructure:"poll_interval_minutes"`
	RetentionDays       int `mapstructure:"retention_days"`

	LogLevel   string `mapstructure:"log_level"`
	AppLogFile string `mapstructure:"app_log_file"`

	// Circuit breaker
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `mapstructure:"circuit_breaker_cooldown"`

	// Backoff applied while the breaker is open
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`

	SummaryEvery    int           `mapstructure:"summary_every"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxErrorEntries int           `mapstructure:"max_error_entries"`

	IndexEnabled    bool   `mapstructure:"index_enabled"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	ReportOutputDir string `mapstructure:"report_output_dir"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	storageDir := "./dns_logs"

	return &Config{
		LogFilePath:   "/mnt/c/ctrld.log",
		DeviceMapPath: "./device-map.json",
		StorageDir:    storageDir,

		PollIntervalMinutes: 1,
		RetentionDays:       30,

		LogLevel: "info",

		CircuitBreakerThreshold: 5,
		CircuitBreakerCooldown:  5 * time.Minute,

		BackoffBase:       30 * time.Second,
		BackoffMax:        10 * time.Minute,
		BackoffMultiplier: 2.0,

		SummaryEvery:    30,
		CleanupInterval: 24 * time.Hour,
		MaxErrorEntries: 100,

		IndexEnabled:    true,
		ReportOutputDir: filepath.Join(storageDir, "reports"),
	}
}

// envBindings maps config keys to the environment variables the collector
// has always been driven by.
var envBindings = map[string]string{
	"log_file_path":         "CTRLD_LOG_PATH",
	"device_map_path":       "DEVICE_MAP_PATH",
	"poll_interval_minutes": "POLL_INTERVAL_MINUTES",
	"retention_days":        "LOG_RETENTION_DAYS",
	"log_level":             "LOG_LEVEL",
	"storage_dir":           "DNS_LOG_DIR",
	"app_log_file":          "DNSLOGD_LOG_FILE",
	"metrics_textfile":      "DNSLOGD_METRICS_TEXTFILE",
}

// LoadConfig loads configuration from file and environment. An empty
// cfgFile searches ./config.yaml and $HOME/.dnslogd/config.yaml.
func LoadConfig(cfgFile string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".dnslogd"))
		}
	}

	// Set defaults in viper
	viper.SetDefault("log_file_path", cfg.LogFilePath)
	viper.SetDefault("device_map_path", cfg.DeviceMapPath)
	viper.SetDefault("storage_dir", cfg.StorageDir)
	viper.SetDefault("poll_interval_minutes", cfg.PollIntervalMinutes)
	viper.SetDefault("retention_days", cfg.RetentionDays)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("app_log_file", cfg.AppLogFile)
	viper.SetDefault("circuit_breaker_threshold", cfg.CircuitBreakerThreshold)
	viper.SetDefault("circuit_breaker_cooldown", cfg.CircuitBreakerCooldown)
	viper.SetDefault("backoff_base", cfg.BackoffBase)
	viper.SetDefault("backoff_max", cfg.BackoffMax)
	viper.SetDefault("backoff_multiplier", cfg.BackoffMultiplier)
	viper.SetDefault("summary_every", cfg.SummaryEvery)
	viper.SetDefault("cleanup_interval", cfg.CleanupInterval)
	viper.SetDefault("max_error_entries", cfg.MaxErrorEntries)
	viper.SetDefault("index_enabled", cfg.IndexEnabled)
	viper.SetDefault("metrics_textfile", cfg.MetricsTextfile)
	viper.SetDefault("report_output_dir", "")

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = filepath.Join(cfg.StorageDir, "reports")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would make the scheduler or breaker
// misbehave.
func (c *Config) Validate() error {
	switch {
	case c.PollIntervalMinutes <= 0:
		return fmt.Errorf("poll_interval_minutes must be positive, got %d", c.PollIntervalMinutes)
	case c.RetentionDays <= 0:
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	case c.CircuitBreakerThreshold <= 0:
		return fmt.Errorf("circuit_breaker_threshold must be positive, got %d", c.CircuitBreakerThreshold)
	case c.BackoffBase <= 0:
		return fmt.Errorf("backoff_base must be positive, got %s", c.BackoffBase)
	case c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("backoff_max (%s) must not be below backoff_base (%s)", c.BackoffMax, c.BackoffBase)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", c.BackoffMultiplier)
	case c.SummaryEvery <= 0:
		return fmt.Errorf("summary_every must be positive, got %d", c.SummaryEvery)
	case c.StorageDir == "":
		return errors.New("storage_dir must not be empty")
	}
	return nil
}

// PollInterval returns the fixed interval between collections while the
// breaker is closed.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// Retention returns how long shards and summaries are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// AbsPaths rewrites relative file and directory settings as absolute paths
// under base.
func (c *Config) AbsPaths(base string) error {
	for _, p := range []*string{
		&c.LogFilePath, &c.DeviceMapPath, &c.StorageDir,
		&c.ReportOutputDir, &c.AppLogFile, &c.MetricsTextfile,
	} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(base, *p))
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// PIDFile returns the daemon PID file path.
func (c *Config) PIDFile() string {
	return filepath.Join(c.StorageDir, "dnslogd.pid")
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place so readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
