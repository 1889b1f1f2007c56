// Package config handles configuration management for classwatcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	FolderPath string        `mapstructure:"folder_path"`
	API        APIConfig     `mapstructure:"api"`
	Watch      WatchConfig   `mapstructure:"watch"`
	Server     ServerConfig  `mapstructure:"server"`
	History    HistoryConfig `mapstructure:"history"`
	Logging    LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read. Empty when none was found.
	File string `mapstructure:"-"`
}

// APIConfig holds the backend that issues presigned URLs.
type APIConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	TimeoutSecs       int    `mapstructure:"timeout_secs"`
	UploadTimeoutSecs int    `mapstructure:"upload_timeout_secs"` // 0 means no limit
	RateLimit         int    `mapstructure:"rate_limit"`          // presign requests per second, 0 disables
}

// WatchConfig holds the folder polling configuration.
type WatchConfig struct {
	IntervalMS     int      `mapstructure:"interval_ms"`
	StopWaitMS     int      `mapstructure:"stop_wait_ms"`
	Since          string   `mapstructure:"since"` // process | session
	Extensions     []string `mapstructure:"extensions"`
	Autostart      bool     `mapstructure:"autostart"`
	Trigger        bool     `mapstructure:"trigger"` // fsnotify shortens the wait between scans
	DebounceMS     int      `mapstructure:"debounce_ms"`
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
}

// ServerConfig holds the local control API configuration.
type ServerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	HeartbeatSecs int    `mapstructure:"heartbeat_secs"`
}

// HistoryConfig holds the upload history database configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Interval returns the wait between scans.
func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMS) * time.Millisecond
}

// StopWait returns how long Stop waits for the worker to finish.
func (w WatchConfig) StopWait() time.Duration {
	return time.Duration(w.StopWaitMS) * time.Millisecond
}

// Address returns host:port for the control API.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.classwatcher")
		v.AddConfigPath("/etc/classwatcher")
	}

	v.SetEnvPrefix("CLASSWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The backend origin has always been supplied as API_BASE_URL.
	if err := v.BindEnv("api.base_url", "CLASSWATCHER_API_BASE_URL", "API_BASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding environment: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("folder_path", "")

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout_secs", DefaultAPITimeoutSecs)
	v.SetDefault("api.upload_timeout_secs", 0)
	v.SetDefault("api.rate_limit", 0)

	v.SetDefault("watch.interval_ms", DefaultIntervalMS)
	v.SetDefault("watch.stop_wait_ms", DefaultStopWaitMS)
	v.SetDefault("watch.since", SinceProcess)
	v.SetDefault("watch.extensions", DefaultExtensions)
	v.SetDefault("watch.autostart", true)
	v.SetDefault("watch.trigger", true)
	v.SetDefault("watch.debounce_ms", 200)
	v.SetDefault("watch.ignore_patterns", DefaultTriggerIgnorePatterns)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.heartbeat_secs", 30)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// postProcess applies post-processing to configuration.
func postProcess(cfg *Config) error {
	if cfg.FolderPath != "" {
		folder, err := ExpandPath(cfg.FolderPath)
		if err != nil {
			return fmt.Errorf("failed to resolve folder_path: %w", err)
		}
		cfg.FolderPath = folder
	}

	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	cfg.Watch.Since = strings.ToLower(strings.TrimSpace(cfg.Watch.Since))
	cfg.Watch.Extensions = NormalizeExtensions(cfg.Watch.Extensions)

	if cfg.History.Path == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve history path: %w", err)
		}
		cfg.History.Path = filepath.Join(dir, DefaultHistoryFileName)
	} else {
		p, err := ExpandPath(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve history.path: %w", err)
		}
		cfg.History.Path = p
	}

	return nil
}

// NormalizeExtensions lowercases extensions and ensures a leading dot.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// ExpandPath resolves a leading ~ and makes the path absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// GetConfigDir returns the user config directory for classwatcher.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".classwatcher"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultConfigFile returns ~/.classwatcher/config.json, creating the directory.
func DefaultConfigFile() (string, error) {
	dir, err := EnsureConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
