package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		API: APIConfig{BaseURL: "https://api.example.com", TimeoutSecs: 30},
		Watch: WatchConfig{
			IntervalMS: 5000,
			StopWaitMS: 1000,
			Since:      SinceProcess,
			Extensions: DefaultExtensions,
			DebounceMS: 200,
		},
		Server:  ServerConfig{Enabled: true, Host: "127.0.0.1", Port: 8767, HeartbeatSecs: 30},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"empty base url allowed", func(c *Config) { c.API.BaseURL = "" }, ""},
		{"base url without host", func(c *Config) { c.API.BaseURL = "https://" }, "api.base_url must include a host"},
		{"base url bad scheme", func(c *Config) { c.API.BaseURL = "ftp://api.example.com" }, "api.base_url must use one of these schemes"},
		{"timeout too low", func(c *Config) { c.API.TimeoutSecs = 0 }, "api.timeout_secs must be at least 1"},
		{"negative upload timeout", func(c *Config) { c.API.UploadTimeoutSecs = -1 }, "api.upload_timeout_secs cannot be negative"},
		{"negative rate limit", func(c *Config) { c.API.RateLimit = -1 }, "api.rate_limit cannot be negative"},
		{"interval too short", func(c *Config) { c.Watch.IntervalMS = 10 }, "watch.interval_ms must be at least 100"},
		{"interval too long", func(c *Config) { c.Watch.IntervalMS = 3600001 }, "watch.interval_ms cannot exceed"},
		{"negative stop wait", func(c *Config) { c.Watch.StopWaitMS = -5 }, "watch.stop_wait_ms cannot be negative"},
		{"unknown since", func(c *Config) { c.Watch.Since = "boot" }, "watch.since must be"},
		{"no extensions", func(c *Config) { c.Watch.Extensions = nil }, "watch.extensions cannot be empty"},
		{"debounce too long", func(c *Config) { c.Watch.DebounceMS = 20000 }, "watch.debounce_ms cannot exceed"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port must be between 1 and 65535"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host cannot be empty"},
		{"disabled server skips checks", func(c *Config) { c.Server = ServerConfig{} }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level must be one of"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format must be console or json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
