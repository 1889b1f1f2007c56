package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateAPI(&cfg.API); err != nil {
		return err
	}

	if err := validateWatch(&cfg.Watch); err != nil {
		return err
	}

	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	return nil
}

func validateAPI(cfg *APIConfig) error {
	// api.base_url may be empty here; commands that talk to the backend require it.
	if cfg.BaseURL != "" {
		if err := validateExternalURL(cfg.BaseURL, "api.base_url", []string{"http", "https"}); err != nil {
			return err
		}
	}
	if cfg.TimeoutSecs < 1 {
		return fmt.Errorf("api.timeout_secs must be at least 1")
	}
	if cfg.TimeoutSecs > 600 {
		return fmt.Errorf("api.timeout_secs cannot exceed 600")
	}
	if cfg.UploadTimeoutSecs < 0 {
		return fmt.Errorf("api.upload_timeout_secs cannot be negative")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit cannot be negative")
	}
	return nil
}

// validateExternalURL validates that a URL is well-formed and uses an allowed scheme.
func validateExternalURL(rawURL, fieldName string, allowedSchemes []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	schemeValid := false
	for _, scheme := range allowedSchemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			schemeValid = true
			break
		}
	}
	if !schemeValid {
		return fmt.Errorf("%s must use one of these schemes: %s", fieldName, strings.Join(allowedSchemes, ", "))
	}

	return nil
}

func validateWatch(cfg *WatchConfig) error {
	if cfg.IntervalMS < 100 {
		return fmt.Errorf("watch.interval_ms must be at least 100")
	}
	if cfg.IntervalMS > 3600000 {
		return fmt.Errorf("watch.interval_ms cannot exceed 3600000 (1h)")
	}
	if cfg.StopWaitMS < 0 {
		return fmt.Errorf("watch.stop_wait_ms cannot be negative")
	}
	if cfg.StopWaitMS > 60000 {
		return fmt.Errorf("watch.stop_wait_ms cannot exceed 60000")
	}
	if cfg.Since != SinceProcess && cfg.Since != SinceSession {
		return fmt.Errorf("watch.since must be %q or %q", SinceProcess, SinceSession)
	}
	if len(cfg.Extensions) == 0 {
		return fmt.Errorf("watch.extensions cannot be empty")
	}
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms cannot be negative")
	}
	if cfg.DebounceMS > 10000 {
		return fmt.Errorf("watch.debounce_ms cannot exceed 10000ms")
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Host == "" {
		return fmt.Errorf("server.host cannot be empty")
	}
	if cfg.HeartbeatSecs < 1 {
		return fmt.Errorf("server.heartbeat_secs must be at least 1")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}
	return nil
}
