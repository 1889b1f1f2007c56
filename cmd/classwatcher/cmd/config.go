package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/classwatcher/classwatcher/internal/config"
	"github.com/spf13/cobra"
)

var (
	configInitLocal bool
	configInitForce bool
	configInitYAML  bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage classwatcher configuration.

Without subcommands, shows the current effective configuration.

Examples:
  classwatcher config                          # Show current config
  classwatcher config init                     # Create config file with defaults
  classwatcher config path                     # Show config file location
  classwatcher config get <key>                # Get a config value
  classwatcher config set folder_path ~/Audio  # Select the folder to watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings.

By default, creates ~/.classwatcher/config.json.
Use --local to create ./config.json in the current directory,
and --yaml to write config.yaml instead.

Examples:
  classwatcher config init          # Create ~/.classwatcher/config.json
  classwatcher config init --local  # Create ./config.json
  classwatcher config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	Run:   runConfigPath,
}

// configGetCmd gets a config value.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a configuration value by key.

Keys use dot notation to access nested values.

Examples:
  classwatcher config get folder_path
  classwatcher config get api.base_url
  classwatcher config get watch.interval_ms`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a config value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by key.

Creates the config file if it doesn't exist. Other keys are kept.
Keys use dot notation to access nested values; comma-separated values
become lists.

Examples:
  classwatcher config set folder_path ~/Recordings
  classwatcher config set api.base_url https://api.example.com
  classwatcher config set watch.extensions .mp3,.wav`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.classwatcher/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
	configInitCmd.Flags().BoolVar(&configInitYAML, "yaml", false, "write YAML instead of JSON")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	name := config.DefaultConfigFileName
	if configInitYAML {
		name = "config.yaml"
	}

	configPath := name
	if !configInitLocal {
		configDir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, name)
	}

	if _, err := os.Stat(configPath); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
	}

	if err := config.WriteDocument(configPath, defaultDocument()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", configPath)
	fmt.Fprintln(out, "Set folder_path and api.base_url to start uploading.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Config search paths (in order):")
	for i, loc := range configSearchPaths(cfgFile) {
		exists := "not found"
		if _, err := os.Stat(loc); err == nil {
			exists = "exists"
		}
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, loc, exists)
	}

	if dir, err := config.GetConfigDir(); err == nil {
		fmt.Fprintf(out, "\nConfig directory: %s\n", dir)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	value, ok := configValues(cfg)[args[0]]
	if !ok {
		return fmt.Errorf("unknown config key: %s", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatValue(value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	configPath, err := writableConfigFile()
	if err != nil {
		return err
	}

	var value interface{} = config.ParseValue(raw)
	if key == "folder_path" {
		// Paths stay strings even when they look like numbers or lists.
		folder, err := config.ExpandPath(raw)
		if err != nil {
			return fmt.Errorf("invalid folder_path: %w", err)
		}
		value = folder
	}

	previous, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	data, err := config.ReadDocument(configPath)
	if err != nil {
		return err
	}
	if err := config.SetValue(data, key, value); err != nil {
		return err
	}
	if err := config.WriteDocument(configPath, data); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Reject values the loader would refuse, restoring the old file.
	if _, err := config.Load(configPath); err != nil {
		if previous != nil {
			_ = os.WriteFile(configPath, previous, 0644)
		} else {
			_ = os.Remove(configPath)
		}
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, formatValue(value), configPath)
	return nil
}

// writableConfigFile returns --config when given, the first existing
// file on the search path, or the default file in ~/.classwatcher.
func writableConfigFile() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	for _, p := range configSearchPaths("") {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p, err := config.DefaultConfigFile()
	if err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return p, nil
}

// configValues flattens the effective configuration into dotted keys.
func configValues(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"folder_path":             cfg.FolderPath,
		"api.base_url":            cfg.API.BaseURL,
		"api.timeout_secs":        cfg.API.TimeoutSecs,
		"api.upload_timeout_secs": cfg.API.UploadTimeoutSecs,
		"api.rate_limit":          cfg.API.RateLimit,
		"watch.interval_ms":       cfg.Watch.IntervalMS,
		"watch.stop_wait_ms":      cfg.Watch.StopWaitMS,
		"watch.since":             cfg.Watch.Since,
		"watch.extensions":        cfg.Watch.Extensions,
		"watch.autostart":         cfg.Watch.Autostart,
		"watch.trigger":           cfg.Watch.Trigger,
		"watch.debounce_ms":       cfg.Watch.DebounceMS,
		"watch.ignore_patterns":   cfg.Watch.IgnorePatterns,
		"server.enabled":          cfg.Server.Enabled,
		"server.host":             cfg.Server.Host,
		"server.port":             cfg.Server.Port,
		"server.heartbeat_secs":   cfg.Server.HeartbeatSecs,
		"history.enabled":         cfg.History.Enabled,
		"history.path":            cfg.History.Path,
		"logging.level":           cfg.Logging.Level,
		"logging.format":          cfg.Logging.Format,
	}
}

func formatValue(v interface{}) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}

func printConfig(w io.Writer, cfg *config.Config) {
	values := configValues(cfg)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	source := cfg.File
	if source == "" {
		source = "(defaults)"
	}

	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "%-24s %s\n", "file", source)
	for _, k := range keys {
		fmt.Fprintf(w, "%-24s %s\n", k, formatValue(values[k]))
	}
}

// defaultDocument is the content written by config init.
func defaultDocument() map[string]interface{} {
	return map[string]interface{}{
		"folder_path": "",
		"api": map[string]interface{}{
			"base_url":            "",
			"timeout_secs":        config.DefaultAPITimeoutSecs,
			"upload_timeout_secs": 0,
			"rate_limit":          0,
		},
		"watch": map[string]interface{}{
			"interval_ms":  config.DefaultIntervalMS,
			"stop_wait_ms": config.DefaultStopWaitMS,
			"since":        config.SinceProcess,
			"extensions":   config.DefaultExtensions,
			"autostart":    true,
			"trigger":      true,
		},
		"server": map[string]interface{}{
			"enabled": true,
			"host":    "127.0.0.1",
			"port":    config.DefaultServerPort,
		},
		"history": map[string]interface{}{
			"enabled": true,
		},
		"logging": map[string]interface{}{
			"level":  "info",
			"format": "console",
		},
	}
}
