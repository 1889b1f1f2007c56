package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/adapters/history"
	"github.com/classwatcher/classwatcher/internal/adapters/httpclient"
	"github.com/classwatcher/classwatcher/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	doctorJSON        bool
	doctorStrict      bool
	doctorHTTPTimeout int
)

type doctorStatus string

const (
	doctorStatusOK   doctorStatus = "ok"
	doctorStatusWarn doctorStatus = "warn"
	doctorStatusFail doctorStatus = "fail"
)

type doctorCheck struct {
	ID          string                 `json:"id"`
	Status      doctorStatus           `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
}

type doctorSummary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Fail  int `json:"fail"`
}

type doctorReport struct {
	Version      string        `json:"version"`
	GeneratedAt  string        `json:"generated_at"`
	Overall      doctorStatus  `json:"overall_status"`
	Summary      doctorSummary `json:"summary"`
	Checks       []doctorCheck `json:"checks"`
	SearchConfig []string      `json:"config_search_paths,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run local diagnostics with remediation hints",
	Long: `Run diagnostics against the local classwatcher setup and print actionable hints.

Checks the config file, the selected folder, the presign API, the upload
history database and the control API.

By default the output is human-readable text.
Use --json for machine-readable output.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output machine-readable JSON")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "return non-zero on warnings")
	doctorCmd.Flags().IntVar(&doctorHTTPTimeout, "http-timeout", 2, "network check timeout in seconds")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	report := collectDoctorReport(logger, cfgFile, time.Duration(doctorHTTPTimeout)*time.Second)

	out := cmd.OutOrStdout()
	if doctorJSON {
		if err := printDoctorJSON(out, report); err != nil {
			return err
		}
	} else {
		printDoctorText(out, report)
	}

	if report.Summary.Fail > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", report.Summary.Fail)
	}
	if doctorStrict && report.Summary.Warn > 0 {
		return fmt.Errorf("doctor strict mode failed with %d warning(s)", report.Summary.Warn)
	}
	return nil
}

func collectDoctorReport(logger *slog.Logger, cfgPath string, timeout time.Duration) doctorReport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	checks := make([]doctorCheck, 0, 8)
	run := func(check doctorCheck) {
		logger.Debug("check finished", "id", check.ID, "status", check.Status)
		checks = append(checks, check)
	}

	cfg := defaultDoctorConfig()
	loadedCfg, cfgCheck := checkConfigLoad(cfgPath)
	run(cfgCheck)
	if loadedCfg != nil {
		cfg = loadedCfg
	}

	run(checkConfigDirectory())
	run(checkFolder(cfg.FolderPath, cfg.Watch.Extensions))
	run(checkAPIBaseURL(cfg.API.BaseURL, timeout))
	run(checkHistory(cfg.History))
	if cfg.Server.Enabled {
		run(checkHealthEndpoint(cfg.Server.Host, cfg.Server.Port, timeout))
	}

	summary := summarizeDoctorChecks(checks)
	logger.Info("diagnostics complete", "ok", summary.OK, "warn", summary.Warn, "fail", summary.Fail)

	return doctorReport{
		Version:      version,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Overall:      overallStatus(summary),
		Summary:      summary,
		Checks:       checks,
		SearchConfig: configSearchPaths(cfgPath),
	}
}

func checkConfigLoad(path string) (*config.Config, doctorCheck) {
	cfg, err := config.Load(path)
	searchPaths := configSearchPaths(path)
	if err != nil {
		return nil, doctorCheck{
			ID:      "config.load",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Failed to load config: %v", err),
			Details: map[string]interface{}{
				"config_path":  strings.TrimSpace(path),
				"search_paths": searchPaths,
			},
			Remediation: "Fix the config file, or run `classwatcher config init --force` to regenerate defaults.",
		}
	}

	msg := "Configuration loaded using built-in defaults and environment overrides"
	if cfg.File != "" {
		msg = "Configuration loaded successfully"
	}

	return cfg, doctorCheck{
		ID:      "config.load",
		Status:  doctorStatusOK,
		Message: msg,
		Details: map[string]interface{}{
			"loaded_from":  cfg.File,
			"search_paths": searchPaths,
		},
	}
}

func checkConfigDirectory() doctorCheck {
	dir, err := config.GetConfigDir()
	if err != nil {
		return doctorCheck{
			ID:          "config.directory",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Failed to resolve config directory: %v", err),
			Remediation: "Verify your HOME environment and filesystem permissions.",
		}
	}

	info, statErr := os.Stat(dir)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return doctorCheck{
				ID:          "config.directory",
				Status:      doctorStatusWarn,
				Message:     "Config directory does not exist yet",
				Details:     map[string]interface{}{"path": dir},
				Remediation: "Run `classwatcher config init` to create initial local configuration.",
			}
		}
		return doctorCheck{
			ID:          "config.directory",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Failed to access config directory: %v", statErr),
			Details:     map[string]interface{}{"path": dir},
			Remediation: "Fix directory permissions or create the directory manually.",
		}
	}
	if !info.IsDir() {
		return doctorCheck{
			ID:          "config.directory",
			Status:      doctorStatusFail,
			Message:     "Config path exists but is not a directory",
			Details:     map[string]interface{}{"path": dir},
			Remediation: "Remove the file and recreate the directory with `mkdir -p ~/.classwatcher`.",
		}
	}

	return doctorCheck{
		ID:      "config.directory",
		Status:  doctorStatusOK,
		Message: "Config directory is available",
		Details: map[string]interface{}{"path": dir},
	}
}

// checkFolder verifies the selected folder can be listed and counts the
// audio files already in it. Those files are never uploaded.
func checkFolder(folder string, exts []string) doctorCheck {
	if strings.TrimSpace(folder) == "" {
		return doctorCheck{
			ID:          "watch.folder",
			Status:      doctorStatusWarn,
			Message:     "No folder selected",
			Remediation: "Run `classwatcher config set folder_path <dir>` or start with --folder.",
		}
	}

	info, err := os.Stat(folder)
	if err != nil {
		return doctorCheck{
			ID:          "watch.folder",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Selected folder is not accessible: %v", err),
			Details:     map[string]interface{}{"path": folder},
			Remediation: "Select an existing folder with `classwatcher config set folder_path <dir>`.",
		}
	}
	if !info.IsDir() {
		return doctorCheck{
			ID:          "watch.folder",
			Status:      doctorStatusFail,
			Message:     "Selected folder is not a directory",
			Details:     map[string]interface{}{"path": folder},
			Remediation: "Set `folder_path` to a directory path.",
		}
	}

	if len(exts) == 0 {
		exts = config.DefaultExtensions
	}
	wanted := make(map[string]bool, len(exts))
	for _, e := range exts {
		wanted[strings.ToLower(e)] = true
	}

	existing := 0
	walkErr := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && wanted[strings.ToLower(filepath.Ext(path))] {
			existing++
		}
		return nil
	})
	if walkErr != nil {
		return doctorCheck{
			ID:          "watch.folder",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Selected folder cannot be scanned: %v", walkErr),
			Details:     map[string]interface{}{"path": folder},
			Remediation: "Check read permissions on the folder and its subfolders.",
		}
	}

	return doctorCheck{
		ID:      "watch.folder",
		Status:  doctorStatusOK,
		Message: "Selected folder can be scanned",
		Details: map[string]interface{}{
			"path":           folder,
			"existing_audio": existing,
		},
	}
}

// checkAPIBaseURL only verifies the backend answers; any HTTP response counts.
func checkAPIBaseURL(baseURL string, timeout time.Duration) doctorCheck {
	if strings.TrimSpace(baseURL) == "" {
		return doctorCheck{
			ID:          "api.base_url",
			Status:      doctorStatusFail,
			Message:     "API base URL is not set",
			Remediation: "Export API_BASE_URL or run `classwatcher config set api.base_url https://...`.",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return doctorCheck{
			ID:          "api.base_url",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("API base URL is invalid: %v", err),
			Details:     map[string]interface{}{"url": baseURL},
			Remediation: "Set api.base_url to an http(s) origin such as https://api.example.com.",
		}
	}

	resp, err := httpclient.New(timeout).Do(req)
	if err != nil {
		return doctorCheck{
			ID:          "api.base_url",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("API is not reachable: %v", err),
			Details:     map[string]interface{}{"url": baseURL},
			Remediation: "Check your network connection and the API_BASE_URL value.",
		}
	}
	_ = resp.Body.Close()

	return doctorCheck{
		ID:      "api.base_url",
		Status:  doctorStatusOK,
		Message: "API is reachable",
		Details: map[string]interface{}{
			"url":         baseURL,
			"status_code": resp.StatusCode,
		},
	}
}

func checkHistory(cfg config.HistoryConfig) doctorCheck {
	if !cfg.Enabled {
		return doctorCheck{
			ID:      "history.database",
			Status:  doctorStatusOK,
			Message: "Upload history is disabled",
		}
	}

	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		return doctorCheck{
			ID:          "history.database",
			Status:      doctorStatusWarn,
			Message:     "Upload history database does not exist yet",
			Details:     map[string]interface{}{"path": cfg.Path},
			Remediation: "Run `classwatcher start` once to create it.",
		}
	}

	store, err := history.Open(cfg.Path)
	if err != nil {
		return doctorCheck{
			ID:          "history.database",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Failed to open upload history: %v", err),
			Details:     map[string]interface{}{"path": cfg.Path},
			Remediation: "Move the file aside; a new database is created on the next start.",
		}
	}
	defer store.Close()

	count, err := store.Count(context.Background())
	if err != nil {
		return doctorCheck{
			ID:          "history.database",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("Failed to read upload history: %v", err),
			Details:     map[string]interface{}{"path": cfg.Path},
			Remediation: "Move the file aside; a new database is created on the next start.",
		}
	}

	return doctorCheck{
		ID:      "history.database",
		Status:  doctorStatusOK,
		Message: "Upload history is readable",
		Details: map[string]interface{}{
			"path":    cfg.Path,
			"records": count,
		},
	}
}

func checkHealthEndpoint(host string, port int, timeout time.Duration) doctorCheck {
	if strings.TrimSpace(host) == "" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = config.DefaultServerPort
	}

	url := fmt.Sprintf("http://%s:%d/health", host, port)
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		return doctorCheck{
			ID:          "server.health_endpoint",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("Control API is not reachable: %v", err),
			Details:     map[string]interface{}{"url": url},
			Remediation: "Start classwatcher with `classwatcher start` and verify host/port configuration.",
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return doctorCheck{
			ID:      "server.health_endpoint",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("Health endpoint returned non-200 status: %d", resp.StatusCode),
			Details: map[string]interface{}{
				"url":         url,
				"status_code": resp.StatusCode,
				"body":        strings.TrimSpace(string(body)),
			},
			Remediation: "Another program may be using the port; check `classwatcher start -v` logs.",
		}
	}

	return doctorCheck{
		ID:      "server.health_endpoint",
		Status:  doctorStatusOK,
		Message: "Control API is reachable",
		Details: map[string]interface{}{
			"url":         url,
			"status_code": resp.StatusCode,
		},
	}
}

func summarizeDoctorChecks(checks []doctorCheck) doctorSummary {
	summary := doctorSummary{Total: len(checks)}
	for _, check := range checks {
		switch check.Status {
		case doctorStatusOK:
			summary.OK++
		case doctorStatusWarn:
			summary.Warn++
		case doctorStatusFail:
			summary.Fail++
		}
	}
	return summary
}

func overallStatus(summary doctorSummary) doctorStatus {
	if summary.Fail > 0 {
		return doctorStatusFail
	}
	if summary.Warn > 0 {
		return doctorStatusWarn
	}
	return doctorStatusOK
}

func printDoctorJSON(w io.Writer, report doctorReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func printDoctorText(w io.Writer, report doctorReport) {
	fmt.Fprintf(w, "classwatcher doctor %s\n", report.Version)
	fmt.Fprintf(w, "generated_at: %s\n", report.GeneratedAt)
	fmt.Fprintf(w, "overall: %s  (ok=%d warn=%d fail=%d total=%d)\n\n",
		strings.ToUpper(string(report.Overall)),
		report.Summary.OK,
		report.Summary.Warn,
		report.Summary.Fail,
		report.Summary.Total,
	)

	for _, check := range report.Checks {
		label := "[OK]"
		if check.Status == doctorStatusWarn {
			label = "[WARN]"
		}
		if check.Status == doctorStatusFail {
			label = "[FAIL]"
		}

		fmt.Fprintf(w, "%s %s: %s\n", label, check.ID, check.Message)
		if check.Remediation != "" && check.Status != doctorStatusOK {
			fmt.Fprintf(w, "  fix: %s\n", check.Remediation)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tip: run `classwatcher doctor --json` for machine-readable output.")
}

func defaultDoctorConfig() *config.Config {
	return &config.Config{
		Watch: config.WatchConfig{
			Extensions: config.DefaultExtensions,
		},
		Server: config.ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    config.DefaultServerPort,
		},
	}
}

func configSearchPaths(explicit string) []string {
	if strings.TrimSpace(explicit) != "" {
		return []string{explicit}
	}

	return []string{
		filepath.Join(".", config.DefaultConfigFileName),
		filepath.Join(userHomeDir(), ".classwatcher", config.DefaultConfigFileName),
		filepath.Join("/etc/classwatcher", config.DefaultConfigFileName),
	}
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
