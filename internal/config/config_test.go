package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("API_BASE_URL", "")
	t.Setenv("CLASSWATCHER_API_BASE_URL", "")
	t.Setenv("CLASSWATCHER_FOLDER_PATH", "")
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FolderPath != "" {
		t.Errorf("default FolderPath = %q, want empty", cfg.FolderPath)
	}
	if cfg.Watch.IntervalMS != 5000 {
		t.Errorf("default IntervalMS = %d, want 5000", cfg.Watch.IntervalMS)
	}
	if cfg.Watch.StopWaitMS != 1000 {
		t.Errorf("default StopWaitMS = %d, want 1000", cfg.Watch.StopWaitMS)
	}
	if cfg.Watch.Since != SinceProcess {
		t.Errorf("default Since = %q, want %q", cfg.Watch.Since, SinceProcess)
	}
	if len(cfg.Watch.Extensions) != 3 || cfg.Watch.Extensions[0] != ".mp3" {
		t.Errorf("default Extensions = %v", cfg.Watch.Extensions)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 8767 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default Server = %+v", cfg.Server)
	}
	if want := filepath.Join(home, ".classwatcher", "history.db"); cfg.History.Path != want {
		t.Errorf("default History.Path = %q, want %q", cfg.History.Path, want)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
}

func TestLoad_FromJSONFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{
  "folder_path": "`+dir+`",
  "api": {"base_url": "https://api.example.com/", "timeout_secs": 10},
  "watch": {"interval_ms": 250, "since": "Session", "extensions": ["MP3", "flac"]},
  "server": {"enabled": false},
  "logging": {"level": "debug", "format": "json"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FolderPath != dir {
		t.Errorf("FolderPath = %q, want %q", cfg.FolderPath, dir)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutSecs != 10 {
		t.Errorf("TimeoutSecs = %d, want 10", cfg.API.TimeoutSecs)
	}
	if cfg.Watch.Interval().Milliseconds() != 250 {
		t.Errorf("Interval() = %v, want 250ms", cfg.Watch.Interval())
	}
	if cfg.Watch.Since != SinceSession {
		t.Errorf("Since = %q, want %q", cfg.Watch.Since, SinceSession)
	}
	if len(cfg.Watch.Extensions) != 2 || cfg.Watch.Extensions[0] != ".mp3" || cfg.Watch.Extensions[1] != ".flac" {
		t.Errorf("Extensions = %v, want [.mp3 .flac]", cfg.Watch.Extensions)
	}
	if cfg.Server.Enabled {
		t.Error("Server.Enabled should be false")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_APIBaseURLFromEnv(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"api": {"base_url": "https://file.example.com"}}`)

	t.Setenv("API_BASE_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want value from API_BASE_URL", cfg.API.BaseURL)
	}
}

func TestLoad_PrefixedEnvOverride(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{}`)

	t.Setenv("CLASSWATCHER_WATCH_INTERVAL_MS", "1500")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watch.IntervalMS != 1500 {
		t.Errorf("IntervalMS = %d, want 1500", cfg.Watch.IntervalMS)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "watch:\n  stop_wait_ms: 50\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Watch.StopWaitMS != 50 {
		t.Errorf("StopWaitMS = %d, want 50", cfg.Watch.StopWaitMS)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{not json`)

	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed JSON")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"watch": {"since": "yesterday"}}`)

	if _, err := Load(path); err == nil {
		t.Error("Load() should reject an unknown watch.since")
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{" MP3", ".Wav", "", "mp3", "m4a"})
	want := []string{".mp3", ".wav", ".m4a"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeExtensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeExtensions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandPath(t *testing.T) {
	home := isolateEnv(t)

	got, err := ExpandPath("~/Recordings")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if want := filepath.Join(home, "Recordings"); got != want {
		t.Errorf("ExpandPath() = %q, want %q", got, want)
	}

	rel, err := ExpandPath("lectures")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if !filepath.IsAbs(rel) {
		t.Errorf("ExpandPath(relative) = %q, want absolute", rel)
	}
}

func TestGetConfigDir(t *testing.T) {
	home := isolateEnv(t)

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join(home, ".classwatcher") {
		t.Errorf("GetConfigDir() = %q", dir)
	}
}
