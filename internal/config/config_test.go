package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8000/api" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.GetTimeout() != 30*time.Second {
		t.Errorf("GetTimeout = %v", cfg.GetTimeout())
	}
	if cfg.Watch.MaxFileSizeMB != 25 {
		t.Errorf("MaxFileSizeMB = %d", cfg.Watch.MaxFileSizeMB)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://api.example.com
  timeout: 10s
watch:
  dir: ./inbox
  extensions: [".pdf"]
  debounce: 2s
logging:
  debug_mode: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.GetTimeout() != 10*time.Second {
		t.Errorf("GetTimeout = %v", cfg.GetTimeout())
	}
	wantWatch := WatchConfig{
		Dir:           "./inbox",
		Extensions:    []string{".pdf"},
		Debounce:      "2s",
		MaxFileSizeMB: 25,
	}
	if diff := cmp.Diff(wantWatch, cfg.Watch); diff != "" {
		t.Errorf("watch config mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetWatchDebounce() != 2*time.Second {
		t.Errorf("GetWatchDebounce = %v", cfg.GetWatchDebounce())
	}
	if !cfg.Logging.DebugMode {
		t.Error("DebugMode not loaded")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DESKMATE_API_URL", "https://override.example.com")
	t.Setenv("DESKMATE_TIMEOUT", "3s")
	t.Setenv("DESKMATE_DEBUG", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://override.example.com" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.GetTimeout() != 3*time.Second {
		t.Errorf("GetTimeout = %v", cfg.GetTimeout())
	}
	if !cfg.Logging.DebugMode {
		t.Error("DESKMATE_DEBUG not applied")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://saved.example.com"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.API.BaseURL != "https://saved.example.com" {
		t.Errorf("BaseURL = %q", loaded.API.BaseURL)
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Timeout = "not-a-duration"
	if cfg.GetTimeout() != 30*time.Second {
		t.Errorf("GetTimeout = %v, want 30s fallback", cfg.GetTimeout())
	}
	cfg.Watch.Debounce = "???"
	if cfg.GetWatchDebounce() != 500*time.Millisecond {
		t.Errorf("GetWatchDebounce = %v, want 500ms fallback", cfg.GetWatchDebounce())
	}
}
