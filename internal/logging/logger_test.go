package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func resetState() {
	CloseAll()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	configLoaded = false
	configMu.Unlock()
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".deskmate")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    boot: true
    api: true
    auth: true
    docs: true
    chat: true
    store: true
    watch: true
`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer resetState()

	if !IsDebugMode() {
		t.Fatal("expected debug mode enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryAPI, CategoryAuth, CategoryDocs,
		CategoryChat, CategoryStore, CategoryWatch,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	logsPath := filepath.Join(tempDir, ".deskmate", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}

	found := make(map[string]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.Contains(e.Name(), string(cat)) {
				found[string(cat)] = true
			}
		}
	}
	for _, cat := range categories {
		if !found[string(cat)] {
			t.Errorf("no log file created for category %s", cat)
		}
	}
}

func TestDisabledCategoryDoesNotLog(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    boot: true
    watch: false
`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer resetState()

	Watch("this should be dropped")
	CloseAll()

	entries, _ := os.ReadDir(filepath.Join(tempDir, ".deskmate", "logs"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "watch") {
			t.Errorf("log file created for disabled category: %s", e.Name())
		}
	}
}

func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: false
`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer resetState()

	Boot("should not be written")
	API("neither should this")
	CloseAll()

	if _, err := os.Stat(filepath.Join(tempDir, ".deskmate", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory created in production mode")
	}
}

func TestConcurrentLogging(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    api: true
`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer resetState()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			API("concurrent message %d", n)
		}(i)
	}
	wg.Wait()
}

func TestConcurrentReloadDoesNotRace(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
  categories:
    api: true
`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer resetState()

	l := Get(CategoryAPI)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Debug("debug %d", n)
			l.Info("info %d", n)
			l.Warn("warn %d", n)
			l.Error("error %d", n)
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ReloadConfig(); err != nil {
				t.Errorf("ReloadConfig failed: %v", err)
			}
		}()
	}

	writeConfig(t, tempDir, `
logging:
  debug_mode: true
  level: warn
  json_format: true
  categories:
    api: true
`)
	if err := ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig failed: %v", err)
	}
	l.Info("dropped after level change")
	l.Error("kept after level change")

	wg.Wait()
}
