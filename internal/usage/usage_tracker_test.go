package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTracker_RecordAggregatesAndPersists(t *testing.T) {
	ws := t.TempDir()
	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	// Avoid background autosave during the test (debounce uses AfterFunc).
	tracker.dirty = true

	tracker.Record(Event{Operation: "upload", BytesUploaded: 1024})
	tracker.Record(Event{Operation: "upload", Failed: true})
	tracker.Record(Event{Operation: "chat", Messages: 1, Refreshes: 1})

	stats := tracker.Stats()
	if stats.Total.Requests != 3 || stats.Total.Failures != 1 {
		t.Fatalf("Total=%+v, want requests=3 failures=1", stats.Total)
	}
	if stats.Total.BytesUploaded != 1024 {
		t.Fatalf("BytesUploaded=%d, want 1024", stats.Total.BytesUploaded)
	}
	if got := stats.ByOperation["upload"]; got.Requests != 2 || got.Failures != 1 {
		t.Fatalf("ByOperation[upload]=%+v, want requests=2 failures=1", got)
	}
	if got := stats.ByOperation["chat"]; got.Messages != 1 || got.Refreshes != 1 {
		t.Fatalf("ByOperation[chat]=%+v, want messages=1 refreshes=1", got)
	}
	day := time.Now().Format("2006-01-02")
	if got := stats.ByDay[day]; got.Requests != 3 {
		t.Fatalf("ByDay[%s]=%+v, want requests=3", day, got)
	}

	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(ws, ".deskmate", "usage.json"))
	if err != nil {
		t.Fatalf("read usage.json: %v", err)
	}
	var persisted UsageData
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("unmarshal usage.json: %v", err)
	}
	if persisted.Aggregate.Total.Requests != 3 {
		t.Fatalf("persisted requests=%d, want 3", persisted.Aggregate.Total.Requests)
	}
}

func TestTracker_ReloadsExistingFile(t *testing.T) {
	ws := t.TempDir()

	first, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	first.dirty = true
	first.Record(Event{Operation: "login"})
	if err := first.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if got := second.Stats().Total.Requests; got != 1 {
		t.Fatalf("reloaded requests=%d, want 1", got)
	}
}

func TestTracker_CorruptFileStartsEmpty(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, ".deskmate")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "usage.json"), []byte("{ bad"), 0644); err != nil {
		t.Fatal(err)
	}

	tracker, err := NewTracker(ws)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if got := tracker.Stats().Total.Requests; got != 0 {
		t.Fatalf("requests=%d, want 0 after corrupt file", got)
	}
}
