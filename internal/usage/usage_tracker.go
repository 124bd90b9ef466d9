// Package usage records local client activity to .deskmate/usage.json so
// the stats command can report on it without asking the backend.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Tracker manages usage recording and persistence.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisting under workspacePath/.deskmate.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".deskmate")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .deskmate dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: UsageData{
			Version: "1.0",
			Aggregate: AggregatedStats{
				ByOperation: make(map[string]OpCounts),
				ByDay:       make(map[string]OpCounts),
			},
		},
	}

	// Corrupt or missing files start the tracker empty.
	t.Load()

	return t, nil
}

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	if t.data.Aggregate.ByOperation == nil {
		t.data.Aggregate.ByOperation = make(map[string]OpCounts)
	}
	if t.data.Aggregate.ByDay == nil {
		t.data.Aggregate.ByDay = make(map[string]OpCounts)
	}
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	t.dirty = false
	return os.WriteFile(t.filePath, data, 0644)
}

// Record adds one event to the aggregates with a debounced auto-save.
func (t *Tracker) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.add(e)

	op := t.data.Aggregate.ByOperation[e.Operation]
	op.add(e)
	t.data.Aggregate.ByOperation[e.Operation] = op

	day := time.Now().Format("2006-01-02")
	d := t.data.Aggregate.ByDay[day]
	d.add(e)
	t.data.Aggregate.ByDay[day] = d

	if !t.dirty {
		t.dirty = true
		time.AfterFunc(5*time.Second, func() {
			t.Save()
		})
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.data.Aggregate
	stats.ByOperation = copyCountsMap(stats.ByOperation)
	stats.ByDay = copyCountsMap(stats.ByDay)
	return stats
}

func copyCountsMap(src map[string]OpCounts) map[string]OpCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]OpCounts, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
