// Package watch uploads documents dropped into a watched directory. Events
// are debounced so editors that write in bursts trigger one upload, and a
// checksum journal keeps content that was already sent from going up twice.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"deskmate/internal/api"
	"deskmate/internal/logging"
	"deskmate/internal/notify"
	"deskmate/internal/store"
)

// Uploader sends a local file to the backend. *api.Client satisfies it.
type Uploader interface {
	UploadDocument(ctx context.Context, path string, onProgress func(sent, total int64)) (*api.Document, error)
}

// Journal tracks which file contents were already uploaded.
// *store.LocalStore satisfies it.
type Journal interface {
	HasUpload(checksum string) (bool, error)
	RecordUpload(r store.UploadRecord) error
}

// Config tunes a Watcher.
type Config struct {
	Dir           string
	Extensions    []string // lowercase, with leading dot
	Debounce      time.Duration
	MaxFileSizeMB int
}

// Stats tracks watcher activity.
type Stats struct {
	EventsSeen    int
	Uploaded      int
	Skipped       int
	Failed        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher monitors one directory and uploads settled files.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	uploader    Uploader
	journal     Journal
	sink        notify.Sink
	cfg         Config
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for cfg.Dir. The journal may be nil, in which case
// every settled file is uploaded regardless of history.
func New(cfg Config, uploader Uploader, journal Journal, sink notify.Sink) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory not configured")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		uploader:    uploader,
		journal:     journal,
		sink:        sink,
		cfg:         cfg,
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create watch dir: %w", err)
	}
	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}

	logging.Watch("watching %s for %v", w.cfg.Dir, w.cfg.Extensions)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("error closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("watcher error: %v", err)

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !w.wantExtension(event.Name) {
		return
	}

	logging.WatchDebug("event %s for %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.EventsSeen++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) wantExtension(path string) bool {
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.cfg.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// processSettled uploads files whose last event is older than the debounce
// window.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.cfg.Debounce {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		w.uploadFile(ctx, path)
	}
}

func (w *Watcher) uploadFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WatchDebug("file gone before upload: %s", path)
			return
		}
		logging.WatchError("failed to stat %s: %v", path, err)
		return
	}
	if info.IsDir() {
		return
	}

	if w.cfg.MaxFileSizeMB > 0 && info.Size() > int64(w.cfg.MaxFileSizeMB)*1024*1024 {
		logging.WatchWarn("skipping %s: %d bytes exceeds %dMB limit", path, info.Size(), w.cfg.MaxFileSizeMB)
		w.publish(fmt.Sprintf("skipped %s: larger than %dMB", filepath.Base(path), w.cfg.MaxFileSizeMB), notify.SeverityWarning)
		w.bumpSkipped()
		return
	}

	sum, err := checksumFile(path)
	if err != nil {
		logging.WatchError("failed to checksum %s: %v", path, err)
		return
	}

	if w.journal != nil {
		seen, err := w.journal.HasUpload(sum)
		if err != nil {
			logging.WatchError("journal lookup failed for %s: %v", path, err)
		} else if seen {
			logging.WatchDebug("already uploaded, skipping: %s", path)
			w.bumpSkipped()
			return
		}
	}

	doc, err := w.uploader.UploadDocument(ctx, path, nil)
	if err != nil {
		// The client already published a notification for the failure.
		logging.WatchError("upload failed for %s: %v", path, err)
		w.mu.Lock()
		w.stats.Failed++
		w.mu.Unlock()
		return
	}

	if w.journal != nil {
		rec := store.UploadRecord{
			Path:       path,
			Checksum:   sum,
			DocumentID: doc.ID,
			Size:       info.Size(),
		}
		if err := w.journal.RecordUpload(rec); err != nil {
			logging.WatchError("failed to journal upload of %s: %v", path, err)
		}
	}

	w.mu.Lock()
	w.stats.Uploaded++
	w.mu.Unlock()

	logging.Watch("uploaded %s as document %s", path, doc.ID)
	w.publish(fmt.Sprintf("uploaded %s", filepath.Base(path)), notify.SeverityInfo)
}

func (w *Watcher) bumpSkipped() {
	w.mu.Lock()
	w.stats.Skipped++
	w.mu.Unlock()
}

func (w *Watcher) publish(message string, severity notify.Severity) {
	if w.sink == nil {
		return
	}
	w.sink.Publish(notify.Notification{Message: message, Severity: severity})
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
