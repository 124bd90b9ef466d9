package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"deskmate/internal/api"
	"deskmate/internal/notify"
	"deskmate/internal/store"
)

type fakeUploader struct {
	mu    sync.Mutex
	paths []string
	fail  bool
}

func (f *fakeUploader) UploadDocument(ctx context.Context, path string, onProgress func(sent, total int64)) (*api.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, &api.Error{Kind: api.KindTransport, Message: "unable to reach the server"}
	}
	f.paths = append(f.paths, path)
	return &api.Document{ID: "doc-" + filepath.Base(path), Filename: filepath.Base(path)}, nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.paths))
	copy(out, f.paths)
	return out
}

type fakeJournal struct {
	mu   sync.Mutex
	seen map[string]store.UploadRecord
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{seen: make(map[string]store.UploadRecord)}
}

func (j *fakeJournal) HasUpload(checksum string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.seen[checksum]
	return ok, nil
}

func (j *fakeJournal) RecordUpload(r store.UploadRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen[r.Checksum] = r
	return nil
}

func startWatcher(t *testing.T, dir string, up Uploader, j Journal, sink notify.Sink) *Watcher {
	t.Helper()
	w, err := New(Config{
		Dir:        dir,
		Extensions: []string{".pdf", ".txt"},
		Debounce:   50 * time.Millisecond,
	}, up, j, sink)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return w
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherUploadsSettledFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	up := &fakeUploader{}
	journal := newFakeJournal()
	rec := notify.NewRecorder()

	w := startWatcher(t, dir, up, journal, rec)
	defer w.Stop()

	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("pdf bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return len(up.uploaded()) == 1 })
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	up := &fakeUploader{}

	w := startWatcher(t, dir, up, newFakeJournal(), nil)
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return len(up.uploaded()) == 1 })

	got := up.uploaded()
	if filepath.Base(got[0]) != "notes.txt" {
		t.Errorf("uploaded %v, want only notes.txt", got)
	}
	if s := w.Stats(); s.Uploaded != 1 {
		t.Errorf("stats.Uploaded = %d, want 1", s.Uploaded)
	}
}

func TestWatcherSkipsAlreadyUploadedContent(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	up := &fakeUploader{}
	journal := newFakeJournal()

	w := startWatcher(t, dir, up, journal, nil)
	defer w.Stop()

	first := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(first, []byte("same content"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return len(up.uploaded()) == 1 })

	// Same bytes under a different name: journaled checksum suppresses it.
	second := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(second, []byte("same content"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 3*time.Second, func() bool { return w.Stats().Skipped == 1 })

	if n := len(up.uploaded()); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w := startWatcher(t, dir, &fakeUploader{}, nil, nil)
	w.Stop()
	w.Stop()
}

func TestWatcherCountsFailedUploads(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	up := &fakeUploader{fail: true}

	w := startWatcher(t, dir, up, newFakeJournal(), nil)
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool { return w.Stats().Failed == 1 })
}
