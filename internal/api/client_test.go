package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deskmate/internal/creds"
	"deskmate/internal/notify"
)

// testBackend is a scripted stand-in for the real backend.
type testBackend struct {
	t *testing.T

	refreshCalls  int32
	documentCalls int32

	// validToken is the access token /documents accepts.
	validToken string
	// refreshToken is the refresh token /auth/refresh accepts. Empty means
	// every refresh is rejected.
	refreshToken string
	// rotated is the pair issued by a successful refresh.
	rotated TokenResponse

	// seenAuth records the Authorization header of every /documents call.
	mu       sync.Mutex
	seenAuth []string
}

func (b *testBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.documentCalls, 1)
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seenAuth = append(b.seenAuth, auth)
		b.mu.Unlock()

		if auth != "Bearer "+b.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "token expired"})
			return
		}
		json.NewEncoder(w).Encode([]Document{{ID: "doc-1", Filename: "report.pdf"}})
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.refreshCalls, 1)

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if b.refreshToken == "" || req.RefreshToken != b.refreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "invalid refresh token"})
			return
		}
		json.NewEncoder(w).Encode(b.rotated)
	})

	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "no such thing"})
	})

	return mux
}

func newTestClient(t *testing.T, backend *testBackend, pair *creds.Pair) (*Client, *creds.MemStore, *notify.Recorder, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)

	store := creds.NewMemStore()
	if pair != nil {
		if err := store.Save(pair); err != nil {
			t.Fatalf("failed to seed credentials: %v", err)
		}
	}
	rec := notify.NewRecorder()
	client := New(ts.URL, 5*time.Second, store, rec)
	return client, store, rec, ts
}

func TestBearerHeaderAttached(t *testing.T) {
	backend := &testBackend{t: t, validToken: "A1"}
	client, _, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	if _, err := client.ListDocuments(context.Background()); err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}

	if got := backend.seenAuth[0]; got != "Bearer A1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer A1")
	}
	if n := len(rec.All()); n != 0 {
		t.Errorf("expected no notifications on success, got %d", n)
	}
}

func TestRefreshAndReplayOnce(t *testing.T) {
	backend := &testBackend{
		t:            t,
		validToken:   "A2",
		refreshToken: "R1",
		rotated:      TokenResponse{AccessToken: "A2", RefreshToken: "R2", TokenType: "bearer"},
	}
	client, store, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	docs, err := client.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" {
		t.Errorf("unexpected documents: %+v", docs)
	}

	if n := atomic.LoadInt32(&backend.refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&backend.documentCalls); n != 2 {
		t.Errorf("document calls = %d, want 2 (original + replay)", n)
	}

	// The replay carries the new access token.
	if got := backend.seenAuth[1]; got != "Bearer A2" {
		t.Errorf("replay Authorization = %q, want %q", got, "Bearer A2")
	}

	// The stored pair was rotated.
	pair, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if pair.AccessToken != "A2" || pair.RefreshToken != "R2" {
		t.Errorf("stored pair = {%s %s}, want {A2 R2}", pair.AccessToken, pair.RefreshToken)
	}

	// Successful refreshes are silent.
	if n := len(rec.All()); n != 0 {
		t.Errorf("expected no notifications, got %d: %+v", n, rec.All())
	}
}

func TestRefreshFailureClearsCredentials(t *testing.T) {
	backend := &testBackend{t: t, validToken: "A2"} // refreshToken empty: refresh always rejected
	client, store, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	_, err := client.ListDocuments(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if _, err := store.Load(); err != creds.ErrNoCredentials {
		t.Errorf("expected credentials cleared, got %v", err)
	}

	seen := rec.All()
	if len(seen) != 1 {
		t.Fatalf("notifications = %d, want exactly 1", len(seen))
	}
	if seen[0].Message != "session expired, please log in again" {
		t.Errorf("unexpected notification: %q", seen[0].Message)
	}
	if seen[0].Severity != notify.SeverityWarning {
		t.Errorf("severity = %s, want warning", seen[0].Severity)
	}
}

func TestNoRefreshTokenFailsImmediately(t *testing.T) {
	backend := &testBackend{t: t, validToken: "A2", refreshToken: "R1"}
	client, _, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "stale"})

	_, err := client.ListDocuments(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if n := atomic.LoadInt32(&backend.refreshCalls); n != 0 {
		t.Errorf("refresh calls = %d, want 0 (no refresh token stored)", n)
	}
	if n := len(rec.All()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestReplayedRequestNotRetriedTwice(t *testing.T) {
	// Refresh succeeds but issues a token /documents still rejects, so the
	// replay 401s again. The client must stop there.
	backend := &testBackend{
		t:            t,
		validToken:   "never-issued",
		refreshToken: "R1",
		rotated:      TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}
	client, _, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	_, err := client.ListDocuments(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if n := atomic.LoadInt32(&backend.refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&backend.documentCalls); n != 2 {
		t.Errorf("document calls = %d, want 2 (no second replay)", n)
	}
	if n := len(rec.All()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestNonAuthFailureNeverRefreshes(t *testing.T) {
	backend := &testBackend{t: t, validToken: "A1", refreshToken: "R1"}
	client, store, rec, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	_, err := client.Do(context.Background(), http.MethodGet, "/missing", nil, nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindAPI || apiErr.Status != http.StatusNotFound {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := atomic.LoadInt32(&backend.refreshCalls); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}

	// Exactly one notification carrying the server-provided message.
	seen := rec.All()
	if len(seen) != 1 {
		t.Fatalf("notifications = %d, want 1", len(seen))
	}
	if seen[0].Message != "no such thing" {
		t.Errorf("notification = %q, want server-provided message", seen[0].Message)
	}

	// Credentials untouched.
	if pair, err := store.Load(); err != nil || pair.AccessToken != "A1" {
		t.Errorf("credentials changed on non-auth failure: %+v %v", pair, err)
	}
}

func TestTransportFailureNormalized(t *testing.T) {
	store := creds.NewMemStore()
	rec := notify.NewRecorder()
	// Nothing listens on this address.
	client := New("http://127.0.0.1:1", 500*time.Millisecond, store, rec)

	_, err := client.ListDocuments(context.Background())
	if !IsTransportError(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if n := len(rec.All()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestConcurrentExpiryShareOneRefresh(t *testing.T) {
	backend := &testBackend{
		t:            t,
		validToken:   "A2",
		refreshToken: "R1",
		rotated:      TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}

	ts := httptest.NewServer(slowRefresh(backend.handler(), 100*time.Millisecond))
	t.Cleanup(ts.Close)

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1", RefreshToken: "R1"})
	rec := notify.NewRecorder()
	client := New(ts.URL, 5*time.Second, store, rec)

	const parallel = 8
	var wg sync.WaitGroup
	errs := make([]error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.ListDocuments(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d failed: %v", i, err)
		}
	}

	// All 401s piled onto a single in-flight refresh.
	if n := atomic.LoadInt32(&backend.refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1 (singleflight)", n)
	}
}

func TestRefreshCallbackFiresOncePerRefresh(t *testing.T) {
	backend := &testBackend{
		t:            t,
		validToken:   "A2",
		refreshToken: "R1",
		rotated:      TokenResponse{AccessToken: "A2", RefreshToken: "R2"},
	}

	ts := httptest.NewServer(slowRefresh(backend.handler(), 100*time.Millisecond))
	t.Cleanup(ts.Close)

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1", RefreshToken: "R1"})
	rec := notify.NewRecorder()
	client := New(ts.URL, 5*time.Second, store, rec)

	var refreshes atomic.Int64
	client.OnRefresh(func() { refreshes.Add(1) })

	const parallel = 8
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.ListDocuments(context.Background()); err != nil {
				t.Errorf("ListDocuments failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := refreshes.Load(); n != 1 {
		t.Errorf("refresh callback fired %d times, want 1", n)
	}

	// A subsequent request with valid credentials does not fire it again.
	if _, err := client.ListDocuments(context.Background()); err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("refresh callback fired %d times after valid request, want 1", n)
	}
}

func TestRefreshCallbackNotFiredOnFailedRefresh(t *testing.T) {
	backend := &testBackend{t: t, validToken: "A2", refreshToken: "other"}

	client, _, _, _ := newTestClient(t, backend, &creds.Pair{AccessToken: "A1", RefreshToken: "R1"})

	var refreshes atomic.Int64
	client.OnRefresh(func() { refreshes.Add(1) })

	if _, err := client.ListDocuments(context.Background()); err == nil {
		t.Fatal("expected error from rejected refresh")
	}
	if n := refreshes.Load(); n != 0 {
		t.Errorf("refresh callback fired %d times on failed refresh, want 0", n)
	}
}

// slowRefresh delays /auth/refresh so concurrent 401 handling overlaps.
func slowRefresh(next http.Handler, d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			time.Sleep(d)
		}
		next.ServeHTTP(w, r)
	})
}
