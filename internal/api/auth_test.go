package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmate/internal/creds"
	"deskmate/internal/notify"
)

func TestLoginSavesPair(t *testing.T) {
	var sawAuth atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		if r.Header.Get("Authorization") != "" {
			sawAuth.Store(true)
		}
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "amira@example.com", body.Email)

		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken:  "A1",
			RefreshToken: "R1",
			TokenType:    "bearer",
		})
	}))
	defer ts.Close()

	store := creds.NewMemStore()
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	err := client.Login(context.Background(), "amira@example.com", "hunter2")
	require.NoError(t, err)
	assert.False(t, sawAuth.Load(), "login must not carry a bearer header")

	pair, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "A1", pair.AccessToken)
	assert.Equal(t, "R1", pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
}

func TestLoginRejectionDoesNotRefresh(t *testing.T) {
	var refreshCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			refreshCalls.Add(1)
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad credentials"})
	}))
	defer ts.Close()

	rec := notify.NewRecorder()
	client := New(ts.URL, 5*time.Second, creds.NewMemStore(), rec)

	err := client.Login(context.Background(), "amira@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(0), refreshCalls.Load())

	require.Len(t, rec.All(), 1)
	assert.Equal(t, "bad credentials", rec.All()[0].Message)
}

func TestLogoutClearsCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1", RefreshToken: "R1"})
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	require.NoError(t, client.Logout(context.Background()))

	_, err := store.Load()
	assert.ErrorIs(t, err, creds.ErrNoCredentials)
}

func TestLogoutClearsEvenWhenBackendDown(t *testing.T) {
	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1", RefreshToken: "R1"})
	client := New("http://127.0.0.1:1", 200*time.Millisecond, store, notify.NewRecorder())

	require.NoError(t, client.Logout(context.Background()))

	_, err := store.Load()
	assert.ErrorIs(t, err, creds.ErrNoCredentials)
}

func TestRefreshPreservesUnrotatedRefreshToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			// Backend rotates the access token only.
			json.NewEncoder(w).Encode(TokenResponse{AccessToken: "A2"})
		case "/documents":
			if r.Header.Get("Authorization") != "Bearer A2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]Document{})
		}
	}))
	defer ts.Close()

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1", RefreshToken: "R1"})
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	_, err := client.ListDocuments(context.Background())
	require.NoError(t, err)

	pair, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "A2", pair.AccessToken)
	assert.Equal(t, "R1", pair.RefreshToken, "refresh token kept when backend does not rotate it")
}

func TestExtractMessagePriority(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail field", 400, `{"detail":"field is required"}`, "field is required"},
		{"message field", 400, `{"message":"try again"}`, "try again"},
		{"error field", 400, `{"error":"nope"}`, "nope"},
		{"detail wins", 400, `{"detail":"d","message":"m","error":"e"}`, "d"},
		{"unauthorized fallback", 401, `not json`, "authentication required"},
		{"server fallback", 502, ``, "the server encountered an error, try again later"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractMessage(tc.status, []byte(tc.body)))
		})
	}
}
