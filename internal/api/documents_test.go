package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmate/internal/creds"
	"deskmate/internal/notify"
)

func TestUploadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("quarterly numbers"), 0644))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, "notes.txt", header.Filename)
		var buf bytes.Buffer
		buf.ReadFrom(f)
		assert.Equal(t, "quarterly numbers", buf.String())

		json.NewEncoder(w).Encode(Document{
			ID:       "doc-7",
			Filename: header.Filename,
			Size:     header.Size,
			Status:   "uploaded",
		})
	}))
	defer ts.Close()

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1"})
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	var lastSent, total int64
	doc, err := client.UploadDocument(context.Background(), path, func(sent, tot int64) {
		lastSent, total = sent, tot
	})
	require.NoError(t, err)

	assert.Equal(t, "doc-7", doc.ID)
	assert.Equal(t, "uploaded", doc.Status)
	assert.Equal(t, total, lastSent, "progress should reach the full request size")
	assert.Greater(t, total, int64(0))
}

func TestUploadMissingFile(t *testing.T) {
	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1"})
	client := New("http://127.0.0.1:1", time.Second, store, notify.NewRecorder())

	_, err := client.UploadDocument(context.Background(), "/nonexistent/file.pdf", nil)
	require.Error(t, err)
	assert.False(t, IsTransportError(err), "local file errors are not normalized transport failures")
}

func TestDownloadDocument(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/doc-7/download", r.URL.Path)
		w.Write([]byte("raw file bytes"))
	}))
	defer ts.Close()

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1"})
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	var out bytes.Buffer
	require.NoError(t, client.DownloadDocument(context.Background(), "doc-7", &out))
	assert.Equal(t, "raw file bytes", out.String())
}

func TestDeleteDocumentEscapesID(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	store := creds.NewMemStoreWith(creds.Pair{AccessToken: "A1"})
	client := New(ts.URL, 5*time.Second, store, notify.NewRecorder())

	require.NoError(t, client.DeleteDocument(context.Background(), "a/b c"))
	assert.Equal(t, "/documents/a%2Fb%20c", gotPath)
}
