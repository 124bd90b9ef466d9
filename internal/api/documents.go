package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"deskmate/internal/logging"
)

// Document is an uploaded file as reported by the backend. Aside from
// identity and sizing there is no client-side derived state: records are
// passed through as-is.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Status      string    `json:"status"` // uploaded, processing, ready, failed
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ListDocuments returns every document the account has uploaded.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/documents", nil, nil)
	if err != nil {
		return nil, err
	}

	var docs []Document
	if err := json.Unmarshal(resp.Body, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse document list: %w", err)
	}
	return docs, nil
}

// GetDocument returns a single document by id.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &doc, nil
}

// UploadDocument sends a local file as multipart form data. onProgress, if
// non-nil, receives cumulative bytes sent out of the total request size.
func (c *Client) UploadDocument(ctx context.Context, path string, onProgress func(sent, total int64)) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryDocs, "UploadDocument")
	defer timer.Stop()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	opts := &Options{
		ContentType: w.FormDataContentType(),
		OnProgress:  onProgress,
		Timeout:     c.uploadTimeout(),
	}
	resp, err := c.Do(ctx, http.MethodPost, "/documents/upload", buf.Bytes(), opts)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}

	logging.Docs("uploaded %s as document %s (%d bytes)", filepath.Base(path), doc.ID, doc.Size)
	return &doc, nil
}

// DeleteDocument removes a document by id.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil, nil)
	return err
}

// DownloadDocument writes the raw document content to w.
func (c *Client) DownloadDocument(ctx context.Context, id string, w io.Writer) error {
	opts := &Options{Timeout: c.uploadTimeout()}
	resp, err := c.Do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id)+"/download", nil, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(resp.Body); err != nil {
		return fmt.Errorf("failed to write document content: %w", err)
	}
	return nil
}

// uploadTimeout is the extended deadline used for transfer-heavy calls.
func (c *Client) uploadTimeout() time.Duration {
	if c.timeout > 5*time.Minute {
		return c.timeout
	}
	return 5 * time.Minute
}
