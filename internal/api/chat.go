package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deskmate/internal/logging"
	"deskmate/internal/notify"
)

// Message is a single chat turn, user or assistant.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessage posts a user message and returns the assistant's reply.
func (c *Client) SendMessage(ctx context.Context, content string) (*Message, error) {
	body, err := json.Marshal(map[string]string{"message": content})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/chat", body, nil)
	if err != nil {
		return nil, err
	}

	var reply Message
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}

	logging.Chat("sent message, got %d byte reply", len(reply.Content))
	return &reply, nil
}

// ChatHistory returns up to limit past messages, newest last. A limit of 0
// uses the backend default.
func (c *Client) ChatHistory(ctx context.Context, limit int) ([]Message, error) {
	path := "/chat/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if err := json.Unmarshal(resp.Body, &msgs); err != nil {
		return nil, fmt.Errorf("failed to parse chat history: %w", err)
	}
	return msgs, nil
}

// StreamMessage posts a user message and streams the assistant's reply as
// incremental deltas over a channel. The error channel receives at most one
// error; both channels are closed when the stream ends.
func (c *Client) StreamMessage(ctx context.Context, content string) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout())
			defer cancel()
		}

		startTime := time.Now()

		body, err := json.Marshal(map[string]string{"message": content})
		if err != nil {
			errorChan <- err
			return
		}

		resp, err := c.openStream(ctx, body, false)
		if err != nil {
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var evt struct {
				Delta string `json:"delta"`
				Error string `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			if evt.Error != "" {
				errorChan <- fmt.Errorf("stream error: %s", evt.Error)
				return
			}
			if evt.Delta != "" {
				select {
				case contentChan <- evt.Delta:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- fmt.Errorf("stream read failed: %w", err)
			return
		}

		logging.Chat("stream completed in %v", time.Since(startTime))
	}()

	return contentChan, errorChan
}

// openStream starts the SSE request, applying the same refresh-once contract
// as Do. The response body is returned open for the caller to consume.
func (c *Client) openStream(ctx context.Context, body []byte, retried bool) (*http.Response, error) {
	opts := &Options{Headers: http.Header{"Accept": []string{"text/event-stream"}}}
	req, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", body, opts)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "invalid request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := "unable to reach the server"
		c.publish(msg, notify.SeverityError)
		return nil, &Error{Kind: KindTransport, Message: msg, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if err := c.refreshCredentials(ctx); err != nil {
			if clearErr := c.creds.Clear(); clearErr != nil {
				logging.AuthError("failed to clear credentials: %v", clearErr)
			}
			msg := "session expired, please log in again"
			c.publish(msg, notify.SeverityWarning)
			return nil, &Error{Kind: KindAuth, Status: http.StatusUnauthorized, Message: msg, Err: err}
		}
		return c.openStream(ctx, body, true)
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		msg := extractMessage(resp.StatusCode, raw)
		c.publish(msg, notify.SeverityError)
		kind := KindAPI
		if resp.StatusCode == http.StatusUnauthorized {
			kind = KindAuth
		}
		return nil, &Error{Kind: kind, Status: resp.StatusCode, Message: msg}
	}

	return resp, nil
}
