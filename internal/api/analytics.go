package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Stats are the dashboard counters computed by the backend.
type Stats struct {
	DocumentCount    int       `json:"document_count"`
	ChatMessageCount int       `json:"chat_message_count"`
	StorageUsedBytes int64     `json:"storage_used_bytes"`
	LastActivity     time.Time `json:"last_activity"`
}

// Stats fetches account-level usage counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/analytics/stats", nil, nil)
	if err != nil {
		return nil, err
	}

	var s Stats
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return nil, fmt.Errorf("failed to parse stats: %w", err)
	}
	return &s, nil
}
