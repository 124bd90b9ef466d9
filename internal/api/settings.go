package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Settings are the assistant preferences stored server-side. The client
// treats them as a pass-through record.
type Settings struct {
	CompanyName        string `json:"company_name,omitempty"`
	Industry           string `json:"industry,omitempty"`
	Language           string `json:"language,omitempty"`
	AssistantTone      string `json:"assistant_tone,omitempty"`
	EmailNotifications bool   `json:"email_notifications"`
}

// GetSettings fetches the current settings.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/settings", nil, nil)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// UpdateSettings replaces the stored settings and returns the result.
func (c *Client) UpdateSettings(ctx context.Context, s *Settings) (*Settings, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPut, "/settings", body, nil)
	if err != nil {
		return nil, err
	}

	var updated Settings
	if err := json.Unmarshal(resp.Body, &updated); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &updated, nil
}
