package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"deskmate/internal/creds"
	"deskmate/internal/logging"
)

// TokenResponse is the credential payload issued on login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// User is the authenticated account as reported by the backend.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Login authenticates with email/password and stores the issued credential
// pair, overwriting any previous one.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}

	// NoAuth: a login must not carry a stale bearer token, and a 401 here
	// means bad credentials, not an expired session.
	resp, err := c.Do(ctx, http.MethodPost, "/auth/login", body, &Options{NoAuth: true})
	if err != nil {
		return err
	}

	var tok TokenResponse
	if err := json.Unmarshal(resp.Body, &tok); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("login response missing access token")
	}

	pair := &creds.Pair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if err := c.creds.Save(pair); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	logging.Auth("logged in as %s", email)
	return nil
}

// Register creates a new account. The caller logs in separately afterwards.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	body, err := json.Marshal(map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/auth/register", body, &Options{NoAuth: true})
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse register response: %w", err)
	}
	return &user, nil
}

// Me returns the account behind the stored credentials.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// Logout clears the stored credential pair. The server-side call is
// best-effort: the local session ends either way.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		logging.AuthDebug("server logout failed: %v", err)
	}
	if err := c.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	logging.Auth("logged out")
	return nil
}

// postRefresh exchanges a refresh token for a new credential pair. It goes
// through the raw HTTP path rather than Do: a refresh must never publish
// notifications or trigger another refresh.
func (c *Client) postRefresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/refresh", body, &Options{NoAuth: true})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}
	return &tok, nil
}
