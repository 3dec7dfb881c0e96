package marzban

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUserNotFound is returned when the panel has no such user
var ErrUserNotFound = errors.New("marzban user not found")

// Client talks to the Marzban / Marzneshin admin API
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a new API client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// User is a Marzban user
type User struct {
	Username        string                            `json:"username"`
	Status          string                            `json:"status,omitempty"`
	Expire          int64                             `json:"expire"`          // unix seconds, 0 = never
	DataLimit       int64                             `json:"data_limit"`      // bytes, 0 = unlimited
	UsedTraffic     int64                             `json:"used_traffic,omitempty"`
	Proxies         map[string]map[string]interface{} `json:"proxies,omitempty"`
	Inbounds        map[string][]string               `json:"inbounds,omitempty"`
	SubscriptionURL string                            `json:"subscription_url,omitempty"`
	Links           []string                          `json:"links,omitempty"`
	Note            string                            `json:"note,omitempty"`
}

// ExpiresAt returns the expiry as time, zero when unlimited
func (u *User) ExpiresAt() time.Time {
	if u.Expire <= 0 {
		return time.Time{}
	}
	return time.Unix(u.Expire, 0)
}

// Login obtains a bearer token from /api/admin/token
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admin/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed with status: %d, body: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}
	if result.AccessToken == "" {
		return fmt.Errorf("empty access token")
	}

	c.mu.Lock()
	c.token = result.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, data, out interface{}) error {
	c.mu.RLock()
	hasToken := c.token != ""
	c.mu.RUnlock()
	if !hasToken {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	var payload []byte
	if data != nil {
		var err error
		if payload, err = json.Marshal(data); err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		c.mu.RLock()
		req.Header.Set("Authorization", "Bearer "+c.token)
		c.mu.RUnlock()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s failed: %w", path, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			if err := c.Login(ctx); err != nil {
				return fmt.Errorf("re-login failed: %w", err)
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return ErrUserNotFound
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("API %s returned status %d: %s", path, resp.StatusCode, string(respBody))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}

// GetUser returns the user by username
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	if err := c.call(ctx, http.MethodGet, "/api/user/"+url.PathEscape(username), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser adds a user; proxies default to vless when none are given
func (c *Client) CreateUser(ctx context.Context, user *User) (*User, error) {
	if len(user.Proxies) == 0 {
		user.Proxies = map[string]map[string]interface{}{"vless": {}}
	}
	var created User
	if err := c.call(ctx, http.MethodPost, "/api/user", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ModifyUser updates expiry, data limit and status
func (c *Client) ModifyUser(ctx context.Context, user *User) (*User, error) {
	var modified User
	if err := c.call(ctx, http.MethodPut, "/api/user/"+url.PathEscape(user.Username), user, &modified); err != nil {
		return nil, err
	}
	return &modified, nil
}

// ResetUsage zeroes the user's used traffic
func (c *Client) ResetUsage(ctx context.Context, username string) error {
	return c.call(ctx, http.MethodPost, "/api/user/"+url.PathEscape(username)+"/reset", nil, nil)
}

// DeleteUser removes the user
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	return c.call(ctx, http.MethodDelete, "/api/user/"+url.PathEscape(username), nil, nil)
}
