package xui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
)

// Client talks to the 3x-ui / x-ui / tx-ui panel API
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu        sync.RWMutex
	sessionID string
}

// NewClient creates a new API client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Inbound is the subset of inbound fields the bot needs
type Inbound struct {
	ID       int    `json:"id"`
	Remark   string `json:"remark"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Enable   bool   `json:"enable"`
	Settings string `json:"settings"` // JSON document holding the clients array
}

// ClientConfig is one client entry inside inbound settings
type ClientConfig struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Enable     bool    `json:"enable"`
	Flow       string  `json:"flow,omitempty"`
	LimitIP    int     `json:"limitIp"`
	TotalGB    int64   `json:"totalGB"`    // bytes, 0 = unlimited
	ExpiryTime int64   `json:"expiryTime"` // unix millis, 0 = never
	TgID       FlexInt `json:"tgId"`
	SubID      string  `json:"subId"`
	Reset      int     `json:"reset"`
}

// FlexInt decodes numbers that older panels send as strings
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// ClientTraffic is the usage record of one client
type ClientTraffic struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Clients decodes the clients array of the inbound settings
func (in *Inbound) Clients() ([]ClientConfig, error) {
	var settings struct {
		Clients []ClientConfig `json:"clients"`
	}
	if err := json.Unmarshal([]byte(in.Settings), &settings); err != nil {
		return nil, fmt.Errorf("failed to parse inbound settings: %w", err)
	}
	return settings.Clients, nil
}

// FindClient returns the client with the given email
func (in *Inbound) FindClient(email string) (*ClientConfig, error) {
	clients, err := in.Clients()
	if err != nil {
		return nil, err
	}
	for i := range clients {
		if clients[i].Email == email {
			return &clients[i], nil
		}
	}
	return nil, fmt.Errorf("client %s not found in inbound %d", email, in.ID)
}

// Login authenticates with the panel and stores the session cookie
func (c *Client) Login(ctx context.Context) error {
	loginData := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/login", loginData)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed with status: %d, body: %s", resp.StatusCode, string(body))
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session" || cookie.Name == "3x-ui" {
			c.mu.Lock()
			c.sessionID = cookie.Value
			c.mu.Unlock()
			return nil
		}
	}

	return fmt.Errorf("no session cookie found in %d cookies", len(resp.Cookies()))
}

func (c *Client) doRequest(ctx context.Context, method, path string, data interface{}) (*http.Response, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	session := c.sessionID
	c.mu.RUnlock()
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "3x-ui", Value: session})
	}

	return c.httpClient.Do(req)
}

// call performs an authenticated request, logging in first when there is no session
// and once more on 401, and decodes the obj field into out
func (c *Client) call(ctx context.Context, method, path string, data, out interface{}) error {
	c.mu.RLock()
	loggedIn := c.sessionID != ""
	c.mu.RUnlock()
	if !loggedIn {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.doRequest(ctx, method, path, data)
		if err != nil {
			return fmt.Errorf("request %s failed: %w", path, err)
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			if err := c.Login(ctx); err != nil {
				return fmt.Errorf("re-login failed: %w", err)
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(body)}
		}

		var result apiResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("API returned success=false: %s", result.Msg)
		}

		if out != nil && len(result.Obj) > 0 && string(result.Obj) != "null" {
			if err := json.Unmarshal(result.Obj, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}

// StatusError is returned for non-200 responses
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// GetInbounds gets list of inbounds
func (c *Client) GetInbounds(ctx context.Context) ([]Inbound, error) {
	var inbounds []Inbound
	if err := c.call(ctx, http.MethodGet, "/panel/api/inbounds/list", nil, &inbounds); err != nil {
		return nil, err
	}
	return inbounds, nil
}

// GetInbound gets inbound by ID
func (c *Client) GetInbound(ctx context.Context, id int) (*Inbound, error) {
	var inbound Inbound
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/panel/api/inbounds/get/%d", id), nil, &inbound); err != nil {
		return nil, err
	}
	return &inbound, nil
}

func clientSettings(client ClientConfig) (string, error) {
	clientJSON, err := json.Marshal(client)
	if err != nil {
		return "", fmt.Errorf("failed to marshal client data: %w", err)
	}
	return fmt.Sprintf(`{"clients":[%s]}`, string(clientJSON)), nil
}

// AddClient adds a new client to an inbound
func (c *Client) AddClient(ctx context.Context, inboundID int, client ClientConfig) error {
	settings, err := clientSettings(client)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":       inboundID,
		"settings": settings,
	}
	return c.call(ctx, http.MethodPost, "/panel/api/inbounds/addClient", data, nil)
}

// UpdateClient replaces the client identified by its UUID
func (c *Client) UpdateClient(ctx context.Context, inboundID int, client ClientConfig) error {
	settings, err := clientSettings(client)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":       inboundID,
		"settings": settings,
	}
	return c.call(ctx, http.MethodPost, "/panel/api/inbounds/updateClient/"+url.PathEscape(client.ID), data, nil)
}

// DeleteClient deletes a client from an inbound by UUID
func (c *Client) DeleteClient(ctx context.Context, inboundID int, clientUUID string) error {
	path := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, url.PathEscape(clientUUID))
	return c.call(ctx, http.MethodPost, path, map[string]interface{}{"id": inboundID}, nil)
}

// GetClientTraffics gets client traffic statistics by email
func (c *Client) GetClientTraffics(ctx context.Context, email string) (*ClientTraffic, error) {
	var traffic ClientTraffic
	path := "/panel/api/inbounds/getClientTraffics/" + url.PathEscape(email)
	if err := c.call(ctx, http.MethodGet, path, nil, &traffic); err != nil {
		return nil, err
	}
	return &traffic, nil
}

// GetPanelSettings returns the panel settings including subscription configuration
func (c *Client) GetPanelSettings(ctx context.Context) (map[string]interface{}, error) {
	var settings map[string]interface{}
	if err := c.call(ctx, http.MethodPost, "/panel/setting/all", nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SubscriptionURL builds the subscription link for subID from the panel's sub settings
func (c *Client) SubscriptionURL(ctx context.Context, subID string) (string, error) {
	if subID == "" {
		return "", fmt.Errorf("client has no subId")
	}

	panelSettings, err := c.GetPanelSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get panel settings: %w", err)
	}

	if uri, ok := panelSettings["subURI"].(string); ok && uri != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(uri, "/"), subID), nil
	}

	subDomain, _ := panelSettings["subDomain"].(string)
	subKeyFile, _ := panelSettings["subKeyFile"].(string)
	subCertFile, _ := panelSettings["subCertFile"].(string)

	subPort := 0
	if port, ok := panelSettings["subPort"].(float64); ok {
		subPort = int(port)
	}

	subPath := "/sub/"
	if path, ok := panelSettings["subPath"].(string); ok && path != "" {
		subPath = "/" + strings.Trim(path, "/") + "/"
	}

	scheme := "http"
	if subKeyFile != "" && subCertFile != "" {
		scheme = "https"
	}

	if subDomain == "" {
		return c.baseURL + subPath + subID, nil
	}

	base := fmt.Sprintf("%s://%s", scheme, subDomain)
	if subPort > 0 && !(scheme == "https" && subPort == 443) && !(scheme == "http" && subPort == 80) {
		base = fmt.Sprintf("%s:%d", base, subPort)
	}
	return base + subPath + subID, nil
}

// QRCode renders link as a PNG QR code
func QRCode(link string) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}
