package api

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
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNetwork            = errors.New("network error")
)

// Client talks to the companion backend over HTTP. Authorization is
// explicit: the token source is consulted per request, and any bearer-
// authenticated request that comes back 401 fires the unauthorized handler
// exactly once for that response before the error is returned.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokenSource    func() string
	onUnauthorized func()
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetTokenSource registers the function supplying the current bearer token.
// An empty return value means the request goes out unauthenticated.
func (c *Client) SetTokenSource(fn func() string) {
	c.tokenSource = fn
}

// SetUnauthorizedHandler registers the cross-cutting 401 policy. The handler
// must be safe to call more than once across responses.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.onUnauthorized = fn
}

// Login exchanges credentials for an access token. It does not mutate any
// client state; the caller decides what to do with the token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return "", ErrInvalidCredentials
	default:
		return "", fmt.Errorf("login failed: unexpected status %d", resp.StatusCode)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access_token")
	}
	return tr.AccessToken, nil
}

// Register creates an account. The backend happens to return a token in the
// response body; it is deliberately discarded so that registering never
// authenticates by itself.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("failed to encode register request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		return ErrUsernameTaken
	default:
		return fmt.Errorf("register failed: unexpected status %d", resp.StatusCode)
	}
}

// Chat submits one user message and returns the bot's reply with its
// emotion metadata.
func (c *Client) Chat(ctx context.Context, text string) (ChatResponse, error) {
	var cr ChatResponse
	body, err := json.Marshal(ChatRequest{Text: text})
	if err != nil {
		return cr, fmt.Errorf("failed to encode chat request: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/chat", bytes.NewReader(body))
	if err != nil {
		return cr, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return cr, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return cr, fmt.Errorf("chat failed: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return cr, fmt.Errorf("failed to decode chat response: %w", err)
	}
	return cr, nil
}

// History fetches the stored transcript for the authenticated user,
// earliest message first.
func (c *Client) History(ctx context.Context) ([]HistoryRecord, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/history", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history failed: unexpected status %d", resp.StatusCode)
	}
	var records []HistoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	return records, nil
}

// Trends fetches the mood confidence log consumed by the trends view.
func (c *Client) Trends(ctx context.Context) ([]TrendPoint, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/trends", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends failed: unexpected status %d", resp.StatusCode)
	}
	var points []TrendPoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, fmt.Errorf("failed to decode trends response: %w", err)
	}
	return points, nil
}

func (c *Client) doAuthorized(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenSource != nil {
		if token := c.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, ErrUnauthorized
	}
	return resp, nil
}
