package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the HTTP API of a running procwatch daemon.
type Client struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	username string
	password string
	token    string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification

	// Credentials for a daemon with auth enabled. Token wins over
	// Username/Password.
	Token    string
	Username string
	Password string
}

const defaultBaseURL = "http://127.0.0.1:8085/api"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}

// New creates a new procwatch API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:  config.BaseURL,
		logger:   config.Logger,
		username: config.Username,
		password: config.Password,
		token:    config.Token,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
	}
	return err == nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Programs(ctx context.Context) ([]Program, error) {
	var out []Program
	err := c.do(ctx, http.MethodGet, "/programs", nil, &out)
	return out, err
}

func (c *Client) Program(ctx context.Context, name string) (Program, error) {
	var p Program
	err := c.do(ctx, http.MethodGet, "/programs/"+url.PathEscape(name), nil, &p)
	return p, err
}

// AddProgram registers a program; the name is derived from the path when empty.
func (c *Client) AddProgram(ctx context.Context, req ProgramRequest) (Program, error) {
	c.logger.Debug("Adding program", "name", req.Name, "path", req.Path)
	var p Program
	err := c.do(ctx, http.MethodPost, "/programs", req, &p)
	return p, err
}

func (c *Client) UpdateProgram(ctx context.Context, name string, req ProgramRequest) (Program, error) {
	c.logger.Debug("Updating program", "name", name)
	var p Program
	err := c.do(ctx, http.MethodPut, "/programs/"+url.PathEscape(name), req, &p)
	return p, err
}

func (c *Client) RemoveProgram(ctx context.Context, name string) error {
	c.logger.Debug("Removing program", "name", name)
	return c.do(ctx, http.MethodDelete, "/programs/"+url.PathEscape(name), nil, nil)
}

func (c *Client) StartWatchdog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/watchdog/start", nil, nil)
}

// StopWatchdog asks the daemon to stop supervising. A zero timeout lets the
// server pick its default.
func (c *Client) StopWatchdog(ctx context.Context, timeout time.Duration) error {
	path := "/watchdog/stop"
	if timeout > 0 {
		path += "?timeout=" + url.QueryEscape(timeout.String())
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Login exchanges username and password for a token, which is then used for
// later requests on this client.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	var tok Token
	err := c.do(ctx, http.MethodPost, "/auth/login", LoginRequest{Username: username, Password: password}, &tok)
	if err == nil {
		c.token = tok.Value
	}
	return tok, err
}

// History returns up to limit recent events, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Event, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []Event
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// do performs an HTTP request, encoding in as JSON and decoding the response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", req.URL.String())
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
