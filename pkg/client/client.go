package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to an agentctl server started with "agentctl serve".
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string // server root, without the /api suffix
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	// bulk calls wait out a grace period per agent
	DefaultTimeout = 2 * time.Minute
)

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// New creates a client. A broken TLS configuration is logged and the client
// falls back to the default transport settings.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
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
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// IsReachable reports whether the server answers.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.SystemInfo(ctx)
	if err != nil {
		c.logger.Debug("server unreachable", "url", c.baseURL, "error", err)
		return false
	}
	return true
}

// Status lists the dashboard-visible agents.
func (c *Client) Status(ctx context.Context) ([]AgentStatus, error) {
	var out struct {
		Agents []AgentStatus `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents/status", &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// Start starts one agent. The returned result is filled in for failures too.
func (c *Client) Start(ctx context.Context, name string) (ActionResult, error) {
	return c.action(ctx, "/api/agents/"+url.PathEscape(name)+"/start")
}

// Stop stops one agent. Stopping an agent that is not running succeeds.
func (c *Client) Stop(ctx context.Context, name string) (ActionResult, error) {
	return c.action(ctx, "/api/agents/"+url.PathEscape(name)+"/stop")
}

// Reload asks the server to re-read its configuration file.
func (c *Client) Reload(ctx context.Context) (ActionResult, error) {
	return c.action(ctx, "/api/config/reload")
}

// StartAll starts every enabled agent.
func (c *Client) StartAll(ctx context.Context) (BulkResult, error) {
	var w bulkWire
	if err := c.do(ctx, http.MethodPost, "/api/agents/start-all", &w); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Success: w.Success, Done: w.Started, Failed: w.Failed, Message: w.Message}, nil
}

// StopAll stops every running agent.
func (c *Client) StopAll(ctx context.Context) (BulkResult, error) {
	var w bulkWire
	if err := c.do(ctx, http.MethodPost, "/api/agents/stop-all", &w); err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Success: w.Success, Done: w.Stopped, Failed: w.Failed, Message: w.Message}, nil
}

// Logs returns up to n trailing lines of the agent's log.
func (c *Client) Logs(ctx context.Context, name string, n int) ([]string, error) {
	q := url.Values{}
	if n > 0 {
		q.Set("lines", strconv.Itoa(n))
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/logs/"+url.PathEscape(name), q), &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

// History returns recent lifecycle events for the agent, newest first.
func (c *Client) History(ctx context.Context, name string, limit int) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/agents/"+url.PathEscape(name)+"/history", q), &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Alerts returns the current log alerts.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var out struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/alerts", &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

// SystemInfo returns host and supervisor details.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	var out SystemInfo
	err := c.do(ctx, http.MethodGet, "/api/system/info", &out)
	return out, err
}

func (c *Client) action(ctx context.Context, path string) (ActionResult, error) {
	var out ActionResult
	err := c.do(ctx, http.MethodPost, path, &out)
	return out, err
}

// do sends the request and decodes the JSON body into out. On a non-200
// answer out is still decoded when possible and an *APIError is returned.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	decodeErr := json.Unmarshal(body, out)
	if resp.StatusCode == http.StatusOK {
		if decodeErr != nil {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &msg) == nil {
		apiErr.Message = msg.Message
	}
	c.logger.Debug("API request failed", "status", resp.StatusCode, "path", path, "message", apiErr.Message)
	return apiErr
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		// #nosec G402 explicitly requested by the operator
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	t := config.TLS
	if t == nil {
		return tlsConfig, nil
	}
	tlsConfig.InsecureSkipVerify = t.SkipVerify // #nosec G402
	tlsConfig.ServerName = t.ServerName
	if t.CACert != "" {
		pem, err := os.ReadFile(t.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA certificate %s", t.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	if t.ClientCert != "" && t.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
