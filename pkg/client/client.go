package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with a steward daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	// BaseURL is the server root including any base path, without /api.
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// DefaultTLSConfig returns default TLS client configuration
func DefaultTLSConfig() Config {
	return Config{
		BaseURL: "https://localhost:8080",
		Timeout: 10 * time.Second,
		TLS: &TLSClientConfig{
			Enabled: true,
		},
	}
}

// InsecureConfig returns insecure client configuration (skip TLS verification)
func InsecureConfig() Config {
	return Config{
		BaseURL:  "https://localhost:8080",
		Timeout:  10 * time.Second,
		Insecure: true,
	}
}

// New creates a new steward API client with TLS support
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
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
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Start brings the named service to running.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.command(ctx, "start", name)
}

// Stop stops the named service. Stopping a stopped service succeeds.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.command(ctx, "stop", name)
}

// Restart stops and starts the named service.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.command(ctx, "restart", name)
}

// Cleanup terminates whatever orphaned process holds the service's port and
// settles the record at stopped.
func (c *Client) Cleanup(ctx context.Context, name string) error {
	return c.command(ctx, "cleanup", name)
}

// StartAll starts every enabled service; kind ("mcp" or "agent") filters,
// empty means all.
func (c *Client) StartAll(ctx context.Context, kind string) error {
	return c.bulkCommand(ctx, "start-all", kind)
}

// StopAll stops every service; kind filters, empty means all.
func (c *Client) StopAll(ctx context.Context, kind string) error {
	return c.bulkCommand(ctx, "stop-all", kind)
}

// Status returns the stored record for one service.
func (c *Client) Status(ctx context.Context, name string) (ServiceStatus, error) {
	var st ServiceStatus
	q := url.Values{"name": {name}}
	err := c.getJSON(ctx, "/api/status?"+q.Encode(), &st)
	return st, err
}

// StatusAll returns the stored records for every service; kind filters,
// empty means all.
func (c *Client) StatusAll(ctx context.Context, kind string) ([]ServiceStatus, error) {
	path := "/api/status"
	if kind != "" {
		path += "?" + url.Values{"kind": {kind}}.Encode()
	}
	var sts []ServiceStatus
	err := c.getJSON(ctx, path, &sts)
	return sts, err
}

// Health runs a health check and returns the classification.
func (c *Client) Health(ctx context.Context, name string) (HealthStatus, error) {
	var hs HealthStatus
	q := url.Values{"name": {name}}
	err := c.getJSON(ctx, "/api/health?"+q.Encode(), &hs)
	return hs, err
}

// Validate re-checks a service's static configuration on the daemon.
func (c *Client) Validate(ctx context.Context, name string) (ValidateResult, error) {
	var vr ValidateResult
	q := url.Values{"name": {name}}
	err := c.getJSON(ctx, "/api/validate?"+q.Encode(), &vr)
	return vr, err
}

// Reconcile triggers one corrective pass over every service.
func (c *Client) Reconcile(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/reconcile")
}

func (c *Client) command(ctx context.Context, op, name string) error {
	c.logger.Debug("Service command", "op", op, "name", name)
	q := url.Values{"name": {name}}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/"+op+"?"+q.Encode())
}

func (c *Client) bulkCommand(ctx context.Context, op, kind string) error {
	c.logger.Debug("Bulk service command", "op", op, "kind", kind)
	u := c.baseURL + "/api/" + op
	if kind != "" {
		u += "?" + url.Values{"kind": {kind}}.Encode()
	}
	return c.doRequest(ctx, http.MethodPost, u)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig.RootCAs = caCertPool
	return nil
}

// doRequest performs an HTTP request whose only interesting payload is an
// eventual error body.
func (c *Client) doRequest(ctx context.Context, method, url string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.handleErrorResponse(resp)
}

// getJSON performs a GET and decodes a successful response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", c.baseURL+path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
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
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
