package gnucleus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/gnucleus/gnucleus-mcp/internal/telemetry"
)

const (
	DefaultPort   = 5000
	DefaultScheme = "https"

	EndpointTextToCAD = "text_to_cad"
)

// Config carries the upstream connection settings. Host and APIKey are
// required for any call; OrgID scopes requests for enterprise accounts.
type Config struct {
	Host   string
	APIKey string
	OrgID  string
	Port   int
	Scheme string
}

func (c Config) HasCredentials() bool {
	return c.Host != "" && c.APIKey != ""
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client. The http.Client has no timeout of its own; the
// caller's context carries the invocation deadline.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultScheme
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError keeps the upstream status and body of a non-2xx reply for logs.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

// EndpointURL returns the address Call posts to for endpoint.
func (c *Client) EndpointURL(endpoint string) string {
	return fmt.Sprintf("%s://%s:%d/api/%s", c.cfg.Scheme, c.cfg.Host, c.cfg.Port, endpoint)
}

// Call posts payload to the named endpoint once and returns the raw JSON
// body. Any non-nil error is a *Failure; missing credentials fail before any
// network I/O.
func (c *Client) Call(ctx context.Context, endpoint string, payload map[string]any) (json.RawMessage, error) {
	if !c.cfg.HasCredentials() {
		c.logger.Error("Missing required GNUCLEUS_HOST and GNUCLEUS_API_KEY")
		return nil, &Failure{Kind: KindConfiguration, Message: msgMissingCredentials}
	}
	if strings.TrimSpace(endpoint) == "" {
		return nil, c.unexpected("build request", fmt.Errorf("endpoint is required"))
	}

	body := make(map[string]any, len(payload)+1)
	maps.Copy(body, payload)
	if c.cfg.OrgID != "" {
		body["org_id"] = c.cfg.OrgID
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, c.unexpected("marshal body", err)
	}

	url := c.EndpointURL(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, c.unexpected("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("making API request", "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transport(endpoint, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transport(endpoint, 0, err.Error(), fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Operation: endpoint, StatusCode: resp.StatusCode, Body: string(data)}
		return nil, c.transport(endpoint, resp.StatusCode, statusDetail(resp.StatusCode, url), apiErr)
	}

	if !json.Valid(data) {
		return nil, c.unexpected("decode response", fmt.Errorf("response body is not valid JSON (%d bytes)", len(data)))
	}
	return json.RawMessage(data), nil
}

// TextToCAD asks upstream to generate a part or assembly from a prompt.
func (c *Client) TextToCAD(ctx context.Context, input string) (json.RawMessage, error) {
	return c.Call(ctx, EndpointTextToCAD, map[string]any{"input": input})
}

func (c *Client) transport(endpoint string, status int, detail string, cause error) *Failure {
	c.logger.Error("API request error", "endpoint", endpoint, "status_code", status, "err", cause)
	telemetry.IncUpstreamError(endpoint, status)
	return &Failure{
		Kind:       KindTransport,
		Message:    fmt.Sprintf(msgRequestFailedFmt, detail),
		StatusCode: status,
		Err:        cause,
	}
}

func (c *Client) unexpected(stage string, cause error) *Failure {
	c.logger.Error("unexpected error", "stage", stage, "err", cause)
	return &Failure{Kind: KindUnexpected, Message: msgUnexpected, Err: fmt.Errorf("%s: %w", stage, cause)}
}

// statusDetail describes a non-2xx reply, e.g.
// "404 Client Error: Not Found for url: https://host:5000/api/text_to_cad".
func statusDetail(code int, url string) string {
	class := "Client"
	if code >= 500 {
		class = "Server"
	}
	return fmt.Sprintf("%d %s Error: %s for url: %s", code, class, http.StatusText(code), url)
}
