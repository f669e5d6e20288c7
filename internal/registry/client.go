package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/logging"
	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"go.uber.org/zap"
)

const (
	contentType    = "application/vnd.schemaregistry.v1+json"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 10 << 20
)

// Config configures a registry Client.
type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Retry    retry.Config

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the Confluent schema registry REST API.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
	retry      retry.Config
}

// NewClient creates a registry client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("registry url required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid registry url %q: scheme must be http or https", cfg.URL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    u,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: hc,
		retry:      cfg.Retry,
	}, nil
}

// ListSubjects returns every registered subject, sorted.
func (c *Client) ListSubjects(ctx context.Context) ([]string, error) {
	var subjects []string
	if err := c.get(ctx, "registry.list_subjects", "/subjects", &subjects); err != nil {
		return nil, err
	}
	sort.Strings(subjects)
	return subjects, nil
}

// Ping checks that the registry answers a subject listing. It makes a
// single attempt so an unreachable registry fails before any planning.
func (c *Client) Ping(ctx context.Context) error {
	var subjects json.RawMessage
	if err := c.doRequest(ctx, "/subjects", &subjects); err != nil {
		return fmt.Errorf("registry %s unreachable: %w", c.baseURL.Redacted(), err)
	}
	return nil
}

type versionResponse struct {
	Subject    string `json:"subject"`
	Version    int    `json:"version"`
	ID         int    `json:"id"`
	Schema     string `json:"schema"`
	SchemaType string `json:"schemaType"`
}

// GetSchema returns the latest version of subject. A missing schemaType
// means AVRO.
func (c *Client) GetSchema(ctx context.Context, subject string) (*Schema, error) {
	var resp versionResponse
	p := "/subjects/" + url.PathEscape(subject) + "/versions/latest"
	if err := c.get(ctx, "registry.get_schema", p, &resp); err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", subject, err)
	}

	format, err := schema.ParseFormat(resp.SchemaType)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", subject, err)
	}
	if resp.Subject == "" {
		resp.Subject = subject
	}
	return &Schema{
		Subject:    resp.Subject,
		Version:    resp.Version,
		ID:         resp.ID,
		Format:     format,
		Definition: resp.Schema,
	}, nil
}

func (c *Client) get(ctx context.Context, op, path string, out interface{}) error {
	return retry.Do(ctx, c.retry, op, func(ctx context.Context) error {
		return c.doRequest(ctx, path, out)
	})
}

func (c *Client) doRequest(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.Retryable(fmt.Errorf("registry request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return retry.Retryable(fmt.Errorf("failed to read registry response: %w", err))
	}

	logging.FromContext(ctx).Debug(ctx, "registry request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			apiErr.ErrorCode = payload.ErrorCode
			apiErr.Message = payload.Message
		}
		return retry.FromResponse(resp, apiErr)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse registry response: %w", err)
	}
	return nil
}
