// Package sapb1 implements the SAP Business One Service Layer client. The
// Service Layer is a JSON/OData HTTP API; authentication is a Login call
// that sets a session cookie consumed by every following request.
package sapb1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/galpao/wms/internal/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 2048
)

// Config holds the Service Layer connection settings.
type Config struct {
	BaseURL   string
	CompanyDB string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client talks to one Service Layer instance. Safe for concurrent use; the
// session cookie lives in the shared cookie jar.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	httpClient *http.Client
}

// StatusError reports a non-2xx Service Layer response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service layer returned status %d: %s", e.StatusCode, e.Body)
}

// Is maps a 401 to the domain sentinel so the sync layer can re-login
// without knowing the transport.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrERPUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NewClient builds a Service Layer client from config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sapb1: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("sapb1: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("sapb1: failed to create cookie jar: %w", err)
	}

	return &Client{
		cfg:     cfg,
		baseURL: base,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Login opens a Service Layer session. The B1SESSION cookie returned by the
// server is stored in the client's jar.
func (c *Client) Login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"CompanyDB": c.cfg.CompanyDB,
		"UserName":  c.cfg.Username,
		"Password":  c.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("sapb1: failed to encode login payload: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, "Login", payload)
	if err != nil {
		return fmt.Errorf("sapb1: login failed: %w", err)
	}
	return nil
}

// Logout closes the current session.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "Logout", nil); err != nil {
		return fmt.Errorf("sapb1: logout failed: %w", err)
	}
	return nil
}

// Get issues a GET against the given Service Layer path.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("sapb1: invalid path %q: %w", path, err)
	}
	endpoint := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("sapb1: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sapb1: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sapb1: failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxErrorBodySize {
			snippet = snippet[:maxErrorBodySize]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return data, nil
}
