package authority

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultNewSessionPath is the canonical credential validation endpoint.
	DefaultNewSessionPath = "/validateNewSession"
	// DefaultExistingSessionPath is the canonical token validation endpoint.
	DefaultExistingSessionPath = "/validateExistingSession"

	defaultTimeout  = 10 * time.Second
	maxResponseSize = 64 << 10
)

// Config holds the client settings.
type Config struct {
	BaseURL             string
	NewSessionPath      string
	ExistingSessionPath string
	Timeout             time.Duration
	Schema              Schema
	// HTTPClient is shared across requests. A client with no timeout is
	// still bounded by Timeout through the request context.
	HTTPClient *http.Client
}

// Client calls the remote authority. It is safe for concurrent use.
type Client struct {
	http        *http.Client
	schema      Schema
	timeout     time.Duration
	newURL      string
	existingURL string
}

// New validates cfg and returns a ready [Client].
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url scheme must be http or https", ErrInvalidConfig)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("%w: base url host is empty", ErrInvalidConfig)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must be >= 0", ErrInvalidConfig)
	}
	if cfg.Schema == "" {
		cfg.Schema = SchemaCanonical
	}
	if !cfg.Schema.Valid() {
		return nil, fmt.Errorf("%w: unknown schema %q", ErrInvalidConfig, cfg.Schema)
	}
	if cfg.NewSessionPath == "" {
		cfg.NewSessionPath = DefaultNewSessionPath
	}
	if cfg.ExistingSessionPath == "" {
		cfg.ExistingSessionPath = DefaultExistingSessionPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		http:        cfg.HTTPClient,
		schema:      cfg.Schema,
		timeout:     cfg.Timeout,
		newURL:      joinURL(base, cfg.NewSessionPath),
		existingURL: joinURL(base, cfg.ExistingSessionPath),
	}, nil
}

func joinURL(base *url.URL, path string) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// ValidateNewLogin sends the credential to the new-session endpoint.
func (c *Client) ValidateNewLogin(ctx context.Context, cred Credential) (*ValidationResult, error) {
	body, err := c.schema.EncodeCredential(cred)
	if err != nil {
		return nil, fmt.Errorf("%w: encode credential: %v", ErrUnavailable, err)
	}

	return c.do(ctx, c.newURL, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
	}, body)
}

// ValidateExistingToken presents token as a bearer credential to the
// existing-session endpoint.
func (c *Client) ValidateExistingToken(ctx context.Context, token string) (*ValidationResult, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrRejected)
	}

	return c.do(ctx, c.existingURL, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}, nil)
}

func (c *Client) do(ctx context.Context, target string, decorate func(*http.Request), body []byte) (*ValidationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResult, maxResponseSize)
	}

	return c.schema.DecodeResult(data)
}

// redactURLError keeps the underlying cause but drops the request URL, which
// is noise in logs and may carry deployment details.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
