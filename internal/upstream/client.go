// Package upstream calls the HTTP search service whose results scoutcache
// stores.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/logging"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

var (
	// ErrNoBaseURL is returned when no upstream URL is configured.
	ErrNoBaseURL = errors.New("upstream base URL is not configured")

	// ErrUpstreamStatus wraps non-2xx responses.
	ErrUpstreamStatus = errors.New("upstream returned an error status")

	// ErrInvalidPayload is returned when the response body is not JSON or
	// exceeds the size cap.
	ErrInvalidPayload = errors.New("upstream returned an invalid payload")
)

// Config holds client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client performs lookups against the upstream search endpoint.
type Client struct {
	client    *http.Client
	baseURL   *url.URL
	userAgent string
	logger    zerolog.Logger
}

// NewClient creates a client. A zero Timeout means 30 seconds.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream base URL must be http or https, got %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   base,
		userAgent: cfg.UserAgent,
		logger:    logging.ComponentLogger(logger, "upstream"),
	}, nil
}

// Lookup fetches the results for q. It has the shape of cache.LookupFunc.
func (c *Client) Lookup(ctx context.Context, q cache.Query) ([]byte, error) {
	u := *c.baseURL
	params := u.Query()
	params.Set("q", q.Text)
	params.Set("scope", q.Scope)
	params.Set("limit", strconv.Itoa(q.Limit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	c.logger.Debug().
		Str("operation", "lookup").
		Str(logging.TraceIDField, logging.TraceIDFromContext(ctx)).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("upstream lookup finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status=%d, body=%s", ErrUpstreamStatus, resp.StatusCode, truncate(body, 256))
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidPayload, maxBodyBytes)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrInvalidPayload)
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
