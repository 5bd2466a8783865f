package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the CelesTrak element-set root.
	DefaultBaseURL = "https://celestrak.org/NORAD/elements"

	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 50 << 20
	defaultUserAgent    = "orbvision/1.0"
)

// StatusError is returned when the catalog answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Fetcher retrieves raw element-set text from the catalog service.
// One call is one GET; there is no retry.
type Fetcher struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       *slog.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithMaxBodyBytes caps the response size.
func WithMaxBodyBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewFetcher creates a Fetcher rooted at baseURL.
func NewFetcher(baseURL string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BaseURL returns the configured catalog root.
func (f *Fetcher) BaseURL() string {
	return f.baseURL
}

// URL returns the full request URL for req.
func (f *Fetcher) URL(req Request) string {
	return f.baseURL + "/" + req.Endpoint.Path() + "?" + req.Params().Encode()
}

// Fetch performs one HTTP GET and returns the raw body.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target := f.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		// Transport errors reach the caller as the client returned them.
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: target}
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", target, f.maxBodyBytes)
	}

	f.logger.Debug("catalog fetch complete",
		"component", "tle",
		"url", target,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return body, nil
}

// FetchLines fetches req and splits the body into lines.
func (f *Fetcher) FetchLines(ctx context.Context, req Request) ([]string, error) {
	body, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return SplitLines(body), nil
}
