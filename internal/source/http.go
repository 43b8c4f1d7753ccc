package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// DefaultBodyLimit bounds every upstream response body unless a caller
// asks for a different cap.
const DefaultBodyLimit = 10 << 20

var errBodyTooLarge = errors.New("response body exceeds limit")

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// HTTPGetter performs upstream GETs through a retry policy. Bodies are read
// inside the retried call so discarded attempts never leak a connection.
type HTTPGetter struct {
	client    *http.Client
	executor  failsafe.Executor[*Response]
	userAgent string
}

func NewHTTPGetter(client *http.Client, userAgent string, retry RetryConfig) *HTTPGetter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	policy := retrypolicy.NewBuilder[*Response]().
		WithBackoff(retry.BaseDelay, retry.MaxDelay).
		WithMaxRetries(retry.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()

	return &HTTPGetter{
		client:    client,
		executor:  failsafe.With[*Response](policy),
		userAgent: userAgent,
	}
}

// Get fetches url and fails on any non-2xx status. limit caps the body size;
// zero means DefaultBodyLimit.
func (g *HTTPGetter) Get(ctx context.Context, url string, accept string, limit int64) (*Response, error) {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}

	resp, err := g.executor.WithContext(ctx).Get(func() (*Response, error) {
		return g.do(ctx, url, accept, limit)
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", redact(url), resp.Status)
	}
	return resp, nil
}

func (g *HTTPGetter) do(ctx context.Context, url string, accept string, limit int64) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		var urlErr *neturl.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("GET %s: %w", redact(url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func shouldRetry(resp *Response, err error) bool {
	if err != nil {
		return !errors.Is(err, errBodyTooLarge) && !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return true
	}
	switch resp.Status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// redact hides the API key carried in upstream query strings.
func redact(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("api_key") {
		return raw
	}
	q.Set("api_key", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
