// Package fetch performs single bounded-time HTTP GETs of product pages.
// One long-lived *http.Client is shared by all calls; there is no retry
// policy here, a failed page is simply retried on the next cycle.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Defaults used when the corresponding Fetcher field is zero.
const (
	DefaultTimeout      = 20 * time.Second
	DefaultUserAgent    = "PriceWatcherBot/0.1 (respect robots; personal use)"
	DefaultMaxBodyBytes = 8 << 20
)

// ErrBodyTooLarge is wrapped by a FetchError when the response exceeds the
// configured body cap.
var ErrBodyTooLarge = errors.New("response body too large")

// FetchError reports a failed fetch: non-2xx status, timeout, DNS or
// connection failure, or a malformed URL. StatusCode is 0 when no response
// was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewClient returns an HTTP client with the given overall timeout and an
// OpenTelemetry-instrumented transport.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Fetcher fetches page bodies with a shared client and identifying
// User-Agent.
type Fetcher struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
}

// New builds a Fetcher around client. A nil client gets NewClient(DefaultTimeout).
func New(client *http.Client, userAgent string, maxBodyBytes int64) *Fetcher {
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Fetcher{Client: client, UserAgent: userAgent, MaxBodyBytes: maxBodyBytes}
}

// Fetch issues one GET for url and returns the body of any 2xx response.
// Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: 0, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &FetchError{URL: url, Err: ErrBodyTooLarge}
	}
	return body, nil
}
