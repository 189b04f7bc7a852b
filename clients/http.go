package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"

	"github.com/vitwit/checkout/types"
)

const maxBodySize = 1 << 20

// Fetcher performs JSON GET requests against the read APIs. Transient
// failures are retried a bounded number of times inside one call; callers
// own any longer schedule.
type Fetcher struct {
	client   *http.Client
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

// NewFetcher builds a Fetcher with the given per-request timeout and attempt
// count.
func NewFetcher(timeout time.Duration, attempts uint) *Fetcher {
	if attempts == 0 {
		attempts = 1
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		delay:    200 * time.Millisecond,
		now:      time.Now,
	}
}

// WithHTTPClient replaces the underlying http client.
func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

// retryable reports whether a failed attempt is worth repeating. Malformed
// bodies and client errors other than 429 are final.
func retryable(err error) bool {
	switch e := err.(type) {
	case statusError:
		return e.code == http.StatusTooManyRequests || e.code >= 500
	case permanentError:
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// GetJSON fetches rawURL and decodes the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	err := retry.Do(
		func() error {
			return f.getOnce(ctx, rawURL, out)
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return types.NewError(types.ErrCodeExternalAPIUnavailable, "request failed", err)
	}
	return nil
}

// GetText fetches rawURL and returns the body as a string.
func (f *Fetcher) GetText(ctx context.Context, rawURL string) (string, error) {
	var body string
	err := retry.Do(
		func() error {
			b, err := f.do(ctx, rawURL)
			if err != nil {
				return err
			}
			body = string(b)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return "", types.NewError(types.ErrCodeExternalAPIUnavailable, "request failed", err)
	}
	return body, nil
}

func (f *Fetcher) getOnce(ctx context.Context, rawURL string, out any) error {
	b, err := f.do(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return permanentError{err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, permanentError{err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// CacheBusted appends a millisecond timestamp parameter "_" to rawURL.
func (f *Fetcher) CacheBusted(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(f.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
