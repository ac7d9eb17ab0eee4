// Package evidence implements the external sources consulted by the research
// pipeline. Every provider returns an empty payload, not an error, when the
// source answered but knew nothing about the company.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "company-research-agent/1.0 (+https://github.com/ncolesummers/company-research-agent)"

// ErrMissingAPIKey is returned by providers that need a key and have none
var ErrMissingAPIKey = errors.New("api key not configured")

// StatusError reports a non 2xx answer from an upstream API
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 20 * time.Second}
}

// retryDelays is the backoff used when an upstream answers 429
var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// do sends the request built by newReq, retrying while the upstream
// rate limits us. The caller owns the response body.
func do(ctx context.Context, client *http.Client, provider string, newReq func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to build request: %w", provider, err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: request failed: %w", provider, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= len(retryDelays) {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode}
			}
			return resp, nil
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}
}

func getJSON(ctx context.Context, client *http.Client, provider, url string, out interface{}) error {
	resp, err := do(ctx, client, provider, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", provider, err)
	}
	return nil
}
