package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpTarget POSTs or PUTs to a URL with retry and exponential backoff.
type httpTarget struct {
	endpoint   string
	username   string
	password   string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

func newHTTPTarget(u *url.URL, secure bool) *httpTarget {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	endpoint := url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}

	t := &httpTarget{
		endpoint:   endpoint.String(),
		client:     &http.Client{Timeout: 5 * time.Minute},
		maxRetries: 2,
		backoff:    time.Second,
	}
	if u.User != nil {
		t.username = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t
}

// do sends the request built by newBody, retrying on transport errors and
// non-2xx responses. newBody is called once per attempt.
func (t *httpTarget) do(ctx context.Context, method string, header http.Header, newBody func() (io.ReadCloser, error)) error {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			wait := t.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		body, err := newBody()
		if err != nil {
			return fmt.Errorf("failed to build request body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.endpoint, body)
		if err != nil {
			body.Close()
			return fmt.Errorf("failed to create request: %w", err)
		}
		for key, values := range header {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		if t.username != "" || t.password != "" {
			req.SetBasicAuth(t.username, t.password)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	return fmt.Errorf("delivery failed: %w", lastErr)
}
