package httpclient

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"time"

	"daybrief-backend/pkg/config"
)

// retryTransport retries idempotent provider calls on 429 and 5xx responses
// with exponential backoff. Everything else passes through untouched.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err = t.base.RoundTrip(req)
		if err == nil && !retryableStatus[resp.StatusCode] {
			return resp, nil
		}
		if attempt == t.retries {
			break
		}

		// Exhaust the response before reusing the connection.
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		wait := t.backoff * (1 << attempt)
		log.Printf("[HTTP] Retrying %s %s in %s (attempt %d/%d)", req.Method, req.URL.Path, wait, attempt+1, t.retries)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}

	return resp, err
}

// New builds the shared outbound HTTP client: request timeout plus
// backoff retries on 429/5xx, both configuration-driven.
func New(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &retryTransport{
			base:    http.DefaultTransport,
			retries: cfg.HTTPRetries,
			backoff: cfg.HTTPRetryBackoff,
		},
	}
}
