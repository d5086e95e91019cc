package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// BaseAdapter carries the HTTP plumbing shared by all provider adapters.
type BaseAdapter struct {
	APIKey         string
	BaseURL        string
	DefaultHeaders map[string]string
	HTTPClient     *http.Client
}

// NewBaseAdapter builds a BaseAdapter with a timeout-bounded HTTP client.
func NewBaseAdapter(apiKey, baseURL string, timeout time.Duration) *BaseAdapter {
	return &BaseAdapter{
		APIKey:         apiKey,
		BaseURL:        baseURL,
		DefaultHeaders: map[string]string{},
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

// DoRequest JSON-encodes body and POSTs it to BaseURL+path. Transport
// failures come back as NetworkError or RequestTimeoutError; the caller
// maps non-2xx statuses via DecodeError.
func (b *BaseAdapter) DoRequest(ctx context.Context, path string, body any, headers map[string]string) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "encoding request body", Cause: err}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "creating request", Cause: err}}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.DefaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
		}
		return nil, &NetworkError{SDKError: SDKError{Message: "executing request", Cause: err}}
	}
	return resp, nil
}

// DecodeError turns a non-2xx response into the matching typed error and
// drains the body into it for diagnostics.
func (b *BaseAdapter) DecodeError(resp *http.Response, provider string, body []byte) error {
	var retryAfter *float64
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			retryAfter = &secs
		}
	}
	msg := fmt.Sprintf("%s returned status %d", provider, resp.StatusCode)
	return ErrorFromStatusCode(resp.StatusCode, msg, provider, body, retryAfter)
}
