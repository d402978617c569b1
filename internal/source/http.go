package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	httpTimeout  = 20 * time.Second
	maxBodyBytes = 32 << 20
	userAgent    = "jobmate-aggregator/1.0 (+https://jobmate.app)"
)

// NewHTTPClient returns the client shared by all fetchers.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// StatusError reports a non-2xx response from a source API.
type StatusError struct {
	Source string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Source, e.Code, e.Body)
}

type apiClient struct {
	name string
	http *http.Client
}

func newAPIClient(name string, c *http.Client) *apiClient {
	if c == nil {
		c = NewHTTPClient()
	}
	return &apiClient{name: name, http: c}
}

// getJSON performs a GET against endpoint?params and decodes the body into v.
func (c *apiClient) getJSON(ctx context.Context, endpoint string, params url.Values, headers map[string]string, v any) error {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http GET %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Source: c.name, Code: resp.StatusCode, Body: snippet(body)}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s json unmarshal: %w", c.name, err)
	}
	return nil
}

func snippet(body []byte) string {
	const n = 256
	if len(body) > n {
		return string(body[:n]) + "…"
	}
	return string(body)
}
