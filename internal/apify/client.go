// Package apify drives Apify-hosted scraper actors (LinkedIn, Greenhouse,
// Indeed) and tracks background dataset loads into the job store.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.apify.com"
	maxBodyBytes   = 64 << 20
)

// Actor run states reported by the Apify API.
const (
	RunReady     = "READY"
	RunRunning   = "RUNNING"
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"
	RunTimingOut = "TIMING-OUT"
	RunTimedOut  = "TIMED-OUT"
	RunAborting  = "ABORTING"
	RunAborted   = "ABORTED"
)

// Run is the subset of an actor run object the loader reads.
type Run struct {
	ID               string     `json:"id"`
	ActID            string     `json:"actId"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	UsageTotalUSD    float64    `json:"usageTotalUsd"`
}

// Finished reports whether the run has reached a final state.
func (r *Run) Finished() bool {
	switch r.Status {
	case RunSucceeded, RunFailed, RunTimedOut, RunAborted:
		return true
	}
	return false
}

// APIError is a non-2xx answer from the Apify API.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify returned %d: %s", e.Code, e.Body)
}

// Client is a minimal Apify REST v2 client.
type Client struct {
	// BaseURL is the API root; tests point it at an httptest server.
	BaseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client authenticating with token. A nil c gets a
// client with a generous timeout, since run-sync calls block while the
// actor scrapes.
func NewClient(token string, c *http.Client) *Client {
	if c == nil {
		c = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{BaseURL: defaultBaseURL, token: token, http: c}
}

// Configured reports whether an API token is set.
func (c *Client) Configured() bool { return c.token != "" }

// StartRun starts actorID with input and returns immediately.
func (c *Client) StartRun(ctx context.Context, actorID string, input any) (*Run, error) {
	var env struct {
		Data Run `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/acts/"+actorPath(actorID)+"/runs", nil, input, &env); err != nil {
		return nil, fmt.Errorf("start run %s: %w", actorID, err)
	}
	return &env.Data, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var env struct {
		Data Run `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(runID), nil, nil, &env); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &env.Data, nil
}

// DatasetItems reads one page of a dataset.
func (c *Client) DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("clean", "true")
	params.Set("format", "json")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v2/datasets/"+url.PathEscape(datasetID)+"/items", params, nil, &items); err != nil {
		return nil, fmt.Errorf("dataset %s items: %w", datasetID, err)
	}
	return items, nil
}

// RunSyncGetItems runs actorID to completion and returns its dataset items.
func (c *Client) RunSyncGetItems(ctx context.Context, actorID string, input any) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("clean", "true")
	params.Set("format", "json")

	var items []json.RawMessage
	path := "/v2/acts/" + actorPath(actorID) + "/run-sync-get-dataset-items"
	if err := c.do(ctx, http.MethodPost, path, params, input, &items); err != nil {
		return nil, fmt.Errorf("run %s: %w", actorID, err)
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, v any) error {
	reqURL := strings.TrimRight(c.BaseURL, "/") + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > 256 {
			raw = raw[:256]
		}
		return &APIError{Code: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// actorPath turns "user/actor" into the "user~actor" form the API expects.
func actorPath(actorID string) string {
	return strings.ReplaceAll(actorID, "/", "~")
}
