package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/normalize"
)

// ─── Remotive ────────────────────────────────────────────────────────────────

// RemotiveFetcher reads remotive.com. The API has a limit but no offset, so
// pages are windowed client-side.
type RemotiveFetcher struct{ base }

// NewRemotiveFetcher constructs a fetcher with a shared HTTP client.
func NewRemotiveFetcher(c *http.Client) *RemotiveFetcher {
	return &RemotiveFetcher{base{
		name:      model.SourceRemotive,
		rateLimit: 2 * time.Second,
		BaseURL:   "https://remotive.com",
		client:    newAPIClient("remotive", c),
	}}
}

func (f *RemotiveFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(p.Page*p.Limit))

	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := f.client.getJSON(ctx, f.BaseURL+"/api/remote-jobs", params, nil, &resp); err != nil {
		return nil, err
	}
	return window(normalize.All(normalize.Remotive, resp.Jobs), p), nil
}

// ─── RemoteOK ────────────────────────────────────────────────────────────────

// RemoteOKFetcher reads the single remoteok.com feed and windows it.
type RemoteOKFetcher struct{ base }

// NewRemoteOKFetcher constructs a fetcher with a shared HTTP client.
func NewRemoteOKFetcher(c *http.Client) *RemoteOKFetcher {
	return &RemoteOKFetcher{base{
		name:      model.SourceRemoteOK,
		rateLimit: 2 * time.Second,
		BaseURL:   "https://remoteok.com",
		client:    newAPIClient("remoteok", c),
	}}
}

func (f *RemoteOKFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	var items []json.RawMessage
	if err := f.client.getJSON(ctx, f.BaseURL+"/api", nil, nil, &items); err != nil {
		return nil, err
	}
	// The first element is the API's legal notice; the normalizer drops it.
	return window(normalize.All(normalize.RemoteOK, items), p), nil
}

// ─── Arbeitnow ───────────────────────────────────────────────────────────────

// ArbeitnowFetcher pages arbeitnow.com natively.
type ArbeitnowFetcher struct{ base }

// NewArbeitnowFetcher constructs a fetcher with a shared HTTP client.
func NewArbeitnowFetcher(c *http.Client) *ArbeitnowFetcher {
	return &ArbeitnowFetcher{base{
		name:      model.SourceArbeitnow,
		rateLimit: time.Second,
		BaseURL:   "https://www.arbeitnow.com",
		client:    newAPIClient("arbeitnow", c),
	}}
}

// arbeitnowPageSize is fixed by the API.
const arbeitnowPageSize = 100

func (f *ArbeitnowFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	items, err := nativeWindow(ctx, p, arbeitnowPageSize, 1, func(ctx context.Context, page int) ([]json.RawMessage, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))

		var resp struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := f.client.getJSON(ctx, f.BaseURL+"/api/job-board-api", params, nil, &resp); err != nil {
			return nil, err
		}
		return resp.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return normalize.All(normalize.Arbeitnow, items), nil
}

// ─── Himalayas ───────────────────────────────────────────────────────────────

// HimalayasFetcher pages himalayas.app with limit/offset.
type HimalayasFetcher struct{ base }

// NewHimalayasFetcher constructs a fetcher with a shared HTTP client.
func NewHimalayasFetcher(c *http.Client) *HimalayasFetcher {
	return &HimalayasFetcher{base{
		name:      model.SourceHimalayas,
		rateLimit: time.Second,
		BaseURL:   "https://himalayas.app",
		client:    newAPIClient("himalayas", c),
	}}
}

func (f *HimalayasFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("offset", strconv.Itoa((p.Page-1)*p.Limit))

	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := f.client.getJSON(ctx, f.BaseURL+"/jobs/api", params, nil, &resp); err != nil {
		return nil, err
	}
	return truncate(normalize.All(normalize.Himalayas, resp.Jobs), p.Limit), nil
}

// ─── The Muse ────────────────────────────────────────────────────────────────

// TheMuseFetcher pages themuse.com; its pages are zero-based.
type TheMuseFetcher struct {
	base
	APIKey string
}

// NewTheMuseFetcher constructs a fetcher; apiKey is optional.
func NewTheMuseFetcher(c *http.Client, apiKey string) *TheMuseFetcher {
	return &TheMuseFetcher{
		base: base{
			name:      model.SourceTheMuse,
			rateLimit: time.Second,
			BaseURL:   "https://www.themuse.com",
			client:    newAPIClient("themuse", c),
		},
		APIKey: apiKey,
	}
}

// musePageSize is fixed by the API.
const musePageSize = 20

func (f *TheMuseFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	items, err := nativeWindow(ctx, p, musePageSize, 0, func(ctx context.Context, page int) ([]json.RawMessage, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("descending", "true")
		if f.APIKey != "" {
			params.Set("api_key", f.APIKey)
		}

		var resp struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := f.client.getJSON(ctx, f.BaseURL+"/api/public/jobs", params, nil, &resp); err != nil {
			return nil, err
		}
		return resp.Results, nil
	})
	if err != nil {
		return nil, err
	}
	return normalize.All(normalize.TheMuse, items), nil
}

// ─── Jobicy ──────────────────────────────────────────────────────────────────

// jobicyMaxCount is the largest count the Jobicy API serves.
const jobicyMaxCount = 100

// JobicyFetcher reads jobicy.com and windows the result.
type JobicyFetcher struct{ base }

// NewJobicyFetcher constructs a fetcher with a shared HTTP client.
func NewJobicyFetcher(c *http.Client) *JobicyFetcher {
	return &JobicyFetcher{base{
		name:      model.SourceJobicy,
		rateLimit: time.Second,
		BaseURL:   "https://jobicy.com",
		client:    newAPIClient("jobicy", c),
	}}
}

func (f *JobicyFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	offset := (p.Page - 1) * p.Limit
	if offset >= jobicyMaxCount {
		return nil, nil
	}
	params := url.Values{}
	params.Set("count", strconv.Itoa(min(p.Page*p.Limit, jobicyMaxCount)))

	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := f.client.getJSON(ctx, f.BaseURL+"/api/v2/remote-jobs", params, nil, &resp); err != nil {
		return nil, err
	}
	return window(normalize.All(normalize.Jobicy, resp.Jobs), p), nil
}

// ─── USAJobs ─────────────────────────────────────────────────────────────────

// USAJobsFetcher reads data.usajobs.gov, which requires an API key and the
// registered e-mail as User-Agent.
type USAJobsFetcher struct {
	base
	APIKey string
	Email  string
}

// NewUSAJobsFetcher constructs a fetcher with the given credentials.
func NewUSAJobsFetcher(c *http.Client, apiKey, email string) *USAJobsFetcher {
	return &USAJobsFetcher{
		base: base{
			name:      model.SourceUSAJobs,
			rateLimit: time.Second,
			BaseURL:   "https://data.usajobs.gov",
			client:    newAPIClient("usajobs", c),
		},
		APIKey: apiKey,
		Email:  email,
	}
}

func (f *USAJobsFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("usajobs: API key not configured")
	}
	params := url.Values{}
	params.Set("Page", strconv.Itoa(p.Page))
	params.Set("ResultsPerPage", strconv.Itoa(p.Limit))
	params.Set("SortField", "opendate")
	params.Set("SortDirection", "desc")

	headers := map[string]string{
		"Authorization-Key": f.APIKey,
		"User-Agent":        f.Email,
	}
	var resp struct {
		SearchResult struct {
			SearchResultItems []json.RawMessage `json:"SearchResultItems"`
		} `json:"SearchResult"`
	}
	if err := f.client.getJSON(ctx, f.BaseURL+"/api/search", params, headers, &resp); err != nil {
		return nil, err
	}
	return truncate(normalize.All(normalize.USAJobs, resp.SearchResult.SearchResultItems), p.Limit), nil
}

// ─── FindWork ────────────────────────────────────────────────────────────────

// FindWorkFetcher reads findwork.dev with token auth.
type FindWorkFetcher struct {
	base
	APIKey string
}

// NewFindWorkFetcher constructs a fetcher with the given token.
func NewFindWorkFetcher(c *http.Client, apiKey string) *FindWorkFetcher {
	return &FindWorkFetcher{
		base: base{
			name:      model.SourceFindWork,
			rateLimit: time.Second,
			BaseURL:   "https://findwork.dev",
			client:    newAPIClient("findwork", c),
		},
		APIKey: apiKey,
	}
}

// findWorkPageSize is fixed by the API.
const findWorkPageSize = 100

func (f *FindWorkFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("findwork: API key not configured")
	}
	headers := map[string]string{"Authorization": "Token " + f.APIKey}
	items, err := nativeWindow(ctx, p, findWorkPageSize, 1, func(ctx context.Context, page int) ([]json.RawMessage, error) {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("sort_by", "date")

		var resp struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := f.client.getJSON(ctx, f.BaseURL+"/api/jobs/", params, headers, &resp); err != nil {
			return nil, err
		}
		return resp.Results, nil
	})
	if err != nil {
		return nil, err
	}
	return normalize.All(normalize.FindWork, items), nil
}
