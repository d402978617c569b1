package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"jobmate/aggregator-service/internal/apify"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/source"
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func ids(jobs []model.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ExternalID
	}
	return out
}

func sameIDs(got []model.Job, want ...string) bool {
	return strings.Join(ids(got), ",") == strings.Join(want, ",")
}

// ── Registry ───────────────────────────────────────────────────────────────

func TestRegistry_OrderAndReplace(t *testing.T) {
	first := source.NewRemotiveFetcher(nil)
	r := source.NewRegistry(first, source.NewRemoteOKFetcher(nil), source.NewJobicyFetcher(nil))

	replacement := source.NewRemotiveFetcher(nil)
	replacement.BaseURL = "http://replacement"
	r.Register(replacement)

	names := r.Names()
	want := []model.Source{model.SourceRemotive, model.SourceRemoteOK, model.SourceJobicy}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	got, err := r.Get(model.SourceRemotive)
	if err != nil {
		t.Fatal(err)
	}
	if got != source.Fetcher(replacement) {
		t.Error("Register should replace the fetcher with the same name")
	}
}

func TestRegistry_UnknownSource(t *testing.T) {
	r := source.NewRegistry()
	_, err := r.Get("monster")
	if !errors.Is(err, source.ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
}

// ── Client-side windowing ──────────────────────────────────────────────────

func TestRemotive_WindowsFullList(t *testing.T) {
	var gotLimit string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		var jobs []string
		for i := 1; i <= 5; i++ {
			jobs = append(jobs, fmt.Sprintf(`{"id": %d, "title": "Job %d", "company_name": "Co"}`, i, i))
		}
		io.WriteString(w, `{"jobs": [`+strings.Join(jobs, ",")+`]}`)
	})
	f := source.NewRemotiveFetcher(srv.Client())
	f.BaseURL = srv.URL

	jobs, err := f.Fetch(context.Background(), model.FetchParams{Page: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if gotLimit != "4" {
		t.Errorf("limit param = %s, want 4", gotLimit)
	}
	if !sameIDs(jobs, "3", "4") {
		t.Errorf("page 2 ids = %v, want [3 4]", ids(jobs))
	}

	jobs, _ = f.Fetch(context.Background(), model.FetchParams{Page: 4, Limit: 2})
	if len(jobs) != 0 {
		t.Errorf("page past the end returned %v", ids(jobs))
	}
}

func TestRemoteOK_DropsLegalNotice(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"legal": "API Terms of Service"},
			{"id": "101", "position": "Backend Engineer", "company": "Initech", "epoch": 1700000000}
		]`)
	})
	f := source.NewRemoteOKFetcher(srv.Client())
	f.BaseURL = srv.URL

	jobs, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !sameIDs(jobs, "101") {
		t.Errorf("ids = %v, want [101]", ids(jobs))
	}
}

// ── Fixed-size native pages ────────────────────────────────────────────────

func TestTheMuse_MapsWindowOntoFixedPages(t *testing.T) {
	var mu sync.Mutex
	var pages []string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		mu.Lock()
		pages = append(pages, strconv.Itoa(page))
		mu.Unlock()

		// 25 results in total, 20 per page.
		var items []string
		for i := page * 20; i < min((page+1)*20, 25); i++ {
			items = append(items, fmt.Sprintf(`{"id": %d, "name": "Job %d", "company": {"name": "Co"}}`, i, i))
		}
		io.WriteString(w, `{"results": [`+strings.Join(items, ",")+`]}`)
	})
	f := source.NewTheMuseFetcher(srv.Client(), "")
	f.BaseURL = srv.URL

	jobs, err := f.Fetch(context.Background(), model.FetchParams{Page: 2, Limit: 15})
	if err != nil {
		t.Fatal(err)
	}
	want := make([]string, 0, 10)
	for i := 15; i < 25; i++ {
		want = append(want, strconv.Itoa(i))
	}
	if !sameIDs(jobs, want...) {
		t.Errorf("ids = %v, want %v", ids(jobs), want)
	}
	if strings.Join(pages, ",") != "0,1" {
		t.Errorf("requested pages %v, want [0 1]", pages)
	}
}

func TestTheMuse_ThrottlesBetweenNativePages(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("get " + r.URL.Query().Get("page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		items := make([]string, 20)
		for i := range items {
			id := page*20 + i
			items[i] = fmt.Sprintf(`{"id": %d, "name": "Job %d", "company": {"name": "Co"}}`, id, id)
		}
		io.WriteString(w, `{"results": [`+strings.Join(items, ",")+`]}`)
	})
	f := source.NewTheMuseFetcher(srv.Client(), "")
	f.BaseURL = srv.URL

	p := model.FetchParams{Page: 1, Limit: 60, Wait: func(context.Context) error {
		record("wait")
		return nil
	}}
	jobs, err := f.Fetch(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 60 {
		t.Fatalf("got %d jobs, want 60", len(jobs))
	}
	want := "get 0,wait,get 1,wait,get 2"
	if got := strings.Join(events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestNativeWindow_ThrottleErrorStopsPaging(t *testing.T) {
	var calls int
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		items := make([]string, 100)
		for i := range items {
			items[i] = fmt.Sprintf(`{"slug": "job-%d", "title": "Job", "company_name": "Co"}`, i)
		}
		io.WriteString(w, `{"data": [`+strings.Join(items, ",")+`]}`)
	})
	f := source.NewArbeitnowFetcher(srv.Client())
	f.BaseURL = srv.URL

	// Offset 50 straddles native pages 1 and 2.
	p := model.FetchParams{Page: 2, Limit: 50, Wait: func(ctx context.Context) error {
		return context.Canceled
	}}
	if _, err := f.Fetch(context.Background(), p); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d requests, want 1", calls)
	}
}

// ── Credentials and errors ─────────────────────────────────────────────────

func TestUSAJobs_SendsCredentialHeaders(t *testing.T) {
	var key, ua string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Authorization-Key")
		ua = r.Header.Get("User-Agent")
		io.WriteString(w, `{"SearchResult": {"SearchResultItems": []}}`)
	})
	f := source.NewUSAJobsFetcher(srv.Client(), "secret", "ops@example.com")
	f.BaseURL = srv.URL

	if _, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 10}); err != nil {
		t.Fatal(err)
	}
	if key != "secret" || ua != "ops@example.com" {
		t.Errorf("headers = (%q, %q), want (secret, ops@example.com)", key, ua)
	}
}

func TestKeyedSources_RequireKey(t *testing.T) {
	fetchers := []source.Fetcher{
		source.NewUSAJobsFetcher(nil, "", ""),
		source.NewFindWorkFetcher(nil, ""),
	}
	for _, f := range fetchers {
		if _, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 10}); err == nil {
			t.Errorf("%s: expected error without API key", f.Name())
		}
	}
}

func TestStatusError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	f := source.NewHimalayasFetcher(srv.Client())
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 10})
	var se *source.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests || se.Source != "himalayas" {
		t.Errorf("StatusError = %+v", se)
	}
}

// ── Apify-backed sources ───────────────────────────────────────────────────

func TestApifyFetcher_OneRunPerSync(t *testing.T) {
	var (
		runs  int
		input map[string]any
	)
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/acts/misceres~indeed-scraper/run-sync-get-dataset-items" {
			http.NotFound(w, r)
			return
		}
		runs++
		json.NewDecoder(r.Body).Decode(&input)
		io.WriteString(w, `[
			{"id": "a", "positionName": "Go Dev", "company": "Acme"},
			{"id": "b", "positionName": "Rust Dev", "company": "Acme"},
			{"id": "c", "positionName": "SRE", "company": "Acme"},
			{"id": "d", "positionName": "DBA", "company": "Acme"}
		]`)
	})
	client := apify.NewClient("tok", srv.Client())
	client.BaseURL = srv.URL

	f, err := source.NewApifyFetcher(client, "indeed", apify.Query{Keywords: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() != model.SourceIndeed {
		t.Errorf("Name = %s, want indeed", f.Name())
	}

	jobs, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !sameIDs(jobs, "a", "b", "c") {
		t.Errorf("ids = %v, want [a b c]", ids(jobs))
	}
	if input["maxItems"] != float64(3) || input["position"] != "go" {
		t.Errorf("actor input = %v", input)
	}

	// Later pages never start another billed run.
	jobs, err = f.Fetch(context.Background(), model.FetchParams{Page: 2, Limit: 3})
	if err != nil || len(jobs) != 0 {
		t.Errorf("page 2 = %v, %v; want empty", ids(jobs), err)
	}
	if runs != 1 {
		t.Errorf("actor runs = %d, want 1", runs)
	}
}

func TestApifyFetcher_Errors(t *testing.T) {
	if _, err := source.NewApifyFetcher(apify.NewClient("tok", nil), "monster", apify.Query{}); !errors.Is(err, apify.ErrUnknownActor) {
		t.Errorf("err = %v, want ErrUnknownActor", err)
	}

	f, _ := source.NewApifyFetcher(apify.NewClient("", nil), "linkedin", apify.Query{})
	if _, err := f.Fetch(context.Background(), model.FetchParams{Page: 1, Limit: 10}); err == nil {
		t.Error("expected error without an Apify token")
	}
}
