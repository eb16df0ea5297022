package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalefeed/internal/config"
	"whalefeed/internal/feed"
)

type feedPage struct {
	Items      []feed.Item `json:"items"`
	NextCursor *string     `json:"nextCursor"`
	SnapshotTS int64       `json:"snapshotTs"`
}

type errorBody struct {
	Error string `json:"error"`
}

func newTestServer(t *testing.T, itemCount int) *httptest.Server {
	t.Helper()

	src := feed.NewMemorySource()
	expires := time.Now().Add(24 * time.Hour).UTC()
	for i := 0; i < itemCount; i++ {
		src.Put(feed.Item{
			ID:             fmt.Sprintf("opp-%02d", i),
			Slug:           fmt.Sprintf("eth-outflow-%02d", i),
			Title:          fmt.Sprintf("ETH outflow #%d", i),
			Chain:          "ethereum",
			Asset:          "ETH",
			Direction:      "outflow",
			RankScore:      float64(100 - i),
			TrustScore:     50,
			ExpiresAt:      expires,
			TotalAmountUSD: decimal.NewFromInt(10000),
			SignalCount:    1,
			UpdatedAt:      time.Now().UTC(),
		})
	}

	cfg := &config.Config{
		Feed: config.FeedConfig{DefaultPageSize: 2, MaxPageSize: 5, OpportunityTTL: 24 * time.Hour},
	}
	mux, err := NewRouter(feed.NewPaginator(src, zerolog.Nop()), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getPage(t *testing.T, srv *httptest.Server, query string) (*http.Response, feedPage) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/feed" + query)
	if err != nil {
		t.Fatalf("GET /feed: %v", err)
	}
	defer resp.Body.Close()

	var page feedPage
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatalf("decode page: %v", err)
		}
	}
	return resp, page
}

func TestFeedPaginatesToExhaustion(t *testing.T) {
	srv := newTestServer(t, 5)

	resp, first := getPage(t, srv, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(first.Items) != 2 {
		t.Fatalf("first page items = %d, want default page size 2", len(first.Items))
	}
	if first.NextCursor == nil {
		t.Fatal("expected nextCursor on a non-final page")
	}
	if first.SnapshotTS == 0 {
		t.Fatal("expected non-zero snapshotTs")
	}

	seen := map[string]bool{}
	for _, it := range first.Items {
		seen[it.ID] = true
	}

	cursor := *first.NextCursor
	total := len(first.Items)
	for cursor != "" {
		resp, page := getPage(t, srv, "?cursor="+cursor)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if page.SnapshotTS != first.SnapshotTS {
			t.Fatalf("snapshotTs drifted: %d vs %d", page.SnapshotTS, first.SnapshotTS)
		}
		for _, it := range page.Items {
			if seen[it.ID] {
				t.Fatalf("item %s repeated across pages", it.ID)
			}
			seen[it.ID] = true
		}
		total += len(page.Items)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	if total != 5 {
		t.Fatalf("total items = %d, want 5", total)
	}
}

func TestFeedFinalPageHasNullCursor(t *testing.T) {
	srv := newTestServer(t, 1)

	resp, page := getPage(t, srv, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if page.NextCursor != nil {
		t.Fatalf("nextCursor = %q, want null on final page", *page.NextCursor)
	}
}

func TestFeedMalformedCursor(t *testing.T) {
	srv := newTestServer(t, 3)

	resp, _ := getPage(t, srv, "?cursor=%21%21%21")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFeedMalformedTuple(t *testing.T) {
	srv := newTestServer(t, 3)

	token := base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`))
	resp, err := http.Get(srv.URL + "/feed?cursor=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "MALFORMED_TUPLE" {
		t.Fatalf("error = %q, want MALFORMED_TUPLE", body.Error)
	}
}

func TestFeedErrorCodeForUndecodableCursor(t *testing.T) {
	srv := newTestServer(t, 3)

	resp, err := http.Get(srv.URL + "/feed?cursor=%3F%3F%3F")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "MALFORMED_CURSOR" {
		t.Fatalf("error = %q, want MALFORMED_CURSOR", body.Error)
	}
}

func TestFeedLimitClampedToMax(t *testing.T) {
	srv := newTestServer(t, 10)

	_, page := getPage(t, srv, "?limit=999")
	if len(page.Items) != 5 {
		t.Fatalf("items = %d, want clamp to max page size 5", len(page.Items))
	}
}

func TestFeedEmptyPoolReturnsEmptyArray(t *testing.T) {
	srv := newTestServer(t, 0)

	resp, err := http.Get(srv.URL + "/feed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["items"]) != "[]" {
		t.Fatalf("items = %s, want []", raw["items"])
	}
	if string(raw["nextCursor"]) != "null" {
		t.Fatalf("nextCursor = %s, want null", raw["nextCursor"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, 0)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestTraceHeaderAlwaysSet(t *testing.T) {
	srv := newTestServer(t, 1)

	resp, err := http.Get(srv.URL + "/feed")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Trace-Id") == "" {
		t.Fatal("expected X-Trace-Id header")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/feed", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Trace-Id"); got != "trace-123" {
		t.Fatalf("X-Trace-Id = %q, want echoed trace-123", got)
	}
}
