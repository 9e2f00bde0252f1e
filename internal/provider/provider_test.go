package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
)

func noopTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

func TestNormalizeQueryKey(t *testing.T) {
	cases := map[string]string{
		"UNRATE":                 "unrate",
		"  Current   Rates!  ":   "current-rates",
		"what's the 30y rate?":   "what-s-the-30y-rate",
		"federal_funds rate/now": "federal-funds-rate-now",
	}
	for in, want := range cases {
		if got := NormalizeQueryKey(in); got != want {
			t.Fatalf("NormalizeQueryKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIndicatorProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("series_id") != "UNRATE" {
			t.Fatalf("unexpected series_id: %s", r.URL.Query().Get("series_id"))
		}
		if r.URL.Query().Get("api_key") != "k" {
			t.Fatalf("missing api key")
		}
		w.Write([]byte(`{"observations":[{"date":"2025-07-01","value":"4.2"}]}`))
	}))
	defer srv.Close()

	p := NewIndicatorProvider(noopTracer(), "k", 6*time.Hour)
	p.BaseURL = srv.URL

	res, err := p.Fetch(context.Background(), "UNRATE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.QueryKey != "unrate" {
		t.Fatalf("unexpected query key: %s", res.QueryKey)
	}
	if !strings.Contains(res.Digest, "unemployment rate") || !strings.Contains(res.Digest, "4.2") {
		t.Fatalf("unexpected digest: %s", res.Digest)
	}
	if res.AsOf.Format("2006-01") != "2025-07" {
		t.Fatalf("unexpected as-of: %s", res.AsOf)
	}
}

func TestIndicatorProviderFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewIndicatorProvider(noopTracer(), "k", 6*time.Hour)
	p.BaseURL = srv.URL
	if _, err := p.Fetch(context.Background(), "UNRATE"); err == nil {
		t.Fatal("expected error on 503")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[]}`))
	}))
	defer empty.Close()
	p.BaseURL = empty.URL
	if _, err := p.Fetch(context.Background(), "UNRATE"); err == nil {
		t.Fatal("expected error on empty observations")
	}
}

func TestQuoteProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SPY" {
			t.Fatalf("unexpected symbol: %s", r.URL.Query().Get("symbol"))
		}
		w.Write([]byte(`{"Global Quote":{"05. price":"512.3400","10. change percent":"-0.21%","07. latest trading day":"2025-08-29"}}`))
	}))
	defer srv.Close()

	p := NewQuoteProvider(noopTracer(), "k", 5*time.Minute)
	p.BaseURL = srv.URL

	res, err := p.Fetch(context.Background(), "spy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Digest, "SPY 512.3400") || !strings.Contains(res.Digest, "-0.21%") {
		t.Fatalf("unexpected digest: %s", res.Digest)
	}
}

func TestQuoteProviderEmptyQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Global Quote":{}}`))
	}))
	defer srv.Close()

	p := NewQuoteProvider(noopTracer(), "k", 5*time.Minute)
	p.BaseURL = srv.URL
	if _, err := p.Fetch(context.Background(), "SPY"); err == nil {
		t.Fatal("expected error for empty quote payload")
	}
}

func TestSearchProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "k" {
			t.Fatal("missing subscription token header")
		}
		if !strings.Contains(r.URL.Query().Get("q"), "mortgage") {
			t.Fatalf("unexpected query: %s", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`{"web":{"results":[
			{"title":"Mortgage rates today","description":"30-year fixed averages 6.5%"},
			{"title":"Fed holds steady","description":"No change at the last meeting"}
		]}}`))
	}))
	defer srv.Close()

	p := NewSearchProvider(noopTracer(), "k", 10*time.Minute)
	p.BaseURL = srv.URL

	res, err := p.Fetch(context.Background(), "current mortgage rates")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Digest, "6.5%") || !strings.Contains(res.Digest, " | ") {
		t.Fatalf("unexpected digest: %s", res.Digest)
	}
	if res.QueryKey != "current-mortgage-rates" {
		t.Fatalf("unexpected query key: %s", res.QueryKey)
	}
}

func TestSearchProviderTruncatesOnRuneBoundary(t *testing.T) {
	// "é" is two bytes, and the "T: " prefix is three, so the length
	// cap lands mid-rune without boundary-aware truncation.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"web": map[string]any{
				"results": []map[string]string{{"title": "T", "description": strings.Repeat("é", 150)}},
			},
		})
		w.Write(body)
	}))
	defer srv.Close()

	p := NewSearchProvider(noopTracer(), "k", 10*time.Minute)
	p.BaseURL = srv.URL

	res, err := p.Fetch(context.Background(), "rates")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !utf8.ValidString(res.Digest) {
		t.Fatalf("digest holds invalid UTF-8: %q", res.Digest)
	}
	if len(res.Digest) > maxSnippetLength {
		t.Fatalf("digest was not truncated: %d bytes", len(res.Digest))
	}
	if !strings.HasSuffix(res.Digest, "é") {
		t.Fatalf("digest must end on a whole rune: %q", res.Digest)
	}
}

func TestSearchProviderNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web":{"results":[]}}`))
	}))
	defer srv.Close()

	p := NewSearchProvider(noopTracer(), "k", 10*time.Minute)
	p.BaseURL = srv.URL
	if _, err := p.Fetch(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for empty results")
	}
}

func TestFetchRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p := NewQuoteProvider(noopTracer(), "k", 5*time.Minute)
	p.BaseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Fetch(ctx, "SPY"); err == nil {
		t.Fatal("expected timeout error from hung provider")
	}
}
