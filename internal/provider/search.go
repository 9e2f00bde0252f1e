package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"finsight/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSearchBaseURL = "https://api.search.brave.com/res/v1/web"

	maxSearchSnippets  = 3
	maxSnippetLength   = 240
	defaultSearchQuery = "current US interest rates and mortgage rates"
)

// SearchProvider adapts a web-search API for "current rate" style
// lookups that no structured feed covers. The question itself seeds
// the query, so results are cached per normalized query.
type SearchProvider struct {
	tracer trace.Tracer
	apiKey string
	ttl    time.Duration
	client *http.Client

	// BaseURL is overridable for tests.
	BaseURL string
}

func NewSearchProvider(tracer trace.Tracer, apiKey string, ttl time.Duration) *SearchProvider {
	return &SearchProvider{
		tracer:  tracer,
		apiKey:  apiKey,
		ttl:     ttl,
		client:  &http.Client{},
		BaseURL: defaultSearchBaseURL,
	}
}

func (p *SearchProvider) Name() string             { return domain.ProviderSearch }
func (p *SearchProvider) TTL() time.Duration       { return p.ttl }
func (p *SearchProvider) DefaultQueries() []string { return []string{defaultSearchQuery} }

func (p *SearchProvider) Fetch(ctx context.Context, query string) (*Result, error) {
	_, span := p.tracer.Start(ctx, "search-provider.fetch")
	defer span.End()

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprint(maxSearchSnippets))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search fetch: status %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("search decode: %w", err)
	}
	if len(payload.Web.Results) == 0 {
		return nil, fmt.Errorf("search fetch: no results")
	}

	var snippets []string
	for i, r := range payload.Web.Results {
		if i >= maxSearchSnippets {
			break
		}
		snippet := strings.TrimSpace(r.Title + ": " + r.Description)
		if len(snippet) > maxSnippetLength {
			// Back up to a rune boundary so the cut never leaves a
			// partial UTF-8 sequence in the digest.
			cut := maxSnippetLength
			for cut > 0 && !utf8.RuneStart(snippet[cut]) {
				cut--
			}
			snippet = snippet[:cut]
		}
		snippets = append(snippets, snippet)
	}

	return &Result{
		Provider: p.Name(),
		QueryKey: NormalizeQueryKey(query),
		Digest:   strings.Join(snippets, " | "),
		AsOf:     time.Now().UTC(),
	}, nil
}
