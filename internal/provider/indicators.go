package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"finsight/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const defaultIndicatorsBaseURL = "https://api.stlouisfed.org/fred"

// Economic series worth surfacing by default. Slow-moving data, so the
// TTL is hours, not minutes.
var defaultIndicatorSeries = []string{"UNRATE", "CPIAUCSL", "FEDFUNDS", "MORTGAGE30US"}

var indicatorLabels = map[string]string{
	"UNRATE":       "unemployment rate",
	"CPIAUCSL":     "CPI (all urban consumers)",
	"FEDFUNDS":     "federal funds rate",
	"MORTGAGE30US": "30-year fixed mortgage rate",
}

// IndicatorProvider adapts a FRED-style economic data API.
type IndicatorProvider struct {
	tracer trace.Tracer
	apiKey string
	ttl    time.Duration
	client *http.Client

	// BaseURL is overridable for tests.
	BaseURL string
}

func NewIndicatorProvider(tracer trace.Tracer, apiKey string, ttl time.Duration) *IndicatorProvider {
	return &IndicatorProvider{
		tracer:  tracer,
		apiKey:  apiKey,
		ttl:     ttl,
		client:  &http.Client{},
		BaseURL: defaultIndicatorsBaseURL,
	}
}

func (p *IndicatorProvider) Name() string             { return domain.ProviderIndicators }
func (p *IndicatorProvider) TTL() time.Duration       { return p.ttl }
func (p *IndicatorProvider) DefaultQueries() []string { return defaultIndicatorSeries }

func (p *IndicatorProvider) Fetch(ctx context.Context, query string) (*Result, error) {
	_, span := p.tracer.Start(ctx, "indicator-provider.fetch")
	defer span.End()

	params := url.Values{}
	params.Set("series_id", query)
	params.Set("api_key", p.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.BaseURL+"/series/observations?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indicators fetch %s: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indicators fetch %s: status %d", query, resp.StatusCode)
	}

	var payload struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("indicators decode %s: %w", query, err)
	}
	if len(payload.Observations) == 0 {
		return nil, fmt.Errorf("indicators fetch %s: no observations", query)
	}

	obs := payload.Observations[0]
	asOf, err := time.Parse("2006-01-02", obs.Date)
	if err != nil {
		return nil, fmt.Errorf("indicators fetch %s: bad observation date %q", query, obs.Date)
	}

	label := indicatorLabels[query]
	if label == "" {
		label = query
	}

	return &Result{
		Provider: p.Name(),
		QueryKey: NormalizeQueryKey(query),
		Digest:   fmt.Sprintf("%s: %s (as of %s)", label, obs.Value, asOf.Format("2006-01")),
		AsOf:     asOf,
	}, nil
}
