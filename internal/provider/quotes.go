package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finsight/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const defaultQuotesBaseURL = "https://www.alphavantage.co"

// Broad-market ETFs as a default pulse of the equity market.
var defaultQuoteSymbols = []string{"SPY", "QQQ", "DIA"}

// QuoteProvider adapts an Alpha-Vantage-style quote API.
type QuoteProvider struct {
	tracer trace.Tracer
	apiKey string
	ttl    time.Duration
	client *http.Client

	// BaseURL is overridable for tests.
	BaseURL string
}

func NewQuoteProvider(tracer trace.Tracer, apiKey string, ttl time.Duration) *QuoteProvider {
	return &QuoteProvider{
		tracer:  tracer,
		apiKey:  apiKey,
		ttl:     ttl,
		client:  &http.Client{},
		BaseURL: defaultQuotesBaseURL,
	}
}

func (p *QuoteProvider) Name() string             { return domain.ProviderQuotes }
func (p *QuoteProvider) TTL() time.Duration       { return p.ttl }
func (p *QuoteProvider) DefaultQueries() []string { return defaultQuoteSymbols }

func (p *QuoteProvider) Fetch(ctx context.Context, query string) (*Result, error) {
	_, span := p.tracer.Start(ctx, "quote-provider.fetch")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(query))

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.BaseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote fetch %s: status %d", symbol, resp.StatusCode)
	}

	// Alpha Vantage keys carry ordinal prefixes ("05. price"), so the
	// payload is decoded as a loose map rather than a struct.
	var payload struct {
		Quote map[string]string `json:"Global Quote"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("quote decode %s: %w", symbol, err)
	}

	price := payload.Quote["05. price"]
	changePct := payload.Quote["10. change percent"]
	day := payload.Quote["07. latest trading day"]
	if price == "" || day == "" {
		return nil, fmt.Errorf("quote fetch %s: empty quote", symbol)
	}

	asOf, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil, fmt.Errorf("quote fetch %s: bad trading day %q", symbol, day)
	}

	digest := fmt.Sprintf("%s %s", symbol, price)
	if changePct != "" {
		digest += fmt.Sprintf(" (%s)", changePct)
	}

	return &Result{
		Provider: p.Name(),
		QueryKey: NormalizeQueryKey(symbol),
		Digest:   digest,
		AsOf:     asOf,
	}, nil
}
