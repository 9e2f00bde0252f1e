package service

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finsight/internal/cache"
	"finsight/internal/domain"
	"finsight/internal/provider"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// SummaryPublisher receives refreshed market contexts, e.g. the
// websocket hub pushing them to connected clients.
type SummaryPublisher interface {
	Publish(ctx *domain.MarketContext)
}

// MarketService is the market context orchestrator: it fans out to the
// tier-allowed providers, caches per (provider, query) with
// provider-specific TTLs, and degrades per provider instead of failing
// the whole context.
type MarketService struct {
	tracer    trace.Tracer
	providers []provider.MarketProvider
	cache     *cache.MarketCache
	publisher SummaryPublisher
	timeout   time.Duration
	strict    bool

	group singleflight.Group
	now   func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	staleServes atomic.Int64
}

func NewMarketService(
	tracer trace.Tracer,
	providers []provider.MarketProvider,
	marketCache *cache.MarketCache,
	providerTimeout time.Duration,
	strict bool,
) *MarketService {
	return &MarketService{
		tracer:    tracer,
		providers: providers,
		cache:     marketCache,
		timeout:   providerTimeout,
		strict:    strict,
		now:       time.Now,
	}
}

// SetPublisher attaches a publisher for refreshed summaries. Optional.
func (s *MarketService) SetPublisher(p SummaryPublisher) { s.publisher = p }

// GetMarketContext assembles the tier-filtered market snapshot. The
// question seeds the search provider's query; other providers use
// their default queries. Starter-tier requests perform zero provider
// calls by construction.
func (s *MarketService) GetMarketContext(ctx context.Context, tier domain.Tier, question string) (*domain.MarketContext, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-market-context")
	defer span.End()

	caps := domain.CapabilitiesFor(tier)
	out := &domain.MarketContext{GeneratedAt: s.now().UTC()}
	if !caps.MarketContext {
		return out, nil
	}

	type fetchJob struct {
		p     provider.MarketProvider
		query string
	}
	var jobs []fetchJob
	for _, p := range s.providers {
		if !s.gate(caps, p.Name()) {
			continue
		}
		queries := p.DefaultQueries()
		if p.Name() == domain.ProviderSearch && question != "" {
			queries = []string{question}
		}
		for _, q := range queries {
			jobs = append(jobs, fetchJob{p: p, query: q})
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		degraded = map[string]bool{}
	)
	for _, job := range jobs {
		wg.Add(1)
		go func(job fetchJob) {
			defer wg.Done()
			res, ok := s.fetchOne(ctx, job.p, job.query, false)
			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				out.Results = append(out.Results, *res)
			}
			if !ok {
				degraded[job.p.Name()] = true
			}
		}(job)
	}
	wg.Wait()

	// Most recently fetched first; a digest's as-of date is already
	// embedded, so values from different fetches are never blended.
	sort.Slice(out.Results, func(i, j int) bool {
		return out.Results[i].FetchedAt.After(out.Results[j].FetchedAt)
	})
	for name := range degraded {
		out.Degraded = append(out.Degraded, name)
	}
	sort.Strings(out.Degraded)
	return out, nil
}

// gate is the runtime guard behind the tier gate: reaching a
// disallowed provider here is a programming error. Strict mode makes
// it loud; production degrades to skipping the provider.
func (s *MarketService) gate(caps domain.Capabilities, providerName string) bool {
	if caps.AllowsProvider(providerName) {
		return true
	}
	if s.strict {
		panic("market-service: provider " + providerName + " not permitted by tier capabilities")
	}
	return false
}

// fetchOne serves from cache when fresh, otherwise refreshes through
// singleflight so concurrent fills for the same key collapse to one
// upstream call. On refresh failure a stale entry is served flagged;
// with no stale entry the provider is reported degraded.
// The boolean reports provider health, not result presence.
func (s *MarketService) fetchOne(ctx context.Context, p provider.MarketProvider, query string, force bool) (*domain.MarketResult, bool) {
	queryKey := provider.NormalizeQueryKey(query)

	var cached *cache.Entry
	if !force {
		var err error
		cached, err = s.cache.Get(ctx, p.Name(), queryKey)
		if err != nil {
			log.Printf("market cache read %s/%s: %v", p.Name(), queryKey, err)
		}
		if cached != nil && !cached.Expired(s.now()) {
			s.hits.Add(1)
			return entryResult(cached, false), true
		}
		s.misses.Add(1)
	}

	sfKey := p.Name() + ":" + queryKey
	v, err, _ := s.group.Do(sfKey, func() (any, error) {
		if !force {
			// Another in-flight call may have refreshed while this one
			// waited on the flight group.
			if e, err := s.cache.Get(ctx, p.Name(), queryKey); err == nil && e != nil && !e.Expired(s.now()) {
				return e, nil
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		res, err := p.Fetch(fetchCtx, query)
		if err != nil {
			return nil, err
		}
		e := &cache.Entry{
			Provider:  p.Name(),
			QueryKey:  res.QueryKey,
			Digest:    res.Digest,
			AsOf:      res.AsOf,
			FetchedAt: s.now().UTC(),
			TTL:       p.TTL(),
		}
		if err := s.cache.Put(ctx, e); err != nil {
			log.Printf("market cache write %s/%s: %v", p.Name(), queryKey, err)
		}
		return e, nil
	})
	if err == nil {
		return entryResult(v.(*cache.Entry), false), true
	}

	log.Printf("market provider %s degraded for %q: %v", p.Name(), query, err)
	if cached != nil {
		s.staleServes.Add(1)
		return entryResult(cached, true), false
	}
	return nil, false
}

// RefreshAll re-queries every provider's default queries ignoring TTL.
// Driven by the background refresher, never by the request hot path.
func (s *MarketService) RefreshAll(ctx context.Context) *domain.MarketContext {
	ctx, span := s.tracer.Start(ctx, "market-service.refresh-all")
	defer span.End()

	out := &domain.MarketContext{GeneratedAt: s.now().UTC()}
	degraded := map[string]bool{}
	for _, p := range s.providers {
		for _, q := range p.DefaultQueries() {
			res, ok := s.fetchOne(ctx, p, q, true)
			if res != nil {
				out.Results = append(out.Results, *res)
			}
			if !ok {
				degraded[p.Name()] = true
			}
		}
	}
	for name := range degraded {
		out.Degraded = append(out.Degraded, name)
	}
	sort.Strings(out.Degraded)

	if s.publisher != nil && len(out.Results) > 0 {
		s.publisher.Publish(out)
	}
	return out
}

// Invalidate evicts one provider's entries, or all when name is empty.
func (s *MarketService) Invalidate(ctx context.Context, providerName string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.invalidate")
	defer span.End()

	return s.cache.Invalidate(ctx, providerName)
}

func (s *MarketService) Stats(ctx context.Context) (*domain.CacheStats, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.stats")
	defer span.End()

	byProvider, err := s.cache.CountByProvider(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byProvider {
		total += n
	}
	return &domain.CacheStats{
		Entries:     total,
		ByProvider:  byProvider,
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		StaleServes: s.staleServes.Load(),
	}, nil
}

// Summarize renders a market context into the short digest block that
// goes into the prompt, bounding prompt size regardless of how many
// providers contributed.
func Summarize(mc *domain.MarketContext) string {
	if mc == nil || len(mc.Results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range mc.Results {
		b.WriteString("- ")
		b.WriteString(r.Digest)
		if r.Stale {
			b.WriteString(" [stale, fetched ")
			b.WriteString(r.FetchedAt.Format("2006-01-02 15:04"))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func entryResult(e *cache.Entry, stale bool) *domain.MarketResult {
	return &domain.MarketResult{
		Provider:  e.Provider,
		QueryKey:  e.QueryKey,
		Digest:    e.Digest,
		AsOf:      e.AsOf,
		FetchedAt: e.FetchedAt,
		Stale:     stale,
	}
}
