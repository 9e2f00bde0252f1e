package job

import (
	"context"
	"log"
	"time"

	"finsight/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// MarketRefresher periodically re-queries every market provider so the
// cache stays warm and websocket clients see fresh summaries. Request
// handling never waits on it.
type MarketRefresher struct {
	tracer   trace.Tracer
	market   MarketRefreshService
	sessions SessionSweeper
	interval time.Duration
}

type MarketRefreshService interface {
	RefreshAll(ctx context.Context) *domain.MarketContext
}

// SessionSweeper evicts idle token-vault sessions.
type SessionSweeper interface {
	Sweep() int
}

func NewMarketRefresher(tracer trace.Tracer, market MarketRefreshService, sessions SessionSweeper, interval time.Duration) *MarketRefresher {
	return &MarketRefresher{
		tracer:   tracer,
		market:   market,
		sessions: sessions,
		interval: interval,
	}
}

// Start launches the refresh and sweep loops. Blocks until ctx is cancelled.
func (r *MarketRefresher) Start(ctx context.Context) {
	if r.market == nil {
		log.Println("Market refresher disabled: no market service")
		<-ctx.Done()
		return
	}

	log.Println("Market refresher starting...")
	go r.pollRefresh(ctx)
	go r.pollSweep(ctx)

	<-ctx.Done()
	log.Println("Market refresher stopped")
}

func (r *MarketRefresher) pollRefresh(ctx context.Context) {
	r.refreshOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}

func (r *MarketRefresher) refreshOnce(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "market-refresher.refresh")
	defer span.End()

	mc := r.market.RefreshAll(ctx)
	if len(mc.Degraded) > 0 {
		log.Printf("market refresh completed with degraded providers: %v", mc.Degraded)
	}
}

func (r *MarketRefresher) pollSweep(ctx context.Context) {
	if r.sessions == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sessions.Sweep(); n > 0 {
				log.Printf("swept %d idle vault sessions", n)
			}
		}
	}
}
