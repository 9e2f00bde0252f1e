package handler

import (
	"net/http"
	"strings"

	"finsight/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetMarketContext godoc
// @Summary      Get the tier-filtered market context
// @Description  Returns cached provider digests allowed for the given tier
// @Tags         market
// @Produce      json
// @Param        tier      query  string  true   "Subscription tier (starter, standard, premium)"
// @Param        question  query  string  false  "Question text seeding the search provider"
// @Success      200  {object}  domain.MarketContext
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/market-context [get]
func (h *Handler) GetMarketContext(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-market-context")
	defer span.End()

	tier := domain.Tier(strings.ToLower(strings.TrimSpace(c.Query("tier"))))
	if !tier.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be one of starter, standard, premium"})
		return
	}
	span.SetAttributes(attribute.String("tier", string(tier)))

	mc, err := h.marketService.GetMarketContext(ctx, tier, strings.TrimSpace(c.Query("question")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, mc)
}

// RefreshMarketContext godoc
// @Summary      Force-refresh all market providers
// @Description  Re-queries every provider's default queries ignoring TTLs
// @Tags         market
// @Produce      json
// @Success      200  {object}  domain.MarketContext
// @Failure      503  {object}  map[string]string
// @Router       /api/market-context/refresh [post]
func (h *Handler) RefreshMarketContext(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.refresh-market-context")
	defer span.End()

	c.JSON(http.StatusOK, h.marketService.RefreshAll(ctx))
}

// GetCacheStats godoc
// @Summary      Market cache statistics
// @Tags         market
// @Produce      json
// @Success      200  {object}  domain.CacheStats
// @Failure      503  {object}  map[string]string
// @Router       /api/cache/stats [get]
func (h *Handler) GetCacheStats(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-cache-stats")
	defer span.End()

	stats, err := h.marketService.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

var knownProviders = map[string]bool{
	domain.ProviderIndicators: true,
	domain.ProviderQuotes:     true,
	domain.ProviderSearch:     true,
}

// InvalidateCache godoc
// @Summary      Evict market cache entries
// @Description  Drops one provider's entries, or every entry when provider is "all"
// @Tags         market
// @Produce      json
// @Param        provider  path  string  true  "Provider name (indicators, quotes, search) or all"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/cache/{provider} [delete]
func (h *Handler) InvalidateCache(c *gin.Context) {
	if h.marketService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.invalidate-cache")
	defer span.End()

	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider == "all" {
		provider = ""
	} else if !knownProviders[provider] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider: " + provider})
		return
	}

	n, err := h.marketService.Invalidate(ctx, provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invalidated": n})
}
