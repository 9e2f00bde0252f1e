package handler

import (
	"net/http"

	"finsight/internal/crypto"
	"finsight/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer         trace.Tracer
	contextService *service.ContextService
	marketService  *service.MarketService
	profileService *service.ProfileService
	hub            *Hub
	currentCipher  *crypto.Cipher
	nextCipher     *crypto.Cipher
}

func New(
	tracer trace.Tracer,
	contextService *service.ContextService,
	marketService *service.MarketService,
	profileService *service.ProfileService,
	hub *Hub,
	currentCipher *crypto.Cipher,
	nextCipher *crypto.Cipher,
) *Handler {
	return &Handler{
		tracer:         tracer,
		contextService: contextService,
		marketService:  marketService,
		profileService: profileService,
		hub:            hub,
		currentCipher:  currentCipher,
		nextCipher:     nextCipher,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/api/ask", h.Ask)
	r.GET("/api/market-context", h.GetMarketContext)
	r.POST("/api/market-context/refresh", h.RefreshMarketContext)
	r.GET("/api/market-context/live", h.LiveMarketContext)
	r.GET("/api/cache/stats", h.GetCacheStats)
	r.DELETE("/api/cache/:provider", h.InvalidateCache)
	r.POST("/api/profile/rotate-key", h.RotateProfileKey)
	r.DELETE("/api/profile", h.DeleteProfile)
	r.DELETE("/api/session/:key", h.InvalidateSession)
}

// Health godoc
// @Summary      Service health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
