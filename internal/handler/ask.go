package handler

import (
	"net/http"
	"strings"

	"finsight/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Ask godoc
// @Summary      Answer a financial question
// @Description  Runs the question through tokenization, tier-gated market context and the advisor
// @Tags         ask
// @Accept       json
// @Produce      json
// @Param        request  body  domain.QuestionRequest  true  "Question payload"
// @Success      200  {object}  domain.Answer
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/ask [post]
func (h *Handler) Ask(c *gin.Context) {
	if h.contextService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ask service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.ask")
	defer span.End()

	var req domain.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("tier", string(req.Tier)),
		attribute.Bool("demo", req.IsDemo),
	)

	answer, err := h.contextService.Answer(ctx, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// InvalidateSession godoc
// @Summary      Drop a session's token vault
// @Description  Forces fresh tokenization after underlying account data changes
// @Tags         ask
// @Produce      json
// @Param        key  path  string  true  "Session key, e.g. user:123 or demo:abc"
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/session/{key} [delete]
func (h *Handler) InvalidateSession(c *gin.Context) {
	if h.contextService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ask service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.invalidate-session")
	defer span.End()

	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session key is required"})
		return
	}
	h.contextService.InvalidateSession(ctx, key)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}
