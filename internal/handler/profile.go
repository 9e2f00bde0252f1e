package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RotateProfileKey godoc
// @Summary      Rotate profile encryption keys
// @Description  Re-encrypts active profile records from the current key version to the configured next one
// @Tags         profile
// @Produce      json
// @Success      200  {object}  map[string]int
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/profile/rotate-key [post]
func (h *Handler) RotateProfileKey(c *gin.Context) {
	if h.profileService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile service unavailable"})
		return
	}
	if h.nextCipher == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no next key configured"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.rotate-profile-key")
	defer span.End()

	rotated, failed, err := h.profileService.RotateAllKeys(ctx, h.currentCipher, h.nextCipher)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rotated": rotated, "failed": failed})
}

// DeleteProfile godoc
// @Summary      Delete a user's encrypted profile
// @Description  Logically deletes the record; a later conversation starts a fresh profile
// @Tags         profile
// @Produce      json
// @Param        user_id  query  string  true  "User identifier"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/profile [delete]
func (h *Handler) DeleteProfile(c *gin.Context) {
	if h.profileService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-profile")
	defer span.End()

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	if err := h.profileService.DeleteProfile(ctx, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
