package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/service"
)

// AppliedHandler handles application tracking endpoints.
type AppliedHandler struct {
	engine *service.Engine
}

// NewAppliedHandler creates a new applied handler.
// Parameters:
//   - engine: collection engine instance.
// Returns:
//   - *AppliedHandler: initialized handler.
func NewAppliedHandler(engine *service.Engine) *AppliedHandler {
	return &AppliedHandler{engine: engine}
}

// MarkAppliedRequest is the JSON body for marking a listing applied.
type MarkAppliedRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
}

// MarkApplied handles POST /api/v1/applied.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AppliedHandler) MarkApplied(c *gin.Context) {
	var req MarkAppliedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.engine.MarkApplied(c.Request.Context(), req.Fingerprint); err != nil {
		if errors.Is(err, domain.ErrFingerprintUnknown) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fingerprint": req.Fingerprint, "applied": true})
}

// GetApplied handles GET /api/v1/applied/:fingerprint.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AppliedHandler) GetApplied(c *gin.Context) {
	fingerprint := c.Param("fingerprint")

	applied, err := h.engine.IsApplied(c.Request.Context(), fingerprint)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"fingerprint": fingerprint, "applied": applied})
}
