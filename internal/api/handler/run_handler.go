package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobtide/internal/domain"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/service"
)

// RunHandler handles collection run endpoints.
type RunHandler struct {
	engine *service.Engine
}

// NewRunHandler creates a new run handler.
// Parameters:
//   - engine: collection engine instance.
// Returns:
//   - *RunHandler: initialized handler.
func NewRunHandler(engine *service.Engine) *RunHandler {
	return &RunHandler{engine: engine}
}

// RunRequest is the JSON body for POST /api/v1/runs.
type RunRequest struct {
	Keywords       []string `json:"keywords"`
	Location       string   `json:"location"`
	Experience     string   `json:"experience"`
	PerSourceLimit int      `json:"per_source_limit"`
	DeadlineMs     int64    `json:"deadline_ms"`
}

// StartRun handles POST /api/v1/runs. The request blocks until the run
// completes and returns the full collection report.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) StartRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	query := domain.Query{
		Keywords:       req.Keywords,
		Location:       req.Location,
		Experience:     req.Experience,
		PerSourceLimit: req.PerSourceLimit,
	}
	if req.DeadlineMs > 0 {
		query.Deadline = time.Now().Add(time.Duration(req.DeadlineMs) * time.Millisecond)
	}

	report, err := h.engine.Collect(c.Request.Context(), query)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Collection failed: " + err.Error(),
		})
		return
	}

	// Expose the run ID so the access log can correlate the request
	// with the per-source entries the engine logged under it.
	c.Set(logger.FieldRunID, report.RunID)
	c.Header("X-Run-ID", report.RunID)

	c.JSON(http.StatusOK, report)
}
