package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobtide/internal/service"
	"github.com/timmy/jobtide/internal/source"
	"github.com/timmy/jobtide/internal/source/browser"
	"github.com/timmy/jobtide/internal/source/httpapi"
	"github.com/timmy/jobtide/internal/source/staging"
)

// SourceHandler handles source catalog and health endpoints.
type SourceHandler struct {
	engine *service.Engine
}

// NewSourceHandler creates a new source handler.
// Parameters:
//   - engine: collection engine instance.
// Returns:
//   - *SourceHandler: initialized handler.
func NewSourceHandler(engine *service.Engine) *SourceHandler {
	return &SourceHandler{engine: engine}
}

// sourceView is the JSON shape for one catalog entry.
type sourceView struct {
	ID        string `json:"id"`
	RateClass string `json:"rate_class,omitempty"`
	Enabled   bool   `json:"enabled"`
	Latency   string `json:"latency_class"`
}

// ListSources handles GET /api/v1/sources.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SourceHandler) ListSources(c *gin.Context) {
	descs := h.engine.Sources()
	views := make([]sourceView, 0, len(descs))
	for _, d := range descs {
		views = append(views, sourceView{
			ID:        d.ID,
			RateClass: d.RateClass,
			Enabled:   d.Enabled,
			Latency:   d.Adapter.Capabilities().LatencyClass,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sources": views})
}

// RegisterSourceRequest is the JSON body for registering a source at
// runtime. Type selects the adapter; only the matching config section
// is read.
type RegisterSourceRequest struct {
	Type      string `json:"type" binding:"required"` // staging, httpapi or browser
	ID        string `json:"id" binding:"required"`
	RateClass string `json:"rate_class"`

	// httpapi
	BaseURL    string            `json:"base_url"`
	SearchPath string            `json:"search_path"`
	Params     map[string]string `json:"params"`
	PageSize   int               `json:"page_size"`

	// browser
	PoolURL string `json:"pool_url"`
	Site    string `json:"site"`

	// staging
	Count     int   `json:"count"`
	LatencyMs int64 `json:"latency_ms"`
}

// Register handles POST /api/v1/sources.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SourceHandler) Register(c *gin.Context) {
	var req RegisterSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	var adapter source.Adapter
	switch req.Type {
	case "staging":
		adapter = staging.NewAdapter(staging.Config{
			ID:      req.ID,
			Count:   req.Count,
			Latency: time.Duration(req.LatencyMs) * time.Millisecond,
		})
	case "httpapi":
		adapter = httpapi.NewAdapter(httpapi.Config{
			ID:         req.ID,
			BaseURL:    req.BaseURL,
			SearchPath: req.SearchPath,
			Params:     req.Params,
			PageSize:   req.PageSize,
			RateClass:  req.RateClass,
		})
	case "browser":
		adapter = browser.NewAdapter(browser.Config{
			ID:         req.ID,
			SidecarURL: req.PoolURL,
			Site:       req.Site,
			RateClass:  req.RateClass,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown source type: " + req.Type,
		})
		return
	}

	desc := source.Descriptor{
		Adapter:   adapter,
		RateClass: req.RateClass,
		Enabled:   true,
	}
	if err := h.engine.RegisterSource(desc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": adapter.ID()})
}

// SetEnabledRequest is the JSON body for the enabled override.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled handles POST /api/v1/sources/:id/enabled.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SourceHandler) SetEnabled(c *gin.Context) {
	id := c.Param("id")

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.engine.SetSourceEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

// SourceHealth handles GET /api/v1/sources/health.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SourceHandler) SourceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.engine.HealthSnapshot()})
}
