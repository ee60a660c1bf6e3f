package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/jobtide/internal/api/handler"
	"github.com/timmy/jobtide/internal/api/middleware"
	"github.com/timmy/jobtide/internal/logger"
	"github.com/timmy/jobtide/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	engine *service.Engine,
	mode string,
	cors middleware.CORSConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	runHandler := handler.NewRunHandler(engine)
	sourceHandler := handler.NewSourceHandler(engine)
	appliedHandler := handler.NewAppliedHandler(engine)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Collection runs
		v1.POST("/runs", runHandler.StartRun)

		// Source catalog and health
		v1.GET("/sources", sourceHandler.ListSources)
		v1.POST("/sources", sourceHandler.Register)
		v1.POST("/sources/:id/enabled", sourceHandler.SetEnabled)
		v1.GET("/sources/health", sourceHandler.SourceHealth)

		// Application tracking
		v1.POST("/applied", appliedHandler.MarkApplied)
		v1.GET("/applied/:fingerprint", appliedHandler.GetApplied)
	}

	return r
}
