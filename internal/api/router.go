package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/jobstore/internal/api/handler"
	"github.com/timmy/jobstore/internal/api/middleware"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Jobs      handler.JobService
	Chunks    handler.ChunkService
	Retention handler.Sweeper
	Health    map[string]handler.Pinger

	// Metrics is mounted at MetricsPath when both are set.
	Metrics     http.Handler
	MetricsPath string

	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Deps, mode string) *gin.Engine {
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

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Health)
	jobHandler := handler.NewJobHandler(deps.Jobs)
	chunkHandler := handler.NewChunkHandler(deps.Chunks)
	retentionHandler := handler.NewRetentionHandler(deps.Retention)

	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil && deps.MetricsPath != "" {
		r.GET(deps.MetricsPath, gin.WrapH(deps.Metrics))
	}

	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", jobHandler.Create)
		v1.POST("/jobs/empty", jobHandler.CreateEmpty)
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)
		v1.GET("/jobs/:id/chunks/:chunkId/items", jobHandler.Items)
		v1.POST("/jobs/:id/redispatch", jobHandler.Redispatch)
		v1.POST("/jobs/:id/rerun", jobHandler.Rerun)

		// Chunk results
		v1.POST("/chunks", chunkHandler.Submit)

		// Retention
		v1.POST("/purge", retentionHandler.Purge)
	}

	return r
}
