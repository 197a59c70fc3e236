package router

import (
	"github.com/gin-gonic/gin"

	"github.com/mailmind-app/mailmind-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)

	// Health check endpoint
	r.GET("/health", jobHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a job for async processing
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs/:job_id - Get job status
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		// GET /api/v1/stats - Engine statistics for the dashboard
		v1.GET("/stats", jobHandler.GetStats)

		// GET /api/v1/history - Archived job outcomes
		v1.GET("/history", jobHandler.ListHistory)
	}

	return r
}
