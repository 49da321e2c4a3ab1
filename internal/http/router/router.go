package router

import (
	"basegraph.app/relay/internal/http/handler"
	"basegraph.app/relay/internal/http/middleware"
	"basegraph.app/relay/internal/store"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the bearer secret gating every write endpoint.
type RouterConfig struct {
	BearerSecret string
}

// Scheduler is the subset of the job scheduler the ingress surface needs:
// cancellation. Matches handler.Canceller.
type Scheduler = handler.Canceller

// Wake is the dispatch wake-signal publisher. Matches handler.Waker.
type Wake = handler.Waker

// SetupRoutes wires the core's ingress surface: job CRUD/cancel/retry/queue
// status and the spec pipeline's phase-start/clarification/output/approve
// endpoints, per the external-interfaces contract. /health is the only
// unauthenticated route.
func SetupRoutes(router *gin.Engine, stores *store.Stores, sched Scheduler, wake Wake, maxConcurrentJobs int, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	jobHandler := handler.NewJobHandler(stores, sched, wake, maxConcurrentJobs)
	specHandler := handler.NewSpecHandler(stores, wake)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BearerAuth(cfg.BearerSecret))
	{
		JobRouter(v1.Group("/jobs"), jobHandler)
		QueueStatusRouter(v1.Group("/queue-status"), jobHandler)
		SpecRouter(v1.Group("/spec"), specHandler)
		FeatureJobRouter(v1.Group("/features"), jobHandler)
		FeatureSpecRouter(v1.Group("/features"), specHandler)
	}
}
