package router

import (
	"basegraph.app/relay/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func JobRouter(rg *gin.RouterGroup, h *handler.JobHandler) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/retry", h.Retry)
}

// QueueStatusRouter is mounted at a sibling path to /jobs/:id so gin's
// router tree never has to resolve "status" against the :id wildcard.
func QueueStatusRouter(rg *gin.RouterGroup, h *handler.JobHandler) {
	rg.GET("", h.QueueStatus)
}

func FeatureJobRouter(rg *gin.RouterGroup, h *handler.JobHandler) {
	rg.GET("/:id/jobs", h.ListByFeature)
}
