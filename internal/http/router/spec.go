package router

import (
	"basegraph.app/relay/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func SpecRouter(rg *gin.RouterGroup, h *handler.SpecHandler) {
	rg.POST("/start", h.StartPhase)
}

func FeatureSpecRouter(rg *gin.RouterGroup, h *handler.SpecHandler) {
	rg.GET("/:id/spec", h.GetSpecOutput)
	rg.POST("/:id/spec/clarifications", h.SubmitClarification)
	rg.POST("/:id/spec/approve", h.ApproveSpec)
}
