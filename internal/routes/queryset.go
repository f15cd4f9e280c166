package routes

import (
	"github.com/gin-gonic/gin"

	"queryset_registry/internal/handlers"
)

type QuerysetRoutes struct {
	handler *handlers.QuerysetHandler
}

func NewQuerysetRoutes(handler *handlers.QuerysetHandler) *QuerysetRoutes {
	return &QuerysetRoutes{handler: handler}
}

func (r *QuerysetRoutes) RegisterRoutes(router *gin.RouterGroup) {
	querysets := router.Group("/querysets")
	{
		querysets.POST("", r.handler.CreateQueryset)
		querysets.GET("", r.handler.ListQuerysets)
		querysets.GET("/:name", r.handler.GetQueryset)
		querysets.PUT("/:name", r.handler.UpdateQueryset)
		querysets.DELETE("/:name", r.handler.DeleteQueryset)
		querysets.POST("/:name/repair", r.handler.RepairQueryset)
		querysets.GET("/:name/status", r.handler.QuerysetStatus)
	}
}
