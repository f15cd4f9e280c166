package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"queryset_registry/internal/handlers"
)

const APIPrefix = "/api/v1"

func RegisterRoutes(router *gin.Engine, querysetHandler *handlers.QuerysetHandler, tableHandler *handlers.TableHandler) {
	api := router.Group(APIPrefix)

	querysetRoutes := NewQuerysetRoutes(querysetHandler)
	querysetRoutes.RegisterRoutes(api)

	tableRoutes := NewTableRoutes(tableHandler)
	tableRoutes.RegisterRoutes(api)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}
