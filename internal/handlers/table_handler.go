package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"queryset_registry/internal/models"
	"queryset_registry/internal/responses"
	"queryset_registry/internal/services"
)

type TableHandler struct {
	querysetService *services.QuerysetService
}

func NewTableHandler(querysetService *services.QuerysetService) *TableHandler {
	return &TableHandler{
		querysetService: querysetService,
	}
}

type tableDetail struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

func toTableDetail(table *models.Table) tableDetail {
	return tableDetail{
		Name:    table.Name,
		Columns: models.ColumnNames(table.Columns),
	}
}

// ListTables handles GET /api/v1/tables
func (h *TableHandler) ListTables(c *gin.Context) {
	tables, err := h.querysetService.ListTables(c.Request.Context())
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to retrieve tables")
		return
	}

	details := make([]tableDetail, 0, len(tables))
	for i := range tables {
		details = append(details, toTableDetail(&tables[i]))
	}

	responses.Success(c, http.StatusOK, details, "Tables retrieved successfully")
}

// GetTable handles GET /api/v1/tables/:name
func (h *TableHandler) GetTable(c *gin.Context) {
	table, err := h.querysetService.GetTable(c.Request.Context(), c.Param("name"))
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to retrieve table")
		return
	}

	responses.Success(c, http.StatusOK, toTableDetail(table), "Table retrieved successfully")
}
