package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"queryset_registry/internal/models"
	"queryset_registry/internal/responses"
	"queryset_registry/internal/services"
	"queryset_registry/internal/utils"
)

type QuerysetHandler struct {
	querysetService *services.QuerysetService
	basePath        string
}

// NewQuerysetHandler creates a handler; basePath is the route prefix used
// to build hyperlinks in listings.
func NewQuerysetHandler(querysetService *services.QuerysetService, basePath string) *QuerysetHandler {
	return &QuerysetHandler{
		querysetService: querysetService,
		basePath:        basePath,
	}
}

type querysetDetail struct {
	Name      string   `json:"name"`
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

type querysetListItem struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ColumnCount int    `json:"column_count"`
}

type querysetStatus struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
}

func toDetail(qs *models.Queryset) querysetDetail {
	return querysetDetail{
		Name:      qs.Name,
		TableName: qs.Table,
		Columns:   models.ColumnNames(qs.Columns),
	}
}

// CreateQueryset handles POST /api/v1/querysets
func (h *QuerysetHandler) CreateQueryset(c *gin.Context) {
	var req services.CreateQuerysetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	qs, err := h.querysetService.CreateQueryset(c.Request.Context(), &req)
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to create queryset")
		return
	}

	responses.Success(c, http.StatusCreated, toDetail(qs), "Queryset created successfully")
}

// ListQuerysets handles GET /api/v1/querysets
func (h *QuerysetHandler) ListQuerysets(c *gin.Context) {
	summaries, err := h.querysetService.ListQuerysets(c.Request.Context())
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to retrieve querysets")
		return
	}

	items := make([]querysetListItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, querysetListItem{
			Name:        s.Name,
			URL:         utils.Hyperlink(c, h.basePath, s.Name),
			ColumnCount: s.ColumnCount,
		})
	}

	responses.Success(c, http.StatusOK, items, "Querysets retrieved successfully")
}

// GetQueryset handles GET /api/v1/querysets/:name
func (h *QuerysetHandler) GetQueryset(c *gin.Context) {
	qs, err := h.querysetService.GetQueryset(c.Request.Context(), c.Param("name"))
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to retrieve queryset")
		return
	}

	responses.Success(c, http.StatusOK, toDetail(qs), "Queryset retrieved successfully")
}

// UpdateQueryset handles PUT /api/v1/querysets/:name
func (h *QuerysetHandler) UpdateQueryset(c *gin.Context) {
	var req services.UpdateQuerysetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.querysetService.UpdateQuerysetColumns(c.Request.Context(), c.Param("name"), &req); err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to update queryset")
		return
	}

	responses.NoContent(c, http.StatusNoContent)
}

// DeleteQueryset handles DELETE /api/v1/querysets/:name
func (h *QuerysetHandler) DeleteQueryset(c *gin.Context) {
	if err := h.querysetService.DeleteQueryset(c.Request.Context(), c.Param("name")); err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to delete queryset")
		return
	}

	responses.NoContent(c, http.StatusNoContent)
}

// RepairQueryset handles POST /api/v1/querysets/:name/repair
func (h *QuerysetHandler) RepairQueryset(c *gin.Context) {
	outcome, err := h.querysetService.RepairQueryset(c.Request.Context(), c.Param("name"))
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to repair queryset")
		return
	}

	responses.Success(c, http.StatusOK, outcome, "Queryset repaired")
}

// QuerysetStatus handles GET /api/v1/querysets/:name/status
func (h *QuerysetHandler) QuerysetStatus(c *gin.Context) {
	name := c.Param("name")
	valid, err := h.querysetService.ValidateQueryset(c.Request.Context(), name)
	if err != nil {
		responses.Fail(c, statusFor(err), err, "Failed to validate queryset")
		return
	}

	responses.Success(c, http.StatusOK, querysetStatus{Name: name, Valid: valid}, "Queryset validated")
}
