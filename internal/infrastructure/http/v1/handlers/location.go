package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/location"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LocationHandler handles HTTP requests for the location catalog.
type LocationHandler struct {
	*BaseHandler
	service *location.Service
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	return &LocationHandler{BaseHandler: base, service: service}
}

// Create handles POST /catalog/locations
func (h *LocationHandler) Create(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.CreateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouseID, err := id.Parse(req.WarehouseID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouseId format"))
		return
	}

	l := location.New(sc.TenantID, warehouseID, req.Code, req.Name)
	if err := h.service.Create(c.Request.Context(), sc, l); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, l.ID)
}

// GetByID handles GET /catalog/locations/:id
func (h *LocationHandler) GetByID(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	locationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	l, err := h.service.GetByID(c.Request.Context(), sc, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLocation(l))
}

// List handles GET /catalog/locations
func (h *LocationHandler) List(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	filter := location.ListFilter{
		Search:         c.Query("search"),
		IncludeDeleted: c.Query("includeDeleted") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 100),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}

	var err error
	if filter.WarehouseID, err = dto.ParseOptionalID(c.Query("warehouseId")); err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouseId format"))
		return
	}

	locations, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.LocationResponse, len(locations))
	for i, l := range locations {
		items[i] = dto.FromLocation(l)
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: len(items)})
}

// Delete handles DELETE /catalog/locations/:id
func (h *LocationHandler) Delete(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	locationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), sc, locationID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers location catalog routes.
func (h *LocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.DELETE("/:id", h.Delete)
}
