package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/projection"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock projection.
type StockHandler struct {
	*BaseHandler
	rows projection.Repository
}

// NewStockHandler creates a new stock projection handler.
func NewStockHandler(base *BaseHandler, rows projection.Repository) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		rows:        rows,
	}
}

// List handles GET /stock
func (h *StockHandler) List(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	filter := projection.RowFilter{
		ExcludeZero: c.Query("excludeZero") == "true",
		Limit:       h.ParseIntQuery(c, "limit", 100),
		Offset:      h.ParseIntQuery(c, "offset", 0),
	}

	var err error
	if filter.ProductID, err = dto.ParseOptionalID(c.Query("productId")); err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}
	if filter.LocationID, err = dto.ParseOptionalID(c.Query("locationId")); err != nil {
		h.Error(c, apperror.NewValidation("invalid locationId format"))
		return
	}
	if filter.LotID, err = dto.ParseOptionalID(c.Query("lotId")); err != nil {
		h.Error(c, apperror.NewValidation("invalid lotId format"))
		return
	}

	rows, err := h.rows.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockRowResponse, len(rows))
	for i, row := range rows {
		items[i] = dto.FromStockRow(row)
	}
	h.OK(c, dto.StockRowListResponse{Items: items})
}

// GetAvailability handles GET /stock/availability/:productId/:locationId
func (h *StockHandler) GetAvailability(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}
	locationID, ok := h.ParseIDParam(c, "locationId")
	if !ok {
		return
	}

	key := projection.Key{ProductID: productID, LocationID: locationID}
	var err error
	if key.LotID, err = dto.ParseOptionalID(c.Query("lotId")); err != nil {
		h.Error(c, apperror.NewValidation("invalid lotId format"))
		return
	}

	row, err := h.rows.GetByKey(c.Request.Context(), sc, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			// No row means the key was never stocked: zero availability,
			// not an error.
			h.OK(c, dto.AvailabilityResponse{
				ProductID:  productID.String(),
				LocationID: locationID.String(),
				LotID:      dto.IDString(key.LotID),
			})
			return
		}
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AvailabilityResponse{
		ProductID:         productID.String(),
		LocationID:        locationID.String(),
		LotID:             dto.IDString(row.LotID),
		Quantity:          row.Quantity.Float64(),
		ReservedQuantity:  row.ReservedQuantity.Float64(),
		AvailableQuantity: row.AvailableQuantity().Float64(),
	})
}

// SetThresholds handles PUT /stock/:id/thresholds
func (h *StockHandler) SetThresholds(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	rowID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SetThresholdsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	var minLevel, maxLevel *types.Quantity
	if req.MinimumLevel != nil {
		v := types.NewQuantityFromFloat64(*req.MinimumLevel)
		minLevel = &v
	}
	if req.MaximumLevel != nil {
		v := types.NewQuantityFromFloat64(*req.MaximumLevel)
		maxLevel = &v
	}

	if err := h.rows.SetThresholds(c.Request.Context(), sc, rowID, minLevel, maxLevel); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "thresholds updated")
}

// RegisterRoutes registers stock projection routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/availability/:productId/:locationId", h.GetAvailability)
	rg.PUT("/:id/thresholds", h.SetThresholds)
}
