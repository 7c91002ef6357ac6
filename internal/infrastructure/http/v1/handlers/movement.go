package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/scope"
	"stockledger/internal/domain/engine"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles HTTP requests for the movement ledger.
type MovementHandler struct {
	*BaseHandler
	engine    *engine.Service
	movements ledger.Repository
}

// NewMovementHandler creates a new movement handler.
func NewMovementHandler(base *BaseHandler, eng *engine.Service, movements ledger.Repository) *MovementHandler {
	return &MovementHandler{
		BaseHandler: base,
		engine:      eng,
		movements:   movements,
	}
}

// Apply handles POST /movements
func (h *MovementHandler) Apply(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := req.ToMovement(sc.TenantID)
	if err != nil {
		h.Error(c, err)
		return
	}

	applied, err := h.engine.Apply(c.Request.Context(), sc, m)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(applied))
}

// ApplyBatch handles POST /movements/batch
func (h *MovementHandler) ApplyBatch(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.BatchMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	movements := make([]*ledger.Movement, 0, len(req.Movements))
	for i, mr := range req.Movements {
		m, err := mr.ToMovement(sc.TenantID)
		if err != nil {
			h.Error(c, apperror.NewBatchFailed(i, err))
			return
		}
		movements = append(movements, m)
	}

	applied, err := h.engine.ApplyBatch(c.Request.Context(), sc, movements)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.MovementResponse, len(applied))
	for i, m := range applied {
		items[i] = dto.FromMovement(m)
	}
	h.OK(c, dto.MovementListResponse{Items: items, TotalCount: len(items)})
}

// Validate handles POST /movements/validate. Dry run, no mutation.
func (h *MovementHandler) Validate(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := req.ToMovement(sc.TenantID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.engine.Validate(c.Request.Context(), sc, m); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "movement is valid")
}

// Reverse handles POST /movements/:id/reverse
func (h *MovementHandler) Reverse(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReverseMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	reason := ledger.ReasonOther
	if req.Reason != "" {
		parsed, err := ledger.ParseMovementReason(req.Reason)
		if err != nil {
			h.Error(c, err)
			return
		}
		reason = parsed
	}

	reversal, err := h.engine.Reverse(c.Request.Context(), sc, movementID, reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(reversal))
}

// GetByID handles GET /movements/:id
func (h *MovementHandler) GetByID(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	m, err := h.movements.GetByID(c.Request.Context(), sc, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// Delete handles DELETE /movements/:id. Soft delete only; recorded
// quantities are never mutated.
func (h *MovementHandler) Delete(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.movements.SetDeleted(c.Request.Context(), sc, movementID, true); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// History handles GET /movements
func (h *MovementHandler) History(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	filter := ledger.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
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
	if typeStr := c.Query("type"); typeStr != "" {
		mvType, err := ledger.ParseMovementType(typeStr)
		if err != nil {
			h.Error(c, err)
			return
		}
		filter.Type = &mvType
	}
	if fromStr := c.Query("fromDate"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid fromDate format, expected RFC3339"))
			return
		}
		filter.FromDate = &parsed
	}
	if toStr := c.Query("toDate"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid toDate format, expected RFC3339"))
			return
		}
		filter.ToDate = &parsed
	}

	movements, err := h.movements.ListHistory(c.Request.Context(), sc, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.MovementResponse, len(movements))
	for i, m := range movements {
		items[i] = dto.FromMovement(m)
	}
	h.OK(c, dto.MovementListResponse{Items: items, TotalCount: len(items)})
}

// --- Typed convenience endpoints ---

// Inbound handles POST /movements/inbound
func (h *MovementHandler) Inbound(c *gin.Context) {
	h.applySimple(c, h.engine.ProcessInbound)
}

// Outbound handles POST /movements/outbound
func (h *MovementHandler) Outbound(c *gin.Context) {
	h.applySimple(c, h.engine.ProcessOutbound)
}

// Transfer handles POST /movements/transfer
func (h *MovementHandler) Transfer(c *gin.Context) {
	h.applySimple(c, h.engine.ProcessTransfer)
}

// Adjustment handles POST /movements/adjustment
func (h *MovementHandler) Adjustment(c *gin.Context) {
	h.applySimple(c, h.engine.ProcessAdjustment)
}

func (h *MovementHandler) applySimple(
	c *gin.Context,
	process func(ctx context.Context, sc scope.Scope, cmd engine.Command) (*ledger.Movement, error),
) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.SimpleMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}

	applied, err := process(c.Request.Context(), sc, cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(applied))
}

// RegisterRoutes registers movement routes.
func (h *MovementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Apply)
	rg.POST("/batch", h.ApplyBatch)
	rg.POST("/validate", h.Validate)
	rg.POST("/inbound", h.Inbound)
	rg.POST("/outbound", h.Outbound)
	rg.POST("/transfer", h.Transfer)
	rg.POST("/adjustment", h.Adjustment)
	rg.GET("", h.History)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/reverse", h.Reverse)
	rg.DELETE("/:id", h.Delete)
}
