package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reconcile"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReconciliationHandler handles HTTP requests for stock reconciliation.
type ReconciliationHandler struct {
	*BaseHandler
	calculator *reconcile.Calculator
	applier    *reconcile.Applier
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, calculator *reconcile.Calculator, applier *reconcile.Applier) *ReconciliationHandler {
	return &ReconciliationHandler{
		BaseHandler: base,
		calculator:  calculator,
		applier:     applier,
	}
}

// Calculate handles POST /reconciliation/calculate. Read-only run.
func (h *ReconciliationHandler) Calculate(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.CalculateReconciliationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	window := reconcile.Window{From: req.From, To: req.To}

	result, err := h.calculator.Calculate(c.Request.Context(), sc, filter, window, req.Options.ToOptions())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReconciliationResult(result))
}

// Apply handles POST /reconciliation/apply. Corrects the selected items in
// one atomic batch.
func (h *ReconciliationHandler) Apply(c *gin.Context) {
	sc, ok := h.Scope(c)
	if !ok {
		return
	}

	var req dto.ApplyReconciliationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	applyReq, err := req.ToApplyRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.applier.Apply(c.Request.Context(), sc, applyReq)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromApplyResult(result))
}

// RegisterRoutes registers reconciliation routes.
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/calculate", h.Calculate)
	rg.POST("/apply", h.Apply)
}
