package transport

import (
	"errors"
	"net/http"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/middleware"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// history responses are capped at this many records
const historyPageSize = 50

// AdjustStockRequest represents the admin stock adjustment payload
type AdjustStockRequest struct {
	AdjustmentType string `json:"adjustment_type" validate:"required,oneof=increase decrease set"`
	Quantity       int    `json:"quantity" validate:"gte=0"`
	Reason         string `json:"reason" validate:"required"`
	Notes          string `json:"notes"`
}

// InventoryHandler handles HTTP requests for inventory management
type InventoryHandler struct {
	inventoryService service.InventoryService
	logger           *zap.Logger
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventoryService service.InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryService: inventoryService,
		logger:           logger,
	}
}

// RegisterRoutes registers all inventory routes. Everything here is
// admin-only.
func (h *InventoryHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/admin/inventory", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Post("/{productID}/adjust", h.Adjust)
		r.Get("/{productID}/history", h.History)
	})
}

// Adjust handles administrative stock adjustments
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req AdjustStockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor, _ := middleware.GetUserID(r.Context())

	product, err := h.inventoryService.Adjust(r.Context(), productID, req.AdjustmentType, req.Quantity, req.Reason, req.Notes, actor)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrInvalidAdjustmentType):
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid adjustment type")
		case errors.Is(err, service.ErrInvalidQuantity):
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid quantity")
		default:
			h.logger.Error("Failed to adjust stock", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to adjust stock")
		}
		return
	}

	h.logger.Info("Stock adjusted",
		zap.String("product_id", productID.String()),
		zap.String("type", req.AdjustmentType),
		zap.Int("quantity", req.Quantity),
		zap.String("actor", actor),
	)
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// History handles retrieving a product's stock adjustment trail
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	adjustments, err := h.inventoryService.History(r.Context(), productID, historyPageSize)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to get stock history", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get stock history")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, adjustments)
}
