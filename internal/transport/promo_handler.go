package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/middleware"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValidatePromoRequest represents the promo validation request payload
type ValidatePromoRequest struct {
	Code        string  `json:"code" validate:"required"`
	OrderAmount float64 `json:"order_amount" validate:"gte=0"`
}

// PromoCodeRequest represents the admin create/update payload
type PromoCodeRequest struct {
	Code              string   `json:"code" validate:"required"`
	Description       string   `json:"description"`
	DiscountType      string   `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue     float64  `json:"discount_value" validate:"required,gt=0"`
	MinOrderAmount    *float64 `json:"min_order_amount" validate:"omitempty,gte=0"`
	MaxDiscountAmount *float64 `json:"max_discount_amount" validate:"omitempty,gte=0"`
	UsageLimit        *int     `json:"usage_limit" validate:"omitempty,gt=0"`
	UserUsageLimit    *int     `json:"user_usage_limit" validate:"omitempty,gt=0"`
	ValidFrom         *string  `json:"valid_from"`
	ValidUntil        *string  `json:"valid_until"`
	IsActive          bool     `json:"is_active"`
}

// PromoHandler handles HTTP requests for promo codes
type PromoHandler struct {
	promoService service.PromoService
	promoRepo    repository.PromoCodeRepository
	logger       *zap.Logger
}

// NewPromoHandler creates a new PromoHandler
func NewPromoHandler(promoService service.PromoService, promoRepo repository.PromoCodeRepository, logger *zap.Logger) *PromoHandler {
	return &PromoHandler{
		promoService: promoService,
		promoRepo:    promoRepo,
		logger:       logger,
	}
}

// RegisterRoutes registers all promo routes
func (h *PromoHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	// Pre-checkout validation preview: rejections are hard errors here,
	// unlike checkout where they soft-fail.
	r.Post("/api/promo/validate", h.Validate)

	r.Route("/api/admin/promo-codes", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// Validate handles the promo validation preview
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidatePromoRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.promoService.Evaluate(r.Context(), req.Code, req.OrderAmount, time.Now())
	if err != nil {
		h.respondPromoError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// respondPromoError maps each evaluation failure to its HTTP status: 404 for
// an unknown code, 400 for every other rejection.
func (h *PromoHandler) respondPromoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPromoNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "promo code not found")
	case errors.Is(err, service.ErrPromoInactive):
		middleware.RespondWithError(w, http.StatusBadRequest, "promo code is not active")
	case errors.Is(err, service.ErrPromoNotYetValid):
		middleware.RespondWithError(w, http.StatusBadRequest, "promo code is not yet valid")
	case errors.Is(err, service.ErrPromoExpired):
		middleware.RespondWithError(w, http.StatusBadRequest, "promo code has expired")
	case errors.Is(err, service.ErrPromoUsageLimitExceeded):
		middleware.RespondWithError(w, http.StatusBadRequest, "promo code usage limit exceeded")
	case errors.Is(err, service.ErrPromoMinimumNotMet):
		middleware.RespondWithError(w, http.StatusBadRequest, "order amount below promo code minimum")
	default:
		h.logger.Error("Promo validation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to validate promo code")
	}
}

// List handles listing all promo codes
func (h *PromoHandler) List(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promoRepo.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list promo codes", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list promo codes")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, promos)
}

// Create handles promo code creation
func (h *PromoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req PromoCodeRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	promo, err := h.promoFromRequest(&req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	promo.ID = uuid.New()
	promo.CreatedAt = time.Now()
	promo.UpdatedAt = promo.CreatedAt

	if err := h.promoRepo.Create(r.Context(), promo); err != nil {
		if errors.Is(err, repository.ErrPromoCodeExists) {
			middleware.RespondWithError(w, http.StatusConflict, "promo code already exists")
			return
		}
		h.logger.Error("Failed to create promo code", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create promo code")
		return
	}

	h.logger.Info("Promo code created", zap.String("code", promo.Code))
	middleware.RespondWithJSON(w, http.StatusCreated, promo)
}

// Update handles promo code updates
func (h *PromoHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid promo code ID")
		return
	}

	var req PromoCodeRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	promo, err := h.promoFromRequest(&req)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	promo.ID = id
	promo.UpdatedAt = time.Now()

	if err := h.promoRepo.Update(r.Context(), promo); err != nil {
		switch {
		case errors.Is(err, repository.ErrPromoNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "promo code not found")
		case errors.Is(err, repository.ErrPromoCodeExists):
			middleware.RespondWithError(w, http.StatusConflict, "promo code already exists")
		default:
			h.logger.Error("Failed to update promo code", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update promo code")
		}
		return
	}

	updated, err := h.promoRepo.FindByID(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to reload promo code", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update promo code")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, updated)
}

// Delete handles promo code deletion
func (h *PromoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid promo code ID")
		return
	}

	if err := h.promoRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "promo code not found")
			return
		}
		h.logger.Error("Failed to delete promo code", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete promo code")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "promo code deleted"})
}

func (h *PromoHandler) promoFromRequest(req *PromoCodeRequest) (*domain.PromoCode, error) {
	if req.DiscountType == domain.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, errors.New("percentage discount cannot exceed 100")
	}

	promo := &domain.PromoCode{
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		UserUsageLimit:    req.UserUsageLimit,
		IsActive:          req.IsActive,
	}

	var err error
	if promo.ValidFrom, err = parseDate(req.ValidFrom); err != nil {
		return nil, errors.New("invalid valid_from date")
	}
	if promo.ValidUntil, err = parseDate(req.ValidUntil); err != nil {
		return nil, errors.New("invalid valid_until date")
	}

	return promo, nil
}

// parseDate accepts RFC3339 or a bare YYYY-MM-DD date.
func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, *raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
