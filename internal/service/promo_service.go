package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/domain"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"
)

var (
	ErrPromoInactive           = errors.New("promo code is not active")
	ErrPromoNotYetValid        = errors.New("promo code is not yet valid")
	ErrPromoExpired            = errors.New("promo code has expired")
	ErrPromoUsageLimitExceeded = errors.New("promo code usage limit exceeded")
	ErrPromoMinimumNotMet      = errors.New("order amount below promo code minimum")
	ErrUnknownDiscountType     = errors.New("unknown discount type")
)

// PromoService validates promo codes and computes discounts. Evaluate is
// read-only: usage is only consumed by the order processor, through
// ConsumeUsage, once an order actually commits. A validation preview never
// burns a use.
type PromoService interface {
	Evaluate(ctx context.Context, code string, orderAmount float64, now time.Time) (*domain.DiscountResult, error)
	ConsumeUsage(ctx context.Context, code string) error
}

type promoService struct {
	promoRepo repository.PromoCodeRepository
}

// NewPromoService creates a new instance of PromoService
func NewPromoService(promoRepo repository.PromoCodeRepository) PromoService {
	return &promoService{promoRepo: promoRepo}
}

// Evaluate runs the validation checks in order, each with its own failure,
// then computes the discount. Percentage discounts are capped by
// max_discount_amount; no discount ever exceeds the order amount.
func (s *promoService) Evaluate(ctx context.Context, code string, orderAmount float64, now time.Time) (*domain.DiscountResult, error) {
	promo, err := s.promoRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !promo.IsActive {
		return nil, ErrPromoInactive
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return nil, ErrPromoNotYetValid
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return nil, ErrPromoExpired
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return nil, ErrPromoUsageLimitExceeded
	}
	if promo.MinOrderAmount != nil && orderAmount < *promo.MinOrderAmount {
		return nil, ErrPromoMinimumNotMet
	}

	var discount float64
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		discount = orderAmount * promo.DiscountValue / 100
		if promo.MaxDiscountAmount != nil && discount > *promo.MaxDiscountAmount {
			discount = *promo.MaxDiscountAmount
		}
	case domain.DiscountTypeFixed:
		discount = promo.DiscountValue
	default:
		return nil, ErrUnknownDiscountType
	}

	// A discount never exceeds the order amount, whatever the stored code
	// says (a percentage over 100 must not produce a negative total).
	discount = round2(math.Min(discount, orderAmount))

	return &domain.DiscountResult{
		Code:           promo.Code,
		DiscountAmount: discount,
		FinalAmount:    round2(orderAmount - discount),
	}, nil
}

// ConsumeUsage records one successful application of the code. The increment
// is a conditional update in the repository, so a concurrent checkout racing
// the last available use loses cleanly with ErrPromoUsageExhausted.
func (s *promoService) ConsumeUsage(ctx context.Context, code string) error {
	return s.promoRepo.IncrementUsage(ctx, code)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
