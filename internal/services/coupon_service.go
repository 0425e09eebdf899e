package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

var (
	// ErrCouponInvalidInput signals a missing or malformed code.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates no active campaign carries the code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponExpired indicates the campaign window has closed.
	ErrCouponExpired = errors.New("coupon: expired")
)

// CouponServiceDeps bundles collaborators for the coupon service.
type CouponServiceDeps struct {
	Banners repositories.BannerRepository
	Clock   func() time.Time
}

type couponService struct {
	banners repositories.BannerRepository
	clock   func() time.Time
}

// NewCouponService wires dependencies into a concrete CouponService.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Banners == nil {
		return nil, errors.New("coupon service: banner repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &couponService{
		banners: deps.Banners,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Validate checks the code against the active promotional banner. Codes are
// matched case-insensitively and only accepted inside the campaign window.
func (s *couponService) Validate(ctx context.Context, code string) (AppliedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return AppliedCoupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}

	banner, err := s.banners.FindActive(ctx)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return AppliedCoupon{}, fmt.Errorf("%w: no active campaign", ErrCouponNotFound)
		}
		return AppliedCoupon{}, err
	}

	if !strings.EqualFold(banner.CouponCode, code) {
		return AppliedCoupon{}, fmt.Errorf("%w: %s", ErrCouponNotFound, strings.ToUpper(code))
	}
	if !banner.EndDate.IsZero() && s.clock().After(banner.EndDate) {
		return AppliedCoupon{}, fmt.Errorf("%w: %s", ErrCouponExpired, strings.ToUpper(code))
	}

	// Banners written before discount types existed carry no type marker and
	// are read as percentage discounts.
	discountType := banner.DiscountType
	if discountType == "" {
		discountType = domain.DiscountTypePercentage
	}
	switch discountType {
	case domain.DiscountTypePercentage:
		if banner.DiscountValue <= 0 || banner.DiscountValue > 100 {
			return AppliedCoupon{}, fmt.Errorf("%w: campaign discount out of range", ErrCouponNotFound)
		}
	case domain.DiscountTypeFixed:
		if banner.DiscountValue <= 0 {
			return AppliedCoupon{}, fmt.Errorf("%w: campaign discount out of range", ErrCouponNotFound)
		}
	default:
		return AppliedCoupon{}, fmt.Errorf("%w: unknown discount type %q", ErrCouponNotFound, discountType)
	}

	return AppliedCoupon{
		Code:          strings.ToUpper(banner.CouponCode),
		DiscountType:  discountType,
		DiscountValue: banner.DiscountValue,
	}, nil
}
