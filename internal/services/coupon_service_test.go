package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
)

type stubBannerRepository struct {
	findActiveFn func(ctx context.Context) (domain.PromoBanner, error)
	findByIDFn   func(ctx context.Context, bannerID string) (domain.PromoBanner, error)
}

func (s *stubBannerRepository) FindActive(ctx context.Context) (domain.PromoBanner, error) {
	if s.findActiveFn == nil {
		return domain.PromoBanner{}, errors.New("findActive not stubbed")
	}
	return s.findActiveFn(ctx)
}

func (s *stubBannerRepository) FindByID(ctx context.Context, bannerID string) (domain.PromoBanner, error) {
	if s.findByIDFn == nil {
		return domain.PromoBanner{}, errors.New("findByID not stubbed")
	}
	return s.findByIDFn(ctx, bannerID)
}

func activeBanner() domain.PromoBanner {
	return domain.PromoBanner{
		ID:            "bnr_1",
		Title:         "Rainy Season Sale",
		CouponCode:    "SAHEL10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
		EndDate:       testClock().Add(24 * time.Hour),
	}
}

func newTestCouponService(t *testing.T, banners *stubBannerRepository) CouponService {
	t.Helper()
	svc, err := NewCouponService(CouponServiceDeps{
		Banners: banners,
		Clock:   testClock,
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	return svc
}

func TestCouponServiceValidateMatchesCaseInsensitively(t *testing.T) {
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) { return activeBanner(), nil },
	})

	for _, code := range []string{"SAHEL10", "sahel10", " Sahel10 "} {
		coupon, err := svc.Validate(context.Background(), code)
		if err != nil {
			t.Fatalf("Validate(%q): %v", code, err)
		}
		if coupon.Code != "SAHEL10" || coupon.DiscountType != domain.DiscountTypePercentage || coupon.DiscountValue != 10 {
			t.Fatalf("unexpected coupon %+v", coupon)
		}
	}
}

func TestCouponServiceValidateRejectsUnknownCode(t *testing.T) {
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) { return activeBanner(), nil },
	})

	if _, err := svc.Validate(context.Background(), "OTHER"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestCouponServiceValidateRejectsExpiredCampaign(t *testing.T) {
	ended := activeBanner()
	ended.EndDate = testClock().Add(-time.Hour)
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) { return ended, nil },
	})

	if _, err := svc.Validate(context.Background(), "SAHEL10"); !errors.Is(err, ErrCouponExpired) {
		t.Fatalf("expected ErrCouponExpired, got %v", err)
	}
}

func TestCouponServiceValidateWithoutActiveCampaign(t *testing.T) {
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) {
			return domain.PromoBanner{}, &stubRepoError{msg: "no banner", notFound: true}
		},
	})

	if _, err := svc.Validate(context.Background(), "SAHEL10"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestCouponServiceValidateRejectsOutOfRangeDiscount(t *testing.T) {
	cases := []struct {
		name         string
		discountType domain.DiscountType
		value        float64
	}{
		{"percentage above 100", domain.DiscountTypePercentage, 140},
		{"percentage zero", domain.DiscountTypePercentage, 0},
		{"fixed negative", domain.DiscountTypeFixed, -50},
		{"unknown type", domain.DiscountType("bogus"), 10},
	}

	for _, tc := range cases {
		broken := activeBanner()
		broken.DiscountType = tc.discountType
		broken.DiscountValue = tc.value
		svc := newTestCouponService(t, &stubBannerRepository{
			findActiveFn: func(context.Context) (domain.PromoBanner, error) { return broken, nil },
		})

		if _, err := svc.Validate(context.Background(), "SAHEL10"); !errors.Is(err, ErrCouponNotFound) {
			t.Fatalf("%s: expected ErrCouponNotFound, got %v", tc.name, err)
		}
	}
}

func TestCouponServiceValidateAcceptsFixedDiscount(t *testing.T) {
	banner := activeBanner()
	banner.DiscountType = domain.DiscountTypeFixed
	banner.DiscountValue = 500
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) { return banner, nil },
	})

	coupon, err := svc.Validate(context.Background(), "sahel10")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if coupon.DiscountType != domain.DiscountTypeFixed || coupon.DiscountValue != 500 {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
}

func TestCouponServiceValidateDefaultsUntypedBannerToPercentage(t *testing.T) {
	banner := activeBanner()
	banner.DiscountType = ""
	svc := newTestCouponService(t, &stubBannerRepository{
		findActiveFn: func(context.Context) (domain.PromoBanner, error) { return banner, nil },
	})

	coupon, err := svc.Validate(context.Background(), "SAHEL10")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if coupon.DiscountType != domain.DiscountTypePercentage {
		t.Fatalf("expected percentage default, got %+v", coupon)
	}
}

func TestCouponServiceValidateRequiresCode(t *testing.T) {
	svc := newTestCouponService(t, &stubBannerRepository{})

	if _, err := svc.Validate(context.Background(), "  "); !errors.Is(err, ErrCouponInvalidInput) {
		t.Fatalf("expected ErrCouponInvalidInput, got %v", err)
	}
}
