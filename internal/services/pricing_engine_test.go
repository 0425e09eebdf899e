package services

import (
	"context"
	"errors"
	"math"
	"testing"

	domain "github.com/sahel-market/api/internal/domain"
)

type stubCouponService struct {
	validateFn func(ctx context.Context, code string) (AppliedCoupon, error)
}

func (s *stubCouponService) Validate(ctx context.Context, code string) (AppliedCoupon, error) {
	if s.validateFn == nil {
		return AppliedCoupon{}, errors.New("validate not stubbed")
	}
	return s.validateFn(ctx, code)
}

func catalogStock(products map[string]Product) *stubStockService {
	return &stubStockService{
		getProductsFn: func(context.Context, []string) (map[string]Product, error) {
			return products, nil
		},
	}
}

func newTestPricingEngine(t *testing.T, deps PricingEngineDeps) PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(deps)
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPricingEngineComputesBreakdown(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Name: "Karité Soap", Price: 400, IsVisible: true},
			"prod-2": {ID: "prod-2", Name: "Shea Butter", Price: 200, IsVisible: true},
		}),
		Config: PricingConfig{
			Currency:     "XOF",
			TaxRate:      0.1,
			ShippingFlat: 50,
		},
	})

	breakdown, err := engine.Price(context.Background(), PricingCommand{
		Items: []OrderItemInput{
			{ProductRef: "prod-1", Quantity: 2},
			{ProductRef: "prod-2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if !approxEqual(breakdown.ItemsPrice, 1000) {
		t.Fatalf("items price = %v, want 1000", breakdown.ItemsPrice)
	}
	if !approxEqual(breakdown.TaxPrice, 100) {
		t.Fatalf("tax price = %v, want 100", breakdown.TaxPrice)
	}
	if !approxEqual(breakdown.ShippingPrice, 50) {
		t.Fatalf("shipping price = %v, want 50", breakdown.ShippingPrice)
	}
	if !approxEqual(breakdown.Total, 1150) {
		t.Fatalf("total = %v, want 1150", breakdown.Total)
	}
	if breakdown.Currency != "XOF" {
		t.Fatalf("currency = %q, want XOF", breakdown.Currency)
	}
	if len(breakdown.Items) != 2 || !approxEqual(breakdown.Items[0].Subtotal, 800) {
		t.Fatalf("unexpected line breakdown %+v", breakdown.Items)
	}
}

func TestPricingEngineAppliesCouponBeforeTax(t *testing.T) {
	coupons := &stubCouponService{
		validateFn: func(_ context.Context, code string) (AppliedCoupon, error) {
			return AppliedCoupon{Code: "SAHEL10", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 1000, IsVisible: true},
		}),
		Coupons: coupons,
		Config: PricingConfig{
			TaxRate:      0.1,
			ShippingFlat: 50,
		},
	})

	breakdown, err := engine.Price(context.Background(), PricingCommand{
		Items:      []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
		CouponCode: "sahel10",
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if !approxEqual(breakdown.Discount, 100) {
		t.Fatalf("discount = %v, want 100", breakdown.Discount)
	}
	// Tax is computed on the discounted base: (1000-100)*0.1 = 90.
	if !approxEqual(breakdown.TaxPrice, 90) {
		t.Fatalf("tax price = %v, want 90", breakdown.TaxPrice)
	}
	if !approxEqual(breakdown.Total, 1040) {
		t.Fatalf("total = %v, want 1040", breakdown.Total)
	}
	if breakdown.Coupon == nil || breakdown.Coupon.Code != "SAHEL10" {
		t.Fatalf("expected coupon snapshot on breakdown, got %+v", breakdown.Coupon)
	}
}

func TestPricingEngineAppliesFixedDiscount(t *testing.T) {
	coupons := &stubCouponService{
		validateFn: func(context.Context, string) (AppliedCoupon, error) {
			return AppliedCoupon{Code: "FLAT300", DiscountType: domain.DiscountTypeFixed, DiscountValue: 300}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 1000, IsVisible: true},
		}),
		Coupons: coupons,
		Config: PricingConfig{
			TaxRate:      0.1,
			ShippingFlat: 50,
		},
	})

	breakdown, err := engine.Price(context.Background(), PricingCommand{
		Items:      []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
		CouponCode: "FLAT300",
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if !approxEqual(breakdown.Discount, 300) {
		t.Fatalf("discount = %v, want 300", breakdown.Discount)
	}
	// Tax on the discounted base: (1000-300)*0.1 = 70.
	if !approxEqual(breakdown.TaxPrice, 70) {
		t.Fatalf("tax price = %v, want 70", breakdown.TaxPrice)
	}
	if !approxEqual(breakdown.Total, 820) {
		t.Fatalf("total = %v, want 820", breakdown.Total)
	}
	if breakdown.Coupon == nil || breakdown.Coupon.DiscountType != domain.DiscountTypeFixed {
		t.Fatalf("expected fixed coupon snapshot, got %+v", breakdown.Coupon)
	}
}

func TestPricingEngineClampsFixedDiscountToItemsPrice(t *testing.T) {
	coupons := &stubCouponService{
		validateFn: func(context.Context, string) (AppliedCoupon, error) {
			return AppliedCoupon{Code: "FLAT9000", DiscountType: domain.DiscountTypeFixed, DiscountValue: 9000}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 400, IsVisible: true},
		}),
		Coupons: coupons,
		Config:  PricingConfig{ShippingFlat: 50},
	})

	breakdown, err := engine.Price(context.Background(), PricingCommand{
		Items:      []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
		CouponCode: "FLAT9000",
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if !approxEqual(breakdown.Discount, 400) {
		t.Fatalf("discount = %v, want clamp at 400", breakdown.Discount)
	}
	if !approxEqual(breakdown.Total, 50) {
		t.Fatalf("total = %v, want 50 (shipping only)", breakdown.Total)
	}
}

func TestPricingEngineFreeShippingThreshold(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 5000, IsVisible: true},
		}),
		Config: PricingConfig{
			ShippingFlat:      50,
			FreeShippingAbove: 5000,
		},
	})

	breakdown, err := engine.Price(context.Background(), PricingCommand{
		Items: []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !approxEqual(breakdown.ShippingPrice, 0) {
		t.Fatalf("expected free shipping above threshold, got %v", breakdown.ShippingPrice)
	}
}

func TestPricingEngineRejectsHiddenAndUnknownProducts(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 400, IsVisible: false},
		}),
		Config: PricingConfig{},
	})

	if _, err := engine.Price(context.Background(), PricingCommand{
		Items: []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
	}); !errors.Is(err, ErrPricingProductUnavailable) {
		t.Fatalf("hidden product: expected ErrPricingProductUnavailable, got %v", err)
	}

	if _, err := engine.Price(context.Background(), PricingCommand{
		Items: []OrderItemInput{{ProductRef: "prod-missing", Quantity: 1}},
	}); !errors.Is(err, ErrPricingProductUnavailable) {
		t.Fatalf("unknown product: expected ErrPricingProductUnavailable, got %v", err)
	}
}

func TestPricingEngineValidatesItems(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock:  catalogStock(map[string]Product{}),
		Config: PricingConfig{},
	})

	cases := []struct {
		name string
		cmd  PricingCommand
	}{
		{"no items", PricingCommand{}},
		{"blank ref", PricingCommand{Items: []OrderItemInput{{ProductRef: " ", Quantity: 1}}}},
		{"zero quantity", PricingCommand{Items: []OrderItemInput{{ProductRef: "prod-1", Quantity: 0}}}},
	}

	for _, tc := range cases {
		if _, err := engine.Price(context.Background(), tc.cmd); !errors.Is(err, ErrPricingInvalidInput) {
			t.Fatalf("%s: expected ErrPricingInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestPricingEngineRejectsCouponWithoutService(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 400, IsVisible: true},
		}),
		Config: PricingConfig{},
	})

	if _, err := engine.Price(context.Background(), PricingCommand{
		Items:      []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
		CouponCode: "SAHEL10",
	}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
	}
}

func TestPricingEnginePropagatesCouponErrors(t *testing.T) {
	coupons := &stubCouponService{
		validateFn: func(context.Context, string) (AppliedCoupon, error) {
			return AppliedCoupon{}, ErrCouponExpired
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Stock: catalogStock(map[string]Product{
			"prod-1": {ID: "prod-1", Price: 400, IsVisible: true},
		}),
		Coupons: coupons,
		Config:  PricingConfig{},
	})

	if _, err := engine.Price(context.Background(), PricingCommand{
		Items:      []OrderItemInput{{ProductRef: "prod-1", Quantity: 1}},
		CouponCode: "OLD",
	}); !errors.Is(err, ErrCouponExpired) {
		t.Fatalf("expected ErrCouponExpired, got %v", err)
	}
}
