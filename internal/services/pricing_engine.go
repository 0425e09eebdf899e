package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/sahel-market/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals malformed pricing input.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductUnavailable indicates a line references a hidden or unknown product.
	ErrPricingProductUnavailable = errors.New("pricing: product unavailable")
)

// PricingConfig carries the tariff knobs applied on top of catalog prices.
type PricingConfig struct {
	Currency          string
	TaxRate           float64
	ShippingFlat      float64
	FreeShippingAbove float64
}

// PricingEngineDeps bundles collaborators for the pricing engine.
type PricingEngineDeps struct {
	Stock   StockService
	Coupons CouponService
	Config  PricingConfig
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	stock   StockService
	coupons CouponService
	config  PricingConfig
	logger  func(context.Context, string, map[string]any)
}

// NewPricingEngine wires dependencies into a concrete PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Stock == nil {
		return nil, errors.New("pricing engine: stock service is required")
	}
	if deps.Config.TaxRate < 0 || deps.Config.TaxRate >= 1 {
		return nil, errors.New("pricing engine: tax rate must be in [0,1)")
	}
	if deps.Config.ShippingFlat < 0 {
		return nil, errors.New("pricing engine: shipping flat fee must not be negative")
	}

	config := deps.Config
	if config.Currency == "" {
		config.Currency = "XOF"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingEngine{
		stock:   deps.Stock,
		coupons: deps.Coupons,
		config:  config,
		logger:  logger,
	}, nil
}

// Price recomputes the full breakdown from the catalog. Client-announced
// prices never enter the calculation.
func (e *pricingEngine) Price(ctx context.Context, cmd PricingCommand) (PricingBreakdown, error) {
	if len(cmd.Items) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: at least one item is required", ErrPricingInvalidInput)
	}

	refs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		ref := strings.TrimSpace(item.ProductRef)
		if ref == "" {
			return PricingBreakdown{}, fmt.Errorf("%w: item product ref is required", ErrPricingInvalidInput)
		}
		if item.Quantity <= 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: quantity for %s must be positive", ErrPricingInvalidInput, ref)
		}
		refs = append(refs, ref)
	}

	products, err := e.stock.GetProducts(ctx, refs)
	if err != nil {
		return PricingBreakdown{}, err
	}

	var itemsPrice float64
	lines := make([]ItemPricingBreakdown, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		ref := strings.TrimSpace(item.ProductRef)
		product, ok := products[ref]
		if !ok {
			return PricingBreakdown{}, fmt.Errorf("%w: %s", ErrPricingProductUnavailable, ref)
		}
		if !product.IsVisible {
			return PricingBreakdown{}, fmt.Errorf("%w: %s is not for sale", ErrPricingProductUnavailable, ref)
		}
		subtotal := product.Price * float64(item.Quantity)
		itemsPrice += subtotal
		lines = append(lines, ItemPricingBreakdown{
			ProductRef: ref,
			UnitPrice:  product.Price,
			Quantity:   item.Quantity,
			Subtotal:   subtotal,
		})
	}

	var discount float64
	var applied *AppliedCoupon
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		if e.coupons == nil {
			return PricingBreakdown{}, fmt.Errorf("%w: coupon codes are not accepted", ErrPricingInvalidInput)
		}
		coupon, err := e.coupons.Validate(ctx, code)
		if err != nil {
			return PricingBreakdown{}, err
		}
		switch coupon.DiscountType {
		case domain.DiscountTypeFixed:
			discount = coupon.DiscountValue
			if discount > itemsPrice {
				discount = itemsPrice
			}
		default:
			discount = itemsPrice * coupon.DiscountValue / 100
		}
		applied = &coupon
	}

	discounted := itemsPrice - discount
	taxPrice := discounted * e.config.TaxRate

	shippingPrice := e.config.ShippingFlat
	if e.config.FreeShippingAbove > 0 && discounted >= e.config.FreeShippingAbove {
		shippingPrice = 0
	}

	return PricingBreakdown{
		Currency:      e.config.Currency,
		ItemsPrice:    itemsPrice,
		TaxPrice:      taxPrice,
		ShippingPrice: shippingPrice,
		Discount:      discount,
		Coupon:        applied,
		Total:         discounted + taxPrice + shippingPrice,
		Items:         lines,
	}, nil
}
