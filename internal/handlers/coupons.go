package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sahel-market/api/internal/platform/auth"
	"github.com/sahel-market/api/internal/platform/httpx"
	"github.com/sahel-market/api/internal/services"
)

const maxCouponBodySize = 4 * 1024

type validateCouponRequest struct {
	Code string `json:"code"`
}

type validateCouponResponse struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
}

// CouponHandlers validates promo codes at checkout.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

// NewCouponHandlers constructs a new CouponHandlers instance.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{authn: authn, coupons: coupons}
}

// Routes registers the coupon validation endpoint on the API root.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	handler := h.validate
	if h.authn != nil {
		wrapped := h.authn.RequireFirebaseAuth()(http.HandlerFunc(h.validate))
		handler = func(w http.ResponseWriter, req *http.Request) {
			wrapped.ServeHTTP(w, req)
		}
	}
	r.Post("/coupons:validate", handler)
}

func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	body, err := readLimitedBody(r, maxCouponBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req validateCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	coupon, err := h.coupons.Validate(ctx, strings.TrimSpace(req.Code))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCouponInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrCouponNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon code is not valid", http.StatusNotFound))
		case errors.Is(err, services.ErrCouponExpired):
			httpx.WriteError(ctx, w, httpx.NewError("coupon_expired", "coupon code has expired", http.StatusUnprocessableEntity))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to validate coupon", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, validateCouponResponse{
		Code:          coupon.Code,
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
	})
}
