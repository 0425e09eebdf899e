package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/services"
)

type stubCouponService struct {
	validateFn func(ctx context.Context, code string) (services.AppliedCoupon, error)
}

func (s *stubCouponService) Validate(ctx context.Context, code string) (services.AppliedCoupon, error) {
	if s.validateFn == nil {
		return services.AppliedCoupon{}, services.ErrCouponNotFound
	}
	return s.validateFn(ctx, code)
}

func newCouponTestRouter(coupons services.CouponService) chi.Router {
	h := NewCouponHandlers(nil, coupons)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestCouponsValidate(t *testing.T) {
	coupons := &stubCouponService{
		validateFn: func(_ context.Context, code string) (services.AppliedCoupon, error) {
			if code != "SAHEL10" {
				t.Fatalf("unexpected code %q", code)
			}
			return services.AppliedCoupon{Code: "SAHEL10", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10}, nil
		},
	}
	router := newCouponTestRouter(coupons)

	req := authenticatedRequest(http.MethodPost, "/coupons:validate",
		[]byte(`{"code": " SAHEL10 "}`), buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp validateCouponResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "SAHEL10" || resp.DiscountType != "percentage" || resp.DiscountValue != 10 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCouponsValidateMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown code", services.ErrCouponNotFound, http.StatusNotFound, "coupon_not_found"},
		{"expired campaign", services.ErrCouponExpired, http.StatusUnprocessableEntity, "coupon_expired"},
		{"blank code", services.ErrCouponInvalidInput, http.StatusBadRequest, "invalid_request"},
	}

	for _, tc := range cases {
		router := newCouponTestRouter(&stubCouponService{
			validateFn: func(context.Context, string) (services.AppliedCoupon, error) {
				return services.AppliedCoupon{}, tc.err
			},
		})

		req := authenticatedRequest(http.MethodPost, "/coupons:validate",
			[]byte(`{"code": "X"}`), buyerIdentity("user-1"))
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != tc.wantStatus {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.wantStatus, rr.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &body)
		if body["error"] != tc.wantCode {
			t.Fatalf("%s: expected error %q, got %v", tc.name, tc.wantCode, body["error"])
		}
	}
}

func TestCouponsValidateRequiresAuth(t *testing.T) {
	router := newCouponTestRouter(&stubCouponService{})

	req := httptest.NewRequest(http.MethodPost, "/coupons:validate", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
