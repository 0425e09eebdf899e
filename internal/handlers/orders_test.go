package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/platform/auth"
	"github.com/sahel-market/api/internal/services"
)

type stubOrderService struct {
	createFn        func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn           func(context.Context, string, services.Actor) (services.Order, error)
	listMineFn      func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	listHistoryFn   func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	listOrdersFn    func(context.Context, services.Actor, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn    func(context.Context, services.OrderTransitionCommand) (services.Order, error)
	cancelOwnFn     func(context.Context, services.CancelOwnOrderCommand) (services.Order, error)
	forceCancelFn   func(context.Context, services.ForceCancelCommand) (services.Order, error)
	setArchivedFn   func(context.Context, services.OrderFlagCommand) (services.Order, error)
	setVisibilityFn func(context.Context, services.OrderFlagCommand) (services.Order, error)
	hideFn          func(context.Context, services.HideOrderCommand) (services.Order, error)
	deleteFn        func(context.Context, string, services.Actor) error
	markPaidFn      func(context.Context, services.MarkPaidCommand) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.getFn(ctx, orderID, actor)
}

func (s *stubOrderService) ListMine(ctx context.Context, buyerRef string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listMineFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listMineFn(ctx, buyerRef, pager)
}

func (s *stubOrderService) ListPurchaseHistory(ctx context.Context, buyerRef string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listHistoryFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listHistoryFn(ctx, buyerRef, pager)
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrdersFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listOrdersFn(ctx, actor, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderTransitionCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) CancelOwn(ctx context.Context, cmd services.CancelOwnOrderCommand) (services.Order, error) {
	if s.cancelOwnFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.cancelOwnFn(ctx, cmd)
}

func (s *stubOrderService) ForceCancel(ctx context.Context, cmd services.ForceCancelCommand) (services.Order, error) {
	if s.forceCancelFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.forceCancelFn(ctx, cmd)
}

func (s *stubOrderService) SetArchived(ctx context.Context, cmd services.OrderFlagCommand) (services.Order, error) {
	if s.setArchivedFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.setArchivedFn(ctx, cmd)
}

func (s *stubOrderService) SetVisibility(ctx context.Context, cmd services.OrderFlagCommand) (services.Order, error) {
	if s.setVisibilityFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.setVisibilityFn(ctx, cmd)
}

func (s *stubOrderService) HideOwn(ctx context.Context, cmd services.HideOrderCommand) (services.Order, error) {
	if s.hideFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.hideFn(ctx, cmd)
}

func (s *stubOrderService) Delete(ctx context.Context, orderID string, actor services.Actor) error {
	if s.deleteFn == nil {
		return errors.New("not implemented")
	}
	return s.deleteFn(ctx, orderID, actor)
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkPaidCommand) (services.Order, error) {
	if s.markPaidFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.markPaidFn(ctx, cmd)
}

type stubPaymentService struct {
	initiateFn  func(context.Context, services.InitiatePaymentCommand) (services.PaymentSession, error)
	reconcileFn func(context.Context, services.ReconcileCommand) (services.ReconcileResult, error)
	statusFn    func(context.Context, string, services.Actor) (services.PaymentStatusReport, error)
	recheckFn   func(context.Context, services.RecheckCommand) (services.RecheckReport, error)
}

func (s *stubPaymentService) Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentSession, error) {
	if s.initiateFn == nil {
		return services.PaymentSession{}, errors.New("not implemented")
	}
	return s.initiateFn(ctx, cmd)
}

func (s *stubPaymentService) Reconcile(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileResult, error) {
	if s.reconcileFn == nil {
		return services.ReconcileResult{}, errors.New("not implemented")
	}
	return s.reconcileFn(ctx, cmd)
}

func (s *stubPaymentService) Status(ctx context.Context, orderID string, actor services.Actor) (services.PaymentStatusReport, error) {
	if s.statusFn == nil {
		return services.PaymentStatusReport{}, errors.New("not implemented")
	}
	return s.statusFn(ctx, orderID, actor)
}

func (s *stubPaymentService) RecheckPending(ctx context.Context, cmd services.RecheckCommand) (services.RecheckReport, error) {
	if s.recheckFn == nil {
		return services.RecheckReport{}, errors.New("not implemented")
	}
	return s.recheckFn(ctx, cmd)
}

func newOrderTestRouter(orders services.OrderService, payments services.PaymentService) chi.Router {
	h := NewOrderHandlers(nil, orders, payments)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func authenticatedRequest(method, target string, body []byte, identity *auth.Identity) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func buyerIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}
}

func sampleOrder() services.Order {
	created := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "06052025-KS-123AB",
		BuyerRef:    "user-1",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductRef: "prod-1", Name: "Karité Soap", Quantity: 2, UnitPrice: 500},
		},
		ShippingAddress: domain.ShippingAddress{
			FullName: "Awa Diallo",
			Line1:    "12 Rue des Manguiers",
			City:     "Niamey",
			Country:  "NE",
			Phone:    "+22790000000",
		},
		ItemsPrice:    1000,
		TaxPrice:      100,
		ShippingPrice: 50,
		TotalPrice:    1150,
		IsVisible:     true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	body := []byte(`{
		"items": [{"product_ref": "prod-1", "quantity": 2}],
		"shipping_address": {
			"full_name": "Awa Diallo",
			"line1": "12 Rue des Manguiers",
			"city": "Niamey",
			"country": "NE",
			"phone": "+22790000000"
		},
		"coupon_code": "SAHEL10"
	}`)
	req := authenticatedRequest(http.MethodPost, "/", body, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BuyerRef != "user-1" || captured.CouponCode != "SAHEL10" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductRef != "prod-1" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	order, ok := resp["order"].(map[string]any)
	if !ok {
		t.Fatalf("expected order object, got %v", resp)
	}
	if order["order_number"] != "06052025-KS-123AB" || order["status"] != "pending" {
		t.Fatalf("unexpected order payload %v", order)
	}
}

func TestOrderHandlersCreateOrderRequiresAuth(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{}, &stubPaymentService{})

	req := authenticatedRequest(http.MethodPost, "/", []byte(`{}`), nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderMapsStockShortage(t *testing.T) {
	orders := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrStockInsufficient
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodPost, "/", []byte(`{"items":[{"product_ref":"p","quantity":1}]}`), buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "stock_insufficient" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestOrderHandlersListMine(t *testing.T) {
	var gotBuyer string
	var gotPager services.Pagination
	orders := &stubOrderService{
		listMineFn: func(_ context.Context, buyerRef string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
			gotBuyer = buyerRef
			gotPager = pager
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder()},
				NextPageToken: "tok-next",
			}, nil
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodGet, "/mine?page_size=5&page_token=tok-prev", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotBuyer != "user-1" || gotPager.PageSize != 5 || gotPager.PageToken != "tok-prev" {
		t.Fatalf("unexpected list call %q %+v", gotBuyer, gotPager)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "tok-next" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersListPurchaseHistory(t *testing.T) {
	var gotBuyer string
	orders := &stubOrderService{
		listHistoryFn: func(_ context.Context, buyerRef string, _ services.Pagination) (domain.CursorPage[services.Order], error) {
			gotBuyer = buyerRef
			hidden := sampleOrder()
			hidden.IsVisible = false
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder(), hidden}}, nil
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodGet, "/mine/history", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotBuyer != "user-1" {
		t.Fatalf("unexpected buyer ref %q", gotBuyer)
	}
	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("history must include hidden orders, got %+v", resp.Items)
	}
}

func TestOrderHandlersHideOrder(t *testing.T) {
	var captured services.HideOrderCommand
	orders := &stubOrderService{
		hideFn: func(_ context.Context, cmd services.HideOrderCommand) (services.Order, error) {
			captured = cmd
			hidden := sampleOrder()
			hidden.IsVisible = false
			return hidden, nil
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodDelete, "/ord_1", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Actor.ID != "user-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlersHideOrderForbidden(t *testing.T) {
	orders := &stubOrderService{
		hideFn: func(context.Context, services.HideOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodDelete, "/ord_1", nil, buyerIdentity("user-2"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderForbidden(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string, services.Actor) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodGet, "/ord_1", nil, buyerIdentity("user-2"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	var captured services.CancelOwnOrderCommand
	orders := &stubOrderService{
		cancelOwnFn: func(_ context.Context, cmd services.CancelOwnOrderCommand) (services.Order, error) {
			captured = cmd
			cancelled := sampleOrder()
			cancelled.Status = domain.OrderStatusCancelled
			return cancelled, nil
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodPost, "/ord_1:cancel", []byte(`{"reason":"changed my mind"}`), buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Reason != "changed my mind" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestOrderHandlersCancelOrderInvalidState(t *testing.T) {
	orders := &stubOrderService{
		cancelOwnFn: func(context.Context, services.CancelOwnOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderTestRouter(orders, &stubPaymentService{})

	req := authenticatedRequest(http.MethodPost, "/ord_1:cancel", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestOrderHandlersInitiatePayment(t *testing.T) {
	var captured services.InitiatePaymentCommand
	payments := &stubPaymentService{
		initiateFn: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentSession, error) {
			captured = cmd
			return services.PaymentSession{
				OrderID:       cmd.OrderID,
				TransactionID: cmd.OrderID,
				PaymentURL:    "https://checkout.example/pay",
				Amount:        1150,
				Currency:      "XOF",
			}, nil
		},
	}
	router := newOrderTestRouter(&stubOrderService{}, payments)

	req := authenticatedRequest(http.MethodPost, "/ord_1/payments:initiate", []byte(`{"return_url":"https://shop.example/thanks"}`), buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.ReturnURL != "https://shop.example/thanks" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp paymentSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentURL == "" || resp.Amount != 1150 {
		t.Fatalf("unexpected session %+v", resp)
	}
}

func TestOrderHandlersInitiatePaymentProviderDown(t *testing.T) {
	payments := &stubPaymentService{
		initiateFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentSession, error) {
			return services.PaymentSession{}, services.ErrPaymentProviderUnavailable
		},
	}
	router := newOrderTestRouter(&stubOrderService{}, payments)

	req := authenticatedRequest(http.MethodPost, "/ord_1/payments:initiate", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestOrderHandlersPaymentStatus(t *testing.T) {
	payments := &stubPaymentService{
		statusFn: func(_ context.Context, orderID string, _ services.Actor) (services.PaymentStatusReport, error) {
			return services.PaymentStatusReport{
				OrderID:        orderID,
				IsPaid:         true,
				Status:         domain.PaymentStatusSucceeded,
				ProviderStatus: "ACCEPTED",
				Amount:         1150,
				Currency:       "XOF",
			}, nil
		},
	}
	router := newOrderTestRouter(&stubOrderService{}, payments)

	req := authenticatedRequest(http.MethodGet, "/ord_1/payments/status", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp paymentStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsPaid || resp.Status != "succeeded" || resp.ProviderStatus != "ACCEPTED" {
		t.Fatalf("unexpected report %+v", resp)
	}
}

func TestOrderHandlersServiceUnavailable(t *testing.T) {
	router := newOrderTestRouter(nil, nil)

	req := authenticatedRequest(http.MethodPost, "/", []byte(`{}`), buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
