package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/platform/auth"
	"github.com/sahel-market/api/internal/services"
)

type stubUserDirectory struct {
	getProfileFn func(ctx context.Context, userID string) (services.UserProfile, bool, error)
}

func (s *stubUserDirectory) GetProfile(ctx context.Context, userID string) (services.UserProfile, bool, error) {
	if s.getProfileFn == nil {
		return services.UserProfile{}, false, errors.New("getProfile not stubbed")
	}
	return s.getProfileFn(ctx, userID)
}

func newAdminTestRouter(orders services.OrderService, payments services.PaymentService, users services.UserDirectory) chi.Router {
	h := NewAdminOrderHandlers(nil, orders, payments, users)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func staffIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleStaff}}
}

func adminIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleAdmin}}
}

func TestAdminOrdersListBuildsFilter(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listOrdersFn: func(_ context.Context, _ services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}}, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodGet,
		"/orders?status=pending&status=confirmed&is_paid=false&buyer_ref=user-1&is_archived=true&page_size=10",
		nil, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BuyerRef != "user-1" {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.IsArchived == nil || !*captured.IsArchived {
		t.Fatalf("expected archived-only filter, got %v", captured.IsArchived)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPending || captured.Status[1] != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
	if captured.IsPaid == nil || *captured.IsPaid {
		t.Fatalf("expected is_paid=false filter, got %v", captured.IsPaid)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected pagination %+v", captured.Pagination)
	}
}

func TestAdminOrdersListDefaultsToActiveOrders(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listOrdersFn: func(_ context.Context, _ services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodGet, "/orders", nil, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	// Without is_archived the listing shows active orders only, keeping the
	// two views disjoint.
	if captured.IsArchived == nil || *captured.IsArchived {
		t.Fatalf("expected active-only default filter, got %v", captured.IsArchived)
	}
}

func TestAdminOrdersGetIncludesBuyerProfile(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string, services.Actor) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	users := &stubUserDirectory{
		getProfileFn: func(_ context.Context, userID string) (services.UserProfile, bool, error) {
			return services.UserProfile{ID: userID, DisplayName: "Awa Diallo", Email: "awa@example.com", IsActive: true}, true, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, users)

	req := authenticatedRequest(http.MethodGet, "/orders/ord_1", nil, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp adminOrderDetailResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Buyer == nil || resp.Buyer.DisplayName != "Awa Diallo" {
		t.Fatalf("expected buyer profile, got %+v", resp.Buyer)
	}
}

func TestAdminOrdersGetOmitsDeletedBuyer(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string, services.Actor) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	users := &stubUserDirectory{
		getProfileFn: func(context.Context, string) (services.UserProfile, bool, error) {
			return services.UserProfile{}, false, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, users)

	req := authenticatedRequest(http.MethodGet, "/orders/ord_1", nil, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for an order with a deleted buyer, got %d", rr.Code)
	}
	var resp adminOrderDetailResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Buyer != nil {
		t.Fatalf("expected no buyer payload, got %+v", resp.Buyer)
	}
}

func TestAdminOrdersTransition(t *testing.T) {
	var captured services.OrderTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderTransitionCommand) (services.Order, error) {
			captured = cmd
			confirmed := sampleOrder()
			confirmed.Status = domain.OrderStatusConfirmed
			return confirmed, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:transition",
		[]byte(`{"target_status": "Confirmed", "reason": "stock checked"}`), staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Reason != "stock checked" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
}

func TestAdminOrdersTransitionRejectsIllegalEdge(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:transition",
		[]byte(`{"target_status": "delivered"}`), staffIdentity("staff-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminOrdersMarkPaidDefaultsProvider(t *testing.T) {
	var captured services.MarkPaidCommand
	orders := &stubOrderService{
		markPaidFn: func(_ context.Context, cmd services.MarkPaidCommand) (services.Order, error) {
			captured = cmd
			paid := sampleOrder()
			paid.IsPaid = true
			return paid, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:mark-paid",
		[]byte(`{"transaction_id": "tx-1", "amount": 1150, "currency": "XOF"}`), adminIdentity("admin-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Result.Provider != "manual" {
		t.Fatalf("expected provider manual, got %q", captured.Result.Provider)
	}
	if captured.Result.Status != domain.PaymentStatusSucceeded || captured.Result.Amount != 1150 {
		t.Fatalf("unexpected result %+v", captured.Result)
	}
}

func TestAdminOrdersForceCancel(t *testing.T) {
	var captured services.ForceCancelCommand
	orders := &stubOrderService{
		forceCancelFn: func(_ context.Context, cmd services.ForceCancelCommand) (services.Order, error) {
			captured = cmd
			cancelled := sampleOrder()
			cancelled.Status = domain.OrderStatusCancelled
			return cancelled, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:cancel",
		[]byte(`{"reason": "fraud suspected"}`), adminIdentity("admin-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Reason != "fraud suspected" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestAdminOrdersArchiveFlag(t *testing.T) {
	var captured services.OrderFlagCommand
	orders := &stubOrderService{
		setArchivedFn: func(_ context.Context, cmd services.OrderFlagCommand) (services.Order, error) {
			captured = cmd
			archived := sampleOrder()
			archived.IsArchived = cmd.Value
			return archived, nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:archive",
		[]byte(`{"value": true}`), adminIdentity("admin-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !captured.Value {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestAdminOrdersDelete(t *testing.T) {
	var deletedID string
	orders := &stubOrderService{
		deleteFn: func(_ context.Context, orderID string, _ services.Actor) error {
			deletedID = orderID
			return nil
		},
	}
	router := newAdminTestRouter(orders, &stubPaymentService{}, nil)

	req := authenticatedRequest(http.MethodDelete, "/orders/ord_1", nil, adminIdentity("admin-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if deletedID != "ord_1" {
		t.Fatalf("unexpected order id %q", deletedID)
	}
}

func TestAdminOrdersRecheckRequiresMarkPaidCapability(t *testing.T) {
	payments := &stubPaymentService{
		recheckFn: func(context.Context, services.RecheckCommand) (services.RecheckReport, error) {
			return services.RecheckReport{Inspected: 2, Settled: 1}, nil
		},
	}
	router := newAdminTestRouter(&stubOrderService{}, payments, nil)

	// Staff carry the transition capability only; rechecking payments is an
	// admin operation.
	req := authenticatedRequest(http.MethodPost, "/payments:recheck", nil, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rr.Code)
	}

	req = authenticatedRequest(http.MethodPost, "/payments:recheck", nil, adminIdentity("admin-1"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}

	var resp recheckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Inspected != 2 || resp.Settled != 1 {
		t.Fatalf("unexpected report %+v", resp)
	}
}
