package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/platform/auth"
	"github.com/sahel-market/api/internal/platform/httpx"
	"github.com/sahel-market/api/internal/platform/pagination"
	"github.com/sahel-market/api/internal/services"
)

const (
	defaultAdminOrderPageSize = 50
	maxAdminOrderPageSize     = 200
	maxAdminOrderBodySize     = 16 * 1024
)

type transitionOrderRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
}

type orderFlagRequest struct {
	Value bool `json:"value"`
}

type markPaidRequest struct {
	TransactionID  string  `json:"transaction_id"`
	Provider       string  `json:"provider"`
	ProviderStatus string  `json:"provider_status"`
	Amount         int64   `json:"amount"`
	Currency       string  `json:"currency"`
	Method         string  `json:"method"`
}

type adminOrderDetailResponse struct {
	Order orderPayload        `json:"order"`
	Buyer *buyerProfilePayload `json:"buyer,omitempty"`
}

type buyerProfilePayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
}

type recheckResponse struct {
	Inspected int `json:"inspected"`
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
}

// AdminOrderHandlers exposes the back-office order management endpoints.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	users    services.UserDirectory
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, users services.UserDirectory) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		users:    users,
	}
}

// Routes registers the /admin/orders endpoints. Only staff and admin roles are
// admitted; per-operation capability checks happen in the service layer.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(services.RoleStaff, services.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:transition", h.transitionOrder)
	r.Post("/orders/{orderID}:cancel", h.forceCancel)
	r.Post("/orders/{orderID}:archive", h.setArchived)
	r.Post("/orders/{orderID}:visibility", h.setVisibility)
	r.Post("/orders/{orderID}:mark-paid", h.markPaid)
	r.Delete("/orders/{orderID}", h.deleteOrder)
	r.Post("/payments:recheck", h.recheckPayments)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	pager, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultAdminOrderPageSize,
		MaxPageSize:     maxAdminOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	// The active and archived lists are disjoint: the default view shows
	// active orders only, and is_archived=true selects the archive instead.
	archived := query.Get("is_archived") == "true"

	filter := services.OrderListFilter{
		BuyerRef:   strings.TrimSpace(query.Get("buyer_ref")),
		IsArchived: &archived,
		Pagination: services.Pagination{
			PageSize:  pager.PageSize,
			PageToken: pager.PageToken,
		},
	}

	for _, status := range parseFilterValues(query["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(status))
	}

	if raw := strings.TrimSpace(query.Get("is_paid")); raw != "" {
		paid := raw == "true"
		filter.IsPaid = &paid
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after "+err.Error(), http.StatusBadRequest))
			return
		}
		filter.CreatedAfter = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before "+err.Error(), http.StatusBadRequest))
			return
		}
		filter.CreatedBefore = &ts
	}

	page, err := h.orders.ListOrders(ctx, actorFromIdentity(identity), filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	response := adminOrderDetailResponse{Order: buildOrderPayload(order)}
	if h.users != nil {
		// Orders carry weak buyer references; a deleted account is not an error.
		profile, found, err := h.users.GetProfile(ctx, order.BuyerRef)
		if err == nil && found {
			response.Buyer = &buyerProfilePayload{
				ID:          profile.ID,
				DisplayName: profile.DisplayName,
				Email:       profile.Email,
				IsActive:    profile.IsActive,
			}
		}
	}

	writeJSONResponse(w, http.StatusOK, response)
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.requireOrderRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderTransitionCommand{
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.TargetStatus))),
		Actor:        actorFromIdentity(identity),
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) forceCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.requireOrderRequest(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err == nil {
		if unmarshalErr := json.Unmarshal(body, &req); unmarshalErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.ForceCancel(ctx, services.ForceCancelCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) setArchived(w http.ResponseWriter, r *http.Request) {
	h.applyFlag(w, r, func(ctx context.Context, cmd services.OrderFlagCommand) (services.Order, error) {
		return h.orders.SetArchived(ctx, cmd)
	})
}

func (h *AdminOrderHandlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	h.applyFlag(w, r, func(ctx context.Context, cmd services.OrderFlagCommand) (services.Order, error) {
		return h.orders.SetVisibility(ctx, cmd)
	})
}

func (h *AdminOrderHandlers) applyFlag(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, cmd services.OrderFlagCommand) (services.Order, error)) {
	ctx := r.Context()
	identity, orderID, ok := h.requireOrderRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req orderFlagRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := apply(ctx, services.OrderFlagCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
		Value:   req.Value,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.requireOrderRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req markPaidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = "manual"
	}

	order, err := h.orders.MarkPaid(ctx, services.MarkPaidCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
		Result: services.PaymentResult{
			TransactionID:  strings.TrimSpace(req.TransactionID),
			Provider:       provider,
			ProviderStatus: strings.TrimSpace(req.ProviderStatus),
			Status:         domain.PaymentStatusSucceeded,
			Amount:         req.Amount,
			Currency:       strings.TrimSpace(req.Currency),
			Method:         strings.TrimSpace(req.Method),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, orderID, ok := h.requireOrderRequest(w, r)
	if !ok {
		return
	}

	if err := h.orders.Delete(ctx, orderID, actorFromIdentity(identity)); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminOrderHandlers) recheckPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !actorFromIdentity(identity).Capabilities.Has(services.CapabilityMarkPaid) {
		httpx.WriteError(ctx, w, httpx.NewError("payment_forbidden", "not allowed to recheck payments", http.StatusForbidden))
		return
	}

	limit := pagination.Size(r.URL.Query().Get("limit"), defaultAdminOrderPageSize, maxAdminOrderPageSize)

	report, err := h.payments.RecheckPending(ctx, services.RecheckCommand{Limit: limit})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, recheckResponse{
		Inspected: report.Inspected,
		Settled:   report.Settled,
		Failed:    report.Failed,
	})
}

func (h *AdminOrderHandlers) requireOrderRequest(w http.ResponseWriter, r *http.Request) (*auth.Identity, string, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, "", false
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return nil, "", false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return nil, "", false
	}

	return identity, orderID, true
}
