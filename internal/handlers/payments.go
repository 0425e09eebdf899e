package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sahel-market/api/internal/platform/pagination"
	"github.com/sahel-market/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookLogger mirrors the service logger shape for webhook processing.
type WebhookLogger func(ctx context.Context, msg string, fields map[string]any)

// PaymentWebhookHandlers receives provider callbacks. Callback payloads carry
// no authority; the transaction ID is extracted and reconciliation re-queries
// the provider for the real outcome.
type PaymentWebhookHandlers struct {
	payments services.PaymentService
	logger   WebhookLogger
}

// NewPaymentWebhookHandlers constructs the webhook handlers.
func NewPaymentWebhookHandlers(payments services.PaymentService, logger WebhookLogger) *PaymentWebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentWebhookHandlers{payments: payments, logger: logger}
}

// Routes registers the provider callback endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/cinetpay", h.cinetpayNotify)
}

// cinetpayNotify handles payment notifications. The provider retries on
// non-200 responses, so the endpoint acknowledges every delivery it could
// parse far enough to attempt reconciliation; failures are logged and the
// pending-payment sweep picks them up later.
func (h *PaymentWebhookHandlers) cinetpayNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transactionID := extractTransactionID(r)
	if transactionID == "" {
		h.logger(ctx, "webhook.cinetpay.unparseable", map[string]any{
			"contentType": r.Header.Get("Content-Type"),
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.payments == nil {
		h.logger(ctx, "webhook.cinetpay.unavailable", map[string]any{
			"transactionId": transactionID,
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := h.payments.Reconcile(ctx, services.ReconcileCommand{TransactionID: transactionID})
	if err != nil {
		h.logger(ctx, "webhook.cinetpay.reconcile.failed", map[string]any{
			"transactionId": transactionID,
			"error":         err.Error(),
		})
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger(ctx, "webhook.cinetpay.reconciled", map[string]any{
		"transactionId": transactionID,
		"orderRef":      result.OrderID,
		"outcome":       string(result.Outcome),
	})

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"received": true,
		"outcome":  string(result.Outcome),
	})
}

// extractTransactionID pulls the transaction reference out of either the
// form-encoded or the JSON notification shape CinetPay sends.
func extractTransactionID(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		body, err := readLimitedBody(r, maxWebhookBodySize)
		if err != nil {
			return ""
		}
		var payload struct {
			TransactionID string `json:"transaction_id"`
			CpmTransID    string `json:"cpm_trans_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return ""
		}
		if id := strings.TrimSpace(payload.CpmTransID); id != "" {
			return id
		}
		return strings.TrimSpace(payload.TransactionID)
	}

	if err := r.ParseForm(); err != nil {
		return ""
	}
	if id := strings.TrimSpace(r.PostFormValue("cpm_trans_id")); id != "" {
		return id
	}
	return strings.TrimSpace(r.PostFormValue("transaction_id"))
}

// PaymentJobHandlers serves the scheduler-invoked maintenance endpoints under
// the internal group. Authentication is enforced by the group middleware.
type PaymentJobHandlers struct {
	payments services.PaymentService
	logger   WebhookLogger
}

// NewPaymentJobHandlers constructs the internal payment job handlers.
func NewPaymentJobHandlers(payments services.PaymentService, logger WebhookLogger) *PaymentJobHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PaymentJobHandlers{payments: payments, logger: logger}
}

// Routes registers the internal payment endpoints.
func (h *PaymentJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments:recheck", h.recheck)
}

func (h *PaymentJobHandlers) recheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{"error": "payment service unavailable"})
		return
	}

	limit := pagination.Size(r.URL.Query().Get("limit"), defaultAdminOrderPageSize, maxAdminOrderPageSize)

	report, err := h.payments.RecheckPending(ctx, services.RecheckCommand{Limit: limit})
	if err != nil {
		h.logger(ctx, "internal.payments.recheck.failed", map[string]any{"error": err.Error()})
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, recheckResponse{
		Inspected: report.Inspected,
		Settled:   report.Settled,
		Failed:    report.Failed,
	})
}
