package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/payments"
	"github.com/sahel-market/api/internal/repositories"
)

const defaultRecheckLimit = 50

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates no order matches the transaction.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentInvalidState indicates the order cannot accept a payment.
	ErrPaymentInvalidState = errors.New("payment: invalid order state")
	// ErrPaymentForbidden indicates the actor may not act on the order.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentProviderUnavailable indicates the gateway could not be reached.
	ErrPaymentProviderUnavailable = errors.New("payment: provider unavailable")
)

// reconcileActor is the internal principal used when the webhook path records
// a verified payment. It carries only the mark-paid capability.
var reconcileActor = Actor{
	ID:           "system:payments",
	Capabilities: CapabilitySet{CapabilityMarkPaid: true},
}

// PaymentServiceDeps bundles collaborators for the payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Lifecycle     OrderService
	Provider      payments.Provider
	Notifications NotificationDispatcher
	Currency      string
	ReturnURL     string
	NotifyURL     string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	lifecycle     OrderService
	provider      payments.Provider
	notifications NotificationDispatcher
	currency      string
	returnURL     string
	notifyURL     string
	clock         func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: payment provider is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "XOF"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:        deps.Orders,
		lifecycle:     deps.Lifecycle,
		provider:      deps.Provider,
		notifications: deps.Notifications,
		currency:      currency,
		returnURL:     strings.TrimSpace(deps.ReturnURL),
		notifyURL:     strings.TrimSpace(deps.NotifyURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Initiate opens a provider checkout for an unpaid pending order. The charged
// amount is derived from the stored total, never from the request.
func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentSession{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return PaymentSession{}, err
	}

	if !s.canActOnOrder(order, cmd.Actor) {
		return PaymentSession{}, fmt.Errorf("%w: order %s", ErrPaymentForbidden, orderID)
	}
	if order.IsPaid {
		return PaymentSession{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentInvalidState, orderID)
	}
	if order.Status != domain.OrderStatusPending && order.Status != domain.OrderStatusConfirmed {
		return PaymentSession{}, fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidState, orderID, order.Status)
	}

	amount := domain.RoundAmount(order.TotalPrice)
	if amount <= 0 {
		return PaymentSession{}, fmt.Errorf("%w: order total must be positive", ErrPaymentInvalidState)
	}

	returnURL := strings.TrimSpace(cmd.ReturnURL)
	if returnURL == "" {
		returnURL = s.returnURL
	}
	notifyURL := strings.TrimSpace(cmd.NotifyURL)
	if notifyURL == "" {
		notifyURL = s.notifyURL
	}

	session, err := s.provider.CreateCheckout(ctx, payments.CheckoutRequest{
		TransactionID: order.ID,
		Amount:        amount,
		Currency:      s.currency,
		Description:   "Order " + order.OrderNumber,
		CustomerID:    order.BuyerRef,
		ReturnURL:     returnURL,
		NotifyURL:     notifyURL,
	})
	if err != nil {
		return PaymentSession{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	s.logger(ctx, "payment.checkout.initiated", map[string]any{
		"order":    order.ID,
		"amount":   amount,
		"currency": session.Currency,
	})

	return PaymentSession{
		OrderID:       order.ID,
		TransactionID: session.TransactionID,
		PaymentURL:    session.PaymentURL,
		Amount:        amount,
		Currency:      session.Currency,
	}, nil
}

// Reconcile settles one webhook delivery. The callback body is only used to
// locate the order; every payment fact is re-fetched from the provider, and
// a settled order makes redelivery a no-op.
func (s *paymentService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: transaction id is required", ErrPaymentInvalidInput)
	}

	order, err := s.findOrder(ctx, transactionID)
	if err != nil {
		return ReconcileResult{}, err
	}

	if order.IsPaid {
		return ReconcileResult{
			OrderID:       order.ID,
			Outcome:       ReconcileOutcomeAlreadyPaid,
			Status:        domain.PaymentStatusSucceeded,
			AmountMatched: true,
		}, nil
	}

	details, err := s.provider.CheckTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			return ReconcileResult{OrderID: order.ID, Outcome: ReconcileOutcomePending, Status: domain.PaymentStatusPending}, nil
		}
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	switch details.Status {
	case payments.StatusSucceeded:
		return s.settle(ctx, order, details)
	case payments.StatusFailed:
		s.logger(ctx, "payment.reconcile.failed", map[string]any{
			"order":          order.ID,
			"providerStatus": details.ProviderStatus,
		})
		return ReconcileResult{OrderID: order.ID, Outcome: ReconcileOutcomeFailed, Status: domain.PaymentStatusFailed}, nil
	default:
		return ReconcileResult{OrderID: order.ID, Outcome: ReconcileOutcomePending, Status: domain.PaymentStatusPending}, nil
	}
}

// settle records a successful provider outcome, guarding the amount first.
// Only the exact rounded total settles; an overpayment is as suspect as a
// short one and goes to a human instead of the order record.
func (s *paymentService) settle(ctx context.Context, order Order, details payments.TransactionDetails) (ReconcileResult, error) {
	expected := domain.RoundAmount(order.TotalPrice)
	if details.Amount != expected {
		s.alertAmountMismatch(ctx, order, details, expected)
		return ReconcileResult{
			OrderID: order.ID,
			Outcome: ReconcileOutcomeAmountMismatch,
			Status:  domain.PaymentStatusPending,
		}, nil
	}

	verifiedAt := s.clock()
	if details.SettledAt != nil {
		verifiedAt = *details.SettledAt
	}

	_, err := s.lifecycle.MarkPaid(ctx, MarkPaidCommand{
		OrderID: order.ID,
		Actor:   reconcileActor,
		Result: domain.PaymentResult{
			TransactionID:  details.TransactionID,
			Provider:       details.Provider,
			ProviderStatus: details.ProviderStatus,
			Status:         domain.PaymentStatusSucceeded,
			Amount:         details.Amount,
			Currency:       details.Currency,
			Method:         details.Method,
			VerifiedAt:     verifiedAt,
		},
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	s.notifyPaid(ctx, order, details)
	s.logger(ctx, "payment.reconcile.settled", map[string]any{
		"order":  order.ID,
		"amount": details.Amount,
		"method": details.Method,
	})

	return ReconcileResult{
		OrderID:       order.ID,
		Outcome:       ReconcileOutcomePaid,
		Status:        domain.PaymentStatusSucceeded,
		AmountMatched: true,
	}, nil
}

// alertAmountMismatch raises exactly one admin alert per (order, transaction)
// pair. The dispatcher's idempotency key guarantees redeliveries stay silent.
func (s *paymentService) alertAmountMismatch(ctx context.Context, order Order, details payments.TransactionDetails, expected int64) {
	s.logger(ctx, "payment.reconcile.amount_mismatch", map[string]any{
		"order":    order.ID,
		"expected": expected,
		"received": details.Amount,
	})
	if s.notifications == nil {
		return
	}
	_, err := s.notifications.Dispatch(ctx, NotificationCommand{
		Channel: domain.NotificationChannelAdmin,
		Type:    "payment_alert",
		Message: fmt.Sprintf("Payment for order %s settled %d %s but %d was expected.",
			order.OrderNumber, details.Amount, details.Currency, expected),
		Link:           "/admin/orders/" + order.ID,
		IdempotencyKey: fmt.Sprintf("order:%s:amount_mismatch:%s", order.ID, details.TransactionID),
		RealtimeEvent:  RealtimeEventNotification,
	})
	if err != nil {
		s.logger(ctx, "payment.alert.dispatch.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) notifyPaid(ctx context.Context, order Order, details payments.TransactionDetails) {
	if s.notifications == nil {
		return
	}
	messages := []NotificationCommand{
		{
			Channel:        domain.NotificationChannel(order.BuyerRef),
			Type:           "payment_received",
			Message:        fmt.Sprintf("Payment received for order %s.", order.OrderNumber),
			Link:           "/orders/" + order.ID,
			IdempotencyKey: fmt.Sprintf("order:%s:paid:buyer", order.ID),
			RealtimeEvent:  RealtimeEventNotification,
		},
		{
			Channel:        domain.NotificationChannelAdmin,
			Type:           "payment_received",
			Message:        fmt.Sprintf("Order %s paid via %s.", order.OrderNumber, details.Method),
			Link:           "/admin/orders/" + order.ID,
			IdempotencyKey: fmt.Sprintf("order:%s:paid:admin", order.ID),
			RealtimeEvent:  RealtimeEventNotification,
		},
	}
	for _, cmd := range messages {
		if _, err := s.notifications.Dispatch(ctx, cmd); err != nil {
			s.logger(ctx, "payment.notify.failed", map[string]any{
				"order":   order.ID,
				"channel": string(cmd.Channel),
				"error":   err.Error(),
			})
		}
	}
}

// Status reports the current payment state. Unpaid orders trigger a live
// provider check so the storefront can poll after returning from checkout.
func (s *paymentService) Status(ctx context.Context, orderID string, actor Actor) (PaymentStatusReport, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentStatusReport{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return PaymentStatusReport{}, err
	}
	if !s.canActOnOrder(order, actor) {
		return PaymentStatusReport{}, fmt.Errorf("%w: order %s", ErrPaymentForbidden, orderID)
	}

	if order.IsPaid {
		report := PaymentStatusReport{
			OrderID:  order.ID,
			IsPaid:   true,
			Status:   domain.PaymentStatusSucceeded,
			Currency: s.currency,
		}
		if order.PaymentResult != nil {
			report.ProviderStatus = order.PaymentResult.ProviderStatus
			report.Status = order.PaymentResult.Status
			report.Amount = order.PaymentResult.Amount
			report.Currency = order.PaymentResult.Currency
		}
		return report, nil
	}

	details, err := s.provider.CheckTransaction(ctx, order.ID)
	if err != nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			return PaymentStatusReport{
				OrderID:  order.ID,
				Status:   domain.PaymentStatusPending,
				Currency: s.currency,
			}, nil
		}
		return PaymentStatusReport{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	return PaymentStatusReport{
		OrderID:        order.ID,
		IsPaid:         false,
		ProviderStatus: details.ProviderStatus,
		Status:         paymentStatusFromProvider(details.Status),
		Amount:         details.Amount,
		Currency:       details.Currency,
	}, nil
}

// RecheckPending sweeps unpaid pending orders and reconciles each against the
// provider. Used by the scheduled internal endpoint to catch missed webhooks.
func (s *paymentService) RecheckPending(ctx context.Context, cmd RecheckCommand) (RecheckReport, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultRecheckLimit
	}

	unpaid := false
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		Status: []domain.OrderStatus{domain.OrderStatusPending},
		IsPaid: &unpaid,
		Pagination: domain.Pagination{
			PageSize: limit,
		},
	})
	if err != nil {
		return RecheckReport{}, err
	}

	report := RecheckReport{}
	for _, order := range page.Items {
		report.Inspected++
		result, err := s.Reconcile(ctx, ReconcileCommand{TransactionID: order.ID})
		if err != nil {
			report.Failed++
			s.logger(ctx, "payment.recheck.error", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			continue
		}
		if result.Outcome == ReconcileOutcomePaid {
			report.Settled++
		}
	}

	s.logger(ctx, "payment.recheck.completed", map[string]any{
		"inspected": report.Inspected,
		"settled":   report.Settled,
		"failed":    report.Failed,
	})
	return report, nil
}

func (s *paymentService) findOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: %s", ErrPaymentOrderNotFound, orderID)
		}
		return Order{}, err
	}
	return order, nil
}

func (s *paymentService) canActOnOrder(order Order, actor Actor) bool {
	if actor.Capabilities.Has(CapabilityMarkPaid) || actor.Capabilities.Has(CapabilityTransition) {
		return true
	}
	actorID := strings.TrimSpace(actor.ID)
	return actorID != "" && order.BuyerRef == actorID
}

func paymentStatusFromProvider(status payments.Status) domain.PaymentStatus {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusSucceeded
	case payments.StatusFailed:
		return domain.PaymentStatusFailed
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatusPending
	}
}
