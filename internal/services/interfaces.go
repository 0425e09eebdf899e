package services

import (
	"context"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderStatus          = domain.OrderStatus
	StatusChange         = domain.StatusChange
	ShippingAddress      = domain.ShippingAddress
	AppliedCoupon        = domain.AppliedCoupon
	PaymentResult        = domain.PaymentResult
	PaymentStatus        = domain.PaymentStatus
	PricingBreakdown     = domain.PricingBreakdown
	ItemPricingBreakdown = domain.ItemPricingBreakdown
	Product              = domain.Product
	StockAdjustment      = domain.StockAdjustment
	Notification         = domain.Notification
	NotificationChannel  = domain.NotificationChannel
	PromoBanner          = domain.PromoBanner
	UserProfile          = domain.UserProfile
	SystemHealthReport   = domain.SystemHealthReport
)

// Capability enumerates the order-management permissions an actor may hold.
// Authorization decisions are made against capabilities, never role names.
type Capability string

const (
	// CapabilityTransition allows applying status transitions to any order.
	CapabilityTransition Capability = "order.transition"
	// CapabilityArchive allows toggling archive/visibility flags and deleting orders.
	CapabilityArchive Capability = "order.archive"
	// CapabilityMarkPaid allows recording payment outcomes outside the webhook path.
	CapabilityMarkPaid Capability = "order.mark_paid"
)

// CapabilitySet is the set of capabilities resolved for an actor.
type CapabilitySet map[Capability]bool

// Has reports whether the capability is present.
func (s CapabilitySet) Has(c Capability) bool {
	return s != nil && s[c]
}

// Actor identifies who is invoking an operation together with what they may do.
type Actor struct {
	ID           string
	Capabilities CapabilitySet
}

// OrderService encapsulates the order lifecycle: creation with server-side
// pricing, the status state machine, buyer cancellation, and admin flags.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListMine(ctx context.Context, buyerRef string, pager Pagination) (domain.CursorPage[Order], error)
	// ListPurchaseHistory returns all of the buyer's orders including hidden ones.
	ListPurchaseHistory(ctx context.Context, buyerRef string, pager Pagination) (domain.CursorPage[Order], error)
	ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	CancelOwn(ctx context.Context, cmd CancelOwnOrderCommand) (Order, error)
	ForceCancel(ctx context.Context, cmd ForceCancelCommand) (Order, error)
	SetArchived(ctx context.Context, cmd OrderFlagCommand) (Order, error)
	SetVisibility(ctx context.Context, cmd OrderFlagCommand) (Order, error)
	// HideOwn lets a buyer remove their own order from the default listing.
	HideOwn(ctx context.Context, cmd HideOrderCommand) (Order, error)
	Delete(ctx context.Context, orderID string, actor Actor) error
	// MarkPaid records a verified payment outcome. It is the single write path
	// for isPaid and never flips a paid order back.
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error)
}

// OrderNumberGenerator allocates human-readable unique order numbers.
type OrderNumberGenerator interface {
	Generate(ctx context.Context, items []OrderItem, now time.Time) (string, error)
}

// StockService owns the stock ledger commit and restore flows.
type StockService interface {
	// CommitOrderStock decrements stock for every order line, all-or-nothing.
	CommitOrderStock(ctx context.Context, cmd StockCommitCommand) error
	// RestoreOrderStock adds committed quantities back after an admin override cancel.
	RestoreOrderStock(ctx context.Context, cmd StockCommitCommand) error
	GetProducts(ctx context.Context, productRefs []string) (map[string]Product, error)
}

// PaymentService drives provider checkout initiation and webhook reconciliation.
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error)
	// Reconcile handles a webhook delivery. The callback payload is never
	// trusted; the provider is queried for the authoritative status.
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error)
	Status(ctx context.Context, orderID string, actor Actor) (PaymentStatusReport, error)
	// RecheckPending re-runs reconciliation across unpaid pending orders.
	RecheckPending(ctx context.Context, cmd RecheckCommand) (RecheckReport, error)
}

// NotificationDispatcher persists inbox entries and mirrors them over the
// realtime topic. Dispatch is idempotent per key.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, cmd NotificationCommand) (Notification, error)
	List(ctx context.Context, channel NotificationChannel, pager Pagination) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, notificationID string) error
}

// CouponService validates promo codes against the active banner.
type CouponService interface {
	Validate(ctx context.Context, code string) (AppliedCoupon, error)
}

// PricingEngine recomputes order totals from the catalog.
type PricingEngine interface {
	Price(ctx context.Context, cmd PricingCommand) (PricingBreakdown, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// UserDirectory resolves buyer profiles behind the weak references orders
// carry. A missing profile is reported as not found, never as an error.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, bool, error)
}

// RealtimeEventPublisher mirrors state changes onto the realtime topic consumed
// by the storefront and back-office clients.
type RealtimeEventPublisher interface {
	PublishRealtimeEvent(ctx context.Context, event RealtimeEvent) error
}

// RealtimeEvent is one message on the realtime topic.
type RealtimeEvent struct {
	Event      string
	Channel    string
	OccurredAt time.Time
	Payload    map[string]any
}

// Realtime event names mirrored to connected clients.
const (
	RealtimeEventNotification  = "notification"
	RealtimeEventOrderUpdate   = "order_update"
	RealtimeEventProductUpdate = "product_update"
)

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

// OrderItemInput carries only what the client may choose; prices are resolved
// server-side from the catalog.
type OrderItemInput struct {
	ProductRef string
	Quantity   int
}

type CreateOrderCommand struct {
	BuyerRef        string
	Items           []OrderItemInput
	ShippingAddress ShippingAddress
	CouponCode      string
	Actor           Actor
}

type OrderTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Actor        Actor
	Reason       string
}

type CancelOwnOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// ForceCancelCommand bypasses the legal-edge table for administrator overrides.
// Stock committed on confirmation is restored.
type ForceCancelCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// HideOrderCommand marks an order invisible on the owner's behalf. The actor
// must be the order's buyer or hold the archive capability.
type HideOrderCommand struct {
	OrderID string
	Actor   Actor
}

type OrderFlagCommand struct {
	OrderID string
	Actor   Actor
	Value   bool
}

type MarkPaidCommand struct {
	OrderID string
	Actor   Actor
	Result  PaymentResult
}

type StockCommitCommand struct {
	OrderID     string
	Adjustments []StockAdjustment
	ActorID     string
}

type InitiatePaymentCommand struct {
	OrderID   string
	Actor     Actor
	ReturnURL string
	NotifyURL string
}

// PaymentSession is the provider checkout handle returned to the client.
type PaymentSession struct {
	OrderID       string
	TransactionID string
	PaymentURL    string
	Amount        int64
	Currency      string
}

type ReconcileCommand struct {
	// TransactionID as announced by the callback. Used only to locate the
	// order; every status fact is re-fetched from the provider.
	TransactionID string
}

type ReconcileResult struct {
	OrderID       string
	Outcome       ReconcileOutcome
	Status        PaymentStatus
	AmountMatched bool
}

// ReconcileOutcome classifies what a webhook delivery did.
type ReconcileOutcome string

const (
	// ReconcileOutcomePaid indicates the order was marked paid by this delivery.
	ReconcileOutcomePaid ReconcileOutcome = "paid"
	// ReconcileOutcomeAlreadyPaid indicates a redelivery for a settled order.
	ReconcileOutcomeAlreadyPaid ReconcileOutcome = "already_paid"
	// ReconcileOutcomePending indicates the provider has not settled yet.
	ReconcileOutcomePending ReconcileOutcome = "pending"
	// ReconcileOutcomeFailed indicates the provider reported a failed payment.
	ReconcileOutcomeFailed ReconcileOutcome = "failed"
	// ReconcileOutcomeAmountMismatch indicates settled funds differing from the rounded order total.
	ReconcileOutcomeAmountMismatch ReconcileOutcome = "amount_mismatch"
)

type PaymentStatusReport struct {
	OrderID        string
	IsPaid         bool
	ProviderStatus string
	Status         PaymentStatus
	Amount         int64
	Currency       string
}

type RecheckCommand struct {
	// Limit caps how many unpaid orders one sweep inspects.
	Limit int
}

type RecheckReport struct {
	Inspected int
	Settled   int
	Failed    int
}

type NotificationCommand struct {
	Channel        NotificationChannel
	Type           string
	Message        string
	Link           string
	IdempotencyKey string
	// Event mirrored to the realtime topic alongside the inbox write.
	RealtimeEvent string
	Payload       map[string]any
}

type PricingCommand struct {
	Items      []OrderItemInput
	CouponCode string
}
