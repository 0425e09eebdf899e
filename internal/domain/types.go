package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed but not yet confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been confirmed and stock committed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the order has been handed to a courier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order has reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the aggregate persisted per purchase. Item rows are denormalized
// snapshots so later catalog edits never rewrite order history. BuyerRef is a
// weak reference; the referenced user document may have been deleted.
type Order struct {
	ID              string
	OrderNumber     string
	BuyerRef        string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	ItemsPrice      float64
	TaxPrice        float64
	ShippingPrice   float64
	TotalPrice      float64
	Coupon          *AppliedCoupon
	Status          OrderStatus
	StatusHistory   []StatusChange
	IsPaid          bool
	PaidAt          *time.Time
	PaymentResult   *PaymentResult
	DeliveredAt     *time.Time
	IsVisible       bool
	IsArchived      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem mirrors the product at the time the order was placed.
type OrderItem struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  float64
	Image      string
}

// ShippingAddress stores the delivery destination snapshot.
type ShippingAddress struct {
	FullName   string
	Line1      string
	Line2      *string
	City       string
	Region     *string
	PostalCode string
	Country    string
	Phone      string
}

// DiscountType distinguishes how a coupon's value is applied.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the items subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a flat amount, capped at the items subtotal.
	DiscountTypeFixed DiscountType = "fixed"
)

// AppliedCoupon records the promo code honoured at checkout.
type AppliedCoupon struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue float64
}

// StatusChange is an audit entry appended for every applied transition.
type StatusChange struct {
	From  OrderStatus
	To    OrderStatus
	Actor string
	At    time.Time
}

// PaymentStatus normalizes provider payment states.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the provider has not settled the payment yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded indicates the provider confirmed the payment.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed indicates the payment attempt failed or was refused.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentResult stores the authoritative provider outcome recorded after
// reconciliation. Amount is the integer amount the provider settled.
type PaymentResult struct {
	TransactionID  string
	Provider       string
	ProviderStatus string
	Status         PaymentStatus
	Amount         int64
	Currency       string
	Method         string
	VerifiedAt     time.Time
}

// Product carries the catalog fields the order engine reads and mutates.
type Product struct {
	ID           string
	Name         string
	Price        float64
	CountInStock int
	Image        string
	IsVisible    bool
	UpdatedAt    time.Time
}

// StockAdjustment is a single-product delta applied inside a ledger transaction.
type StockAdjustment struct {
	ProductRef string
	Quantity   int
}

// NotificationChannel addresses either one user inbox or the shared admin inbox.
type NotificationChannel string

// NotificationChannelAdmin fans out to every back-office operator.
const NotificationChannelAdmin NotificationChannel = "admin"

// Notification is a persisted inbox entry mirrored over the realtime topic.
type Notification struct {
	ID             string
	Channel        NotificationChannel
	Type           string
	Message        string
	Link           string
	Read           bool
	IdempotencyKey string
	CreatedAt      time.Time
}

// PromoBanner is the marketing banner carrying the currently valid coupon.
type PromoBanner struct {
	ID            string
	Title         string
	CouponCode    string
	DiscountType  DiscountType
	DiscountValue float64
	IsActive      bool
	EndDate       time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserProfile is the slim projection of a buyer account used for lookups.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	Roles       []string
	IsActive    bool
	CreatedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
