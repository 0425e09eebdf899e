package repositories

import (
	"context"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Stock() StockRepository
	Notifications() NotificationRepository
	Banners() BannerRepository
	Users() UserRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates and provides query helpers for buyers and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ExistsByOrderNumber reports whether any order already carries the number.
	// Used by the generator's collision probe before insert.
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	// ListByBuyer pages the buyer's orders, newest first. Hidden and archived
	// orders are excluded unless includeHidden is set.
	ListByBuyer(ctx context.Context, buyerRef string, includeHidden bool, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// StockRepository applies stock deltas with transactional all-or-nothing guarantees.
type StockRepository interface {
	// Decrement subtracts quantities for every adjustment inside one transaction.
	// All lines are validated against current stock before any write; a short
	// line aborts the whole batch with a StockError carrying the product ref.
	Decrement(ctx context.Context, req StockBatchRequest) (StockBatchResult, error)
	// Restore adds quantities back with the same batch semantics.
	Restore(ctx context.Context, req StockBatchRequest) (StockBatchResult, error)
	GetProduct(ctx context.Context, productRef string) (domain.Product, error)
	GetProducts(ctx context.Context, productRefs []string) (map[string]domain.Product, error)
}

// StockBatchRequest groups the per-product deltas applied for one order.
type StockBatchRequest struct {
	OrderRef    string
	Adjustments []domain.StockAdjustment
	Now         time.Time
}

// StockBatchResult reports the post-transaction stock counts keyed by product ref.
type StockBatchResult struct {
	Counts map[string]int
}

// NotificationRepository stores inbox entries addressed to a user or the admin channel.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	// FindByIdempotencyKey returns the notification previously written for the
	// key so redelivered triggers can be detected.
	FindByIdempotencyKey(ctx context.Context, key string) (domain.Notification, error)
	ListByChannel(ctx context.Context, channel domain.NotificationChannel, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, notificationID string, readAt time.Time) error
}

// BannerRepository stores promotional banners carrying coupon codes.
type BannerRepository interface {
	FindActive(ctx context.Context) (domain.PromoBanner, error)
	FindByID(ctx context.Context, bannerID string) (domain.PromoBanner, error)
}

// UserRepository resolves buyer profiles. Orders hold weak references, so a
// missing profile is an expected outcome for callers.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows admin order listings. Nil pointer fields apply no
// constraint, so active and archived sets can be queried disjointly.
type OrderListFilter struct {
	BuyerRef      string
	Status        []domain.OrderStatus
	IsPaid        *bool
	IsArchived    *bool
	IsVisible     *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}
