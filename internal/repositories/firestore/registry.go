package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/sahel-market/api/internal/platform/firestore"
	"github.com/sahel-market/api/internal/repositories"
)

// Registry bundles the firestore-backed repositories behind the typed
// accessors the service container consumes.
type Registry struct {
	provider      *pfirestore.Provider
	orders        *OrderRepository
	stock         *StockRepository
	notifications *NotificationRepository
	banners       *BannerRepository
	users         *UserRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider. The
// health repository is optional; pass nil when no dependency checks exist.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	banners, err := NewBannerRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		orders:        orders,
		stock:         stock,
		notifications: notifications,
		banners:       banners,
		users:         users,
		health:        health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Stock() repositories.StockRepository { return r.stock }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Banners() repositories.BannerRepository { return r.banners }

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn directly. Firestore writes issued by the repositories
// are individually atomic, and the stock ledger runs its own transaction for
// multi-document batches, so no outer transaction handle is threaded through.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}
