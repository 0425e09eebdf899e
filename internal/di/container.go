package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahel-market/api/internal/payments"
	"github.com/sahel-market/api/internal/platform/config"
	"github.com/sahel-market/api/internal/repositories"
	"github.com/sahel-market/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Stock         services.StockService
	Numbers       services.OrderNumberGenerator
	Pricing       services.PricingEngine
	Coupons       services.CouponService
	Notifications services.NotificationDispatcher
	Payments      services.PaymentService
	System        services.SystemService
	Users         services.UserDirectory
}

// Externals carries runtime collaborators built outside the repository layer:
// the payment provider client and the realtime event publisher.
type Externals struct {
	Provider payments.Provider
	Events   services.RealtimeEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, ext Externals) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, ext)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, ext Externals) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	logger := ext.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	if stockRepo := reg.Stock(); stockRepo != nil {
		stockSvc, err := services.NewStockService(services.StockServiceDeps{
			Stock:  stockRepo,
			Clock:  time.Now,
			Events: ext.Events,
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stock service: %w", err)
		}
		svc.Stock = stockSvc
	}

	if bannersRepo := reg.Banners(); bannersRepo != nil && cfg.Features.EnableCoupons {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Banners: bannersRepo,
			Clock:   time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	if svc.Stock != nil {
		pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
			Stock:   svc.Stock,
			Coupons: svc.Coupons,
			Config: services.PricingConfig{
				Currency:          cfg.CinetPay.Currency,
				TaxRate:           cfg.Pricing.TaxRate,
				ShippingFlat:      cfg.Pricing.ShippingFlat,
				FreeShippingAbove: cfg.Pricing.FreeShippingAbove,
			},
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build pricing engine: %w", err)
		}
		svc.Pricing = pricing
	}

	if notificationsRepo := reg.Notifications(); notificationsRepo != nil {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Notifications: notificationsRepo,
			Events:        ext.Events,
			Clock:         time.Now,
			Logger:        logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil {
		numbers, err := services.NewOrderNumberGenerator(services.OrderNumberGeneratorDeps{
			Orders: ordersRepo,
			Logger: logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order number generator: %w", err)
		}
		svc.Numbers = numbers
	}

	if ordersRepo != nil && svc.Stock != nil && svc.Numbers != nil && svc.Pricing != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:        ordersRepo,
			Stock:         svc.Stock,
			Numbers:       svc.Numbers,
			Pricing:       svc.Pricing,
			Notifications: svc.Notifications,
			Events:        ext.Events,
			UnitOfWork:    reg,
			Clock:         time.Now,
			Logger:        logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if svc.Orders != nil && ext.Provider != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:        ordersRepo,
			Lifecycle:     svc.Orders,
			Provider:      ext.Provider,
			Notifications: svc.Notifications,
			Currency:      cfg.CinetPay.Currency,
			ReturnURL:     cfg.CinetPay.ReturnURL,
			NotifyURL:     cfg.CinetPay.NotifyURL,
			Clock:         time.Now,
			Logger:        logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		users, err := services.NewUserDirectory(services.UserDirectoryDeps{Users: usersRepo})
		if err != nil {
			return Services{}, fmt.Errorf("build user directory: %w", err)
		}
		svc.Users = users
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Environment: cfg.Security.Environment,
				StartedAt:   time.Now().UTC(),
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
