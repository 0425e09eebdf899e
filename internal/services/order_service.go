package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicate writes or concurrent updates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor lacks the capability for the operation.
	ErrOrderForbidden = errors.New("order: forbidden")
)

// orderStateTransitions is the legal-edge table. Anything absent is rejected.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
}

// stockCommittedStatuses lists statuses whose stock decrement already ran, so
// an override cancel must restore it.
var stockCommittedStatuses = []domain.OrderStatus{
	domain.OrderStatusConfirmed,
	domain.OrderStatusShipped,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Stock         StockService
	Numbers       OrderNumberGenerator
	Pricing       PricingEngine
	Notifications NotificationDispatcher
	Events        RealtimeEventPublisher
	UnitOfWork    repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	stock         StockService
	numbers       OrderNumberGenerator
	pricing       PricingEngine
	notifications NotificationDispatcher
	events        RealtimeEventPublisher
	unitOfWork    repositories.UnitOfWork
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order service: order number generator is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		stock:         deps.Stock,
		numbers:       deps.Numbers,
		pricing:       deps.Pricing,
		notifications: deps.Notifications,
		events:        deps.Events,
		unitOfWork:    unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create places a new pending order. Prices are recomputed from the catalog;
// anything price-like the client sent is ignored.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	buyerRef := strings.TrimSpace(cmd.BuyerRef)
	if buyerRef == "" {
		return Order{}, fmt.Errorf("%w: buyer ref is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductRef) == "" {
			return Order{}, fmt.Errorf("%w: item product ref is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}

	breakdown, err := s.pricing.Price(ctx, PricingCommand{
		Items:      cmd.Items,
		CouponCode: cmd.CouponCode,
	})
	if err != nil {
		return Order{}, err
	}

	products, err := s.stock.GetProducts(ctx, productRefs(cmd.Items))
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, input := range cmd.Items {
		product := products[strings.TrimSpace(input.ProductRef)]
		items = append(items, domain.OrderItem{
			ProductRef: product.ID,
			Name:       product.Name,
			Quantity:   input.Quantity,
			UnitPrice:  product.Price,
			Image:      product.Image,
		})
	}

	number, err := s.numbers.Generate(ctx, items, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              s.nextOrderID(),
		OrderNumber:     number,
		BuyerRef:        buyerRef,
		Items:           items,
		ShippingAddress: cmd.ShippingAddress,
		ItemsPrice:      breakdown.ItemsPrice,
		TaxPrice:        breakdown.TaxPrice,
		ShippingPrice:   breakdown.ShippingPrice,
		TotalPrice:      breakdown.Total,
		Status:          domain.OrderStatusPending,
		IsVisible:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if breakdown.Coupon != nil {
		coupon := *breakdown.Coupon
		order.Coupon = &coupon
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.notifyTransition(ctx, order, "", domain.OrderStatusPending, cmd.Actor.ID)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !canReadOrder(order, actor) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

// ListMine returns the buyer's visible orders. Orders the buyer hid stay out
// of this listing; ListPurchaseHistory includes them.
func (s *orderService) ListMine(ctx context.Context, buyerRef string, pager Pagination) (domain.CursorPage[Order], error) {
	buyerRef = strings.TrimSpace(buyerRef)
	if buyerRef == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: buyer ref is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByBuyer(ctx, buyerRef, false, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// ListPurchaseHistory returns every order the buyer ever placed, hidden ones
// included, for the purchase-history view.
func (s *orderService) ListPurchaseHistory(ctx context.Context, buyerRef string, pager Pagination) (domain.CursorPage[Order], error) {
	buyerRef = strings.TrimSpace(buyerRef)
	if buyerRef == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: buyer ref is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByBuyer(ctx, buyerRef, true, pager)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if !actor.Capabilities.Has(CapabilityTransition) && !actor.Capabilities.Has(CapabilityArchive) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: order listing requires back-office capability", ErrOrderForbidden)
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus applies one legal edge of the state machine. The stock
// decrement runs exactly once, on the pending to confirmed edge, and a short
// line aborts the transition entirely.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.Capabilities.Has(CapabilityTransition) {
		return Order{}, fmt.Errorf("%w: transition requires %s", ErrOrderForbidden, CapabilityTransition)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.Status
	if err := applyStatusTransition(&order, target, cmd.Actor.ID, now); err != nil {
		return Order{}, err
	}
	if prev == target {
		return order, nil
	}

	commitsStock := prev == domain.OrderStatusPending && target == domain.OrderStatusConfirmed

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if commitsStock {
			if s.stock == nil {
				return errors.New("order service: stock service is required for confirmation")
			}
			if err := s.stock.CommitOrderStock(txCtx, StockCommitCommand{
				OrderID:     order.ID,
				Adjustments: stockAdjustments(order.Items),
				ActorID:     cmd.Actor.ID,
			}); err != nil {
				return err
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.notifyTransition(ctx, order, prev, target, cmd.Actor.ID)
	return order, nil
}

// CancelOwn lets a buyer cancel their own order while it is still pending.
func (s *orderService) CancelOwn(ctx context.Context, cmd CancelOwnOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.BuyerRef == "" || order.BuyerRef != strings.TrimSpace(cmd.Actor.ID) {
		return Order{}, fmt.Errorf("%w: order %s belongs to another buyer", ErrOrderForbidden, orderID)
	}

	now := s.now()
	prev := order.Status
	if err := applyStatusTransition(&order, domain.OrderStatusCancelled, cmd.Actor.ID, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.notifyTransition(ctx, order, prev, domain.OrderStatusCancelled, cmd.Actor.ID)
	return order, nil
}

// ForceCancel is the administrator override that cancels past the legal-edge
// table. Stock committed on confirmation is restored in the same unit of work.
func (s *orderService) ForceCancel(ctx context.Context, cmd ForceCancelCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.Capabilities.Has(CapabilityTransition) {
		return Order{}, fmt.Errorf("%w: override cancel requires %s", ErrOrderForbidden, CapabilityTransition)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	switch order.Status {
	case domain.OrderStatusCancelled:
		return order, nil
	case domain.OrderStatusDelivered:
		return Order{}, fmt.Errorf("%w: delivered orders cannot be cancelled", ErrOrderInvalidState)
	}

	now := s.now()
	prev := order.Status
	restoresStock := slices.Contains(stockCommittedStatuses, prev)

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
		From:  prev,
		To:    domain.OrderStatusCancelled,
		Actor: strings.TrimSpace(cmd.Actor.ID),
		At:    now,
	})

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if restoresStock {
			if s.stock == nil {
				return errors.New("order service: stock service is required for restore")
			}
			if err := s.stock.RestoreOrderStock(txCtx, StockCommitCommand{
				OrderID:     order.ID,
				Adjustments: stockAdjustments(order.Items),
				ActorID:     cmd.Actor.ID,
			}); err != nil {
				return err
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.notifyTransition(ctx, order, prev, domain.OrderStatusCancelled, cmd.Actor.ID)
	return order, nil
}

func (s *orderService) SetArchived(ctx context.Context, cmd OrderFlagCommand) (Order, error) {
	return s.setFlag(ctx, cmd, func(order *Order) bool {
		if order.IsArchived == cmd.Value {
			return false
		}
		order.IsArchived = cmd.Value
		return true
	})
}

func (s *orderService) SetVisibility(ctx context.Context, cmd OrderFlagCommand) (Order, error) {
	return s.setFlag(ctx, cmd, func(order *Order) bool {
		if order.IsVisible == cmd.Value {
			return false
		}
		order.IsVisible = cmd.Value
		return true
	})
}

// HideOwn removes an order from the buyer's default listing without deleting
// it. The record stays in the purchase history. Owners may hide their own
// orders; back-office actors with the archive capability may hide any.
func (s *orderService) HideOwn(ctx context.Context, cmd HideOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	isOwner := order.BuyerRef != "" && order.BuyerRef == strings.TrimSpace(cmd.Actor.ID)
	if !isOwner && !cmd.Actor.Capabilities.Has(CapabilityArchive) {
		return Order{}, fmt.Errorf("%w: order %s belongs to another buyer", ErrOrderForbidden, orderID)
	}

	if !order.IsVisible {
		return order, nil
	}
	order.IsVisible = false
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) setFlag(ctx context.Context, cmd OrderFlagCommand, mutate func(*Order) bool) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.Capabilities.Has(CapabilityArchive) {
		return Order{}, fmt.Errorf("%w: flag changes require %s", ErrOrderForbidden, CapabilityArchive)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !mutate(&order) {
		return order, nil
	}
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, orderID string, actor Actor) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !actor.Capabilities.Has(CapabilityArchive) {
		return fmt.Errorf("%w: deletion requires %s", ErrOrderForbidden, CapabilityArchive)
	}

	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// MarkPaid records the verified provider outcome. isPaid only ever moves from
// false to true; a second call for a paid order is a no-op.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.Capabilities.Has(CapabilityMarkPaid) {
		return Order{}, fmt.Errorf("%w: marking paid requires %s", ErrOrderForbidden, CapabilityMarkPaid)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.IsPaid {
		return order, nil
	}

	now := s.now()
	order.IsPaid = true
	order.PaidAt = &now
	result := cmd.Result
	if result.VerifiedAt.IsZero() {
		result.VerifiedAt = now
	}
	order.PaymentResult = &result
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// applyStatusTransition mutates the order along one legal edge, appending the
// audit entry and stamping lifecycle timestamps.
func applyStatusTransition(order *Order, target domain.OrderStatus, actor string, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}

	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	if target == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
	}
	order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
		From:  current,
		To:    target,
		Actor: strings.TrimSpace(actor),
		At:    now,
	})
	return nil
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func canReadOrder(order Order, actor Actor) bool {
	if actor.Capabilities.Has(CapabilityTransition) || actor.Capabilities.Has(CapabilityArchive) || actor.Capabilities.Has(CapabilityMarkPaid) {
		return true
	}
	actorID := strings.TrimSpace(actor.ID)
	return actorID != "" && order.BuyerRef == actorID
}

// notifyTransition writes inbox entries for the buyer and the admin channel
// and mirrors an order_update event. Failures are logged, never returned: a
// persisted transition must not be rolled back by a notification outage.
func (s *orderService) notifyTransition(ctx context.Context, order Order, from, to domain.OrderStatus, actorID string) {
	keyBase := transitionKey(order.ID, from, to)

	messages := []NotificationCommand{
		{
			Channel:        domain.NotificationChannel(order.BuyerRef),
			Type:           "order_status",
			Message:        buyerTransitionMessage(order, from, to),
			Link:           "/orders/" + order.ID,
			IdempotencyKey: keyBase + ":buyer",
			RealtimeEvent:  RealtimeEventNotification,
		},
		{
			Channel:        domain.NotificationChannelAdmin,
			Type:           "order_status",
			Message:        adminTransitionMessage(order, from, to),
			Link:           "/admin/orders/" + order.ID,
			IdempotencyKey: keyBase + ":admin",
			RealtimeEvent:  RealtimeEventNotification,
		},
	}

	if s.notifications != nil {
		for _, cmd := range messages {
			if _, err := s.notifications.Dispatch(ctx, cmd); err != nil {
				s.logger(ctx, "order.notify.failed", map[string]any{
					"order":   order.ID,
					"channel": string(cmd.Channel),
					"error":   err.Error(),
				})
			}
		}
	}

	s.publishOrderUpdate(ctx, order, from, to, actorID)
}

func (s *orderService) publishOrderUpdate(ctx context.Context, order Order, from, to domain.OrderStatus, actorID string) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"orderRef":    order.ID,
		"orderNumber": order.OrderNumber,
		"from":        string(from),
		"to":          string(to),
		"actor":       strings.TrimSpace(actorID),
	}
	for _, channel := range []string{order.BuyerRef, string(domain.NotificationChannelAdmin)} {
		if channel == "" {
			continue
		}
		if err := s.events.PublishRealtimeEvent(ctx, RealtimeEvent{
			Event:      RealtimeEventOrderUpdate,
			Channel:    channel,
			OccurredAt: s.now(),
			Payload:    payload,
		}); err != nil {
			s.logger(ctx, "order.event.publish.failed", map[string]any{
				"order":   order.ID,
				"channel": channel,
				"error":   err.Error(),
			})
		}
	}
}

// transitionKey is the notification idempotency key for one (order, transition)
// pair. Redelivered triggers reuse the key and dedupe in the dispatcher.
func transitionKey(orderID string, from, to domain.OrderStatus) string {
	return fmt.Sprintf("order:%s:%s>%s", orderID, from, to)
}

func buyerTransitionMessage(order Order, from, to domain.OrderStatus) string {
	if from == "" {
		return fmt.Sprintf("Your order %s has been placed.", order.OrderNumber)
	}
	return fmt.Sprintf("Your order %s is now %s.", order.OrderNumber, to)
}

func adminTransitionMessage(order Order, from, to domain.OrderStatus) string {
	if from == "" {
		return fmt.Sprintf("New order %s placed.", order.OrderNumber)
	}
	return fmt.Sprintf("Order %s moved from %s to %s.", order.OrderNumber, from, to)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func validateShippingAddress(addr ShippingAddress) error {
	switch {
	case strings.TrimSpace(addr.FullName) == "":
		return fmt.Errorf("%w: shipping full name is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Line1) == "":
		return fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Country) == "":
		return fmt.Errorf("%w: shipping country is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Phone) == "":
		return fmt.Errorf("%w: shipping phone is required", ErrOrderInvalidInput)
	}
	return nil
}

func productRefs(items []OrderItemInput) []string {
	refs := make([]string, 0, len(items))
	for _, item := range items {
		refs = append(refs, strings.TrimSpace(item.ProductRef))
	}
	return refs
}

func stockAdjustments(items []domain.OrderItem) []domain.StockAdjustment {
	adjustments := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductRef: item.ProductRef,
			Quantity:   item.Quantity,
		})
	}
	return adjustments
}

