package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/sahel-market/api/internal/domain"
	pfirestore "github.com/sahel-market/api/internal/platform/firestore"
	"github.com/sahel-market/api/internal/platform/pagination"
	"github.com/sahel-market/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order aggregates in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}

	docRef, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: id is required")
	}
	if _, err := r.orders.Set(ctx, order.ID, newOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	docRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ExistsByOrderNumber probes for a prior order carrying the number. The
// generator calls this before insert, so the query stays Limit(1).
func (r *OrderRepository) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	if r == nil || r.orders == nil {
		return false, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return false, errors.New("order exists: order number is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerRef string, includeHidden bool, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	buyerRef = strings.TrimSpace(buyerRef)
	if buyerRef == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: buyer ref is required")
	}
	filter := repositories.OrderListFilter{BuyerRef: buyerRef, Pagination: pager}
	if !includeHidden {
		visible := true
		active := false
		filter.IsVisible = &visible
		filter.IsArchived = &active
	}
	return r.list(ctx, filter)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return r.list(ctx, filter)
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if filter.BuyerRef != "" {
		query = query.Where("buyerRef", "==", filter.BuyerRef)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.IsPaid != nil {
		query = query.Where("isPaid", "==", *filter.IsPaid)
	}
	if filter.IsArchived != nil {
		query = query.Where("isArchived", "==", *filter.IsArchived)
	}
	if filter.IsVisible != nil {
		query = query.Where("isVisible", "==", *filter.IsVisible)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("createdAt", ">=", filter.CreatedAfter.UTC())
	}
	if filter.CreatedBefore != nil {
		query = query.Where("createdAt", "<", filter.CreatedBefore.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var cursor orderPageToken
		if err := pagination.DecodeToken(token, &cursor); err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	BuyerRef        string                  `firestore:"buyerRef"`
	Items           []orderItemDocument     `firestore:"items"`
	ShippingAddress shippingAddressDocument `firestore:"shippingAddress"`
	ItemsPrice      float64                 `firestore:"itemsPrice"`
	TaxPrice        float64                 `firestore:"taxPrice"`
	ShippingPrice   float64                 `firestore:"shippingPrice"`
	TotalPrice      float64                 `firestore:"totalPrice"`
	Coupon          *appliedCouponDocument  `firestore:"coupon,omitempty"`
	Status          string                  `firestore:"status"`
	StatusHistory   []statusChangeDocument  `firestore:"statusHistory,omitempty"`
	IsPaid          bool                    `firestore:"isPaid"`
	PaidAt          *time.Time              `firestore:"paidAt,omitempty"`
	PaymentResult   *paymentResultDocument  `firestore:"paymentResult,omitempty"`
	DeliveredAt     *time.Time              `firestore:"deliveredAt,omitempty"`
	IsVisible       bool                    `firestore:"isVisible"`
	IsArchived      bool                    `firestore:"isArchived"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductRef string  `firestore:"productRef"`
	Name       string  `firestore:"name"`
	Quantity   int     `firestore:"qty"`
	UnitPrice  float64 `firestore:"unitPrice"`
	Image      string  `firestore:"image,omitempty"`
}

type shippingAddressDocument struct {
	FullName   string  `firestore:"fullName"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	Region     *string `firestore:"region,omitempty"`
	PostalCode string  `firestore:"postalCode,omitempty"`
	Country    string  `firestore:"country"`
	Phone      string  `firestore:"phone"`
}

type appliedCouponDocument struct {
	Code          string  `firestore:"code"`
	DiscountType  string  `firestore:"discountType"`
	DiscountValue float64 `firestore:"discountValue"`
}

type statusChangeDocument struct {
	From  string    `firestore:"from"`
	To    string    `firestore:"to"`
	Actor string    `firestore:"actor"`
	At    time.Time `firestore:"at"`
}

type paymentResultDocument struct {
	TransactionID  string    `firestore:"transactionId"`
	Provider       string    `firestore:"provider"`
	ProviderStatus string    `firestore:"providerStatus"`
	Status         string    `firestore:"status"`
	Amount         int64     `firestore:"amount"`
	Currency       string    `firestore:"currency"`
	Method         string    `firestore:"method,omitempty"`
	VerifiedAt     time.Time `firestore:"verifiedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Image:      strings.TrimSpace(item.Image),
		}
	}
	history := make([]statusChangeDocument, len(order.StatusHistory))
	for i, change := range order.StatusHistory {
		history[i] = statusChangeDocument{
			From:  string(change.From),
			To:    string(change.To),
			Actor: change.Actor,
			At:    change.At.UTC(),
		}
	}

	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		BuyerRef:    strings.TrimSpace(order.BuyerRef),
		Items:       items,
		ShippingAddress: shippingAddressDocument{
			FullName:   order.ShippingAddress.FullName,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			Region:     order.ShippingAddress.Region,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		},
		ItemsPrice:    order.ItemsPrice,
		TaxPrice:      order.TaxPrice,
		ShippingPrice: order.ShippingPrice,
		TotalPrice:    order.TotalPrice,
		Status:        string(order.Status),
		StatusHistory: history,
		IsPaid:        order.IsPaid,
		PaidAt:        utcTimePtr(order.PaidAt),
		DeliveredAt:   utcTimePtr(order.DeliveredAt),
		IsVisible:     order.IsVisible,
		IsArchived:    order.IsArchived,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
	if order.Coupon != nil {
		doc.Coupon = &appliedCouponDocument{
			Code:          strings.TrimSpace(order.Coupon.Code),
			DiscountType:  string(order.Coupon.DiscountType),
			DiscountValue: order.Coupon.DiscountValue,
		}
	}
	if order.PaymentResult != nil {
		doc.PaymentResult = &paymentResultDocument{
			TransactionID:  order.PaymentResult.TransactionID,
			Provider:       order.PaymentResult.Provider,
			ProviderStatus: order.PaymentResult.ProviderStatus,
			Status:         string(order.PaymentResult.Status),
			Amount:         order.PaymentResult.Amount,
			Currency:       order.PaymentResult.Currency,
			Method:         order.PaymentResult.Method,
			VerifiedAt:     order.PaymentResult.VerifiedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Image:      item.Image,
		}
	}
	history := make([]domain.StatusChange, len(d.StatusHistory))
	for i, change := range d.StatusHistory {
		history[i] = domain.StatusChange{
			From:  domain.OrderStatus(change.From),
			To:    domain.OrderStatus(change.To),
			Actor: change.Actor,
			At:    change.At,
		}
	}

	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		BuyerRef:    d.BuyerRef,
		Items:       items,
		ShippingAddress: domain.ShippingAddress{
			FullName:   d.ShippingAddress.FullName,
			Line1:      d.ShippingAddress.Line1,
			Line2:      d.ShippingAddress.Line2,
			City:       d.ShippingAddress.City,
			Region:     d.ShippingAddress.Region,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
			Phone:      d.ShippingAddress.Phone,
		},
		ItemsPrice:    d.ItemsPrice,
		TaxPrice:      d.TaxPrice,
		ShippingPrice: d.ShippingPrice,
		TotalPrice:    d.TotalPrice,
		Status:        domain.OrderStatus(d.Status),
		StatusHistory: history,
		IsPaid:        d.IsPaid,
		PaidAt:        d.PaidAt,
		DeliveredAt:   d.DeliveredAt,
		IsVisible:     d.IsVisible,
		IsArchived:    d.IsArchived,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Coupon != nil {
		order.Coupon = &domain.AppliedCoupon{
			Code:          d.Coupon.Code,
			DiscountType:  domain.DiscountType(d.Coupon.DiscountType),
			DiscountValue: d.Coupon.DiscountValue,
		}
	}
	if d.PaymentResult != nil {
		order.PaymentResult = &domain.PaymentResult{
			TransactionID:  d.PaymentResult.TransactionID,
			Provider:       d.PaymentResult.Provider,
			ProviderStatus: d.PaymentResult.ProviderStatus,
			Status:         domain.PaymentStatus(d.PaymentResult.Status),
			Amount:         d.PaymentResult.Amount,
			Currency:       d.PaymentResult.Currency,
			Method:         d.PaymentResult.Method,
			VerifiedAt:     d.PaymentResult.VerifiedAt,
		}
	}
	return order
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// orderPageToken is the cursor state carried between pages.
type orderPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
