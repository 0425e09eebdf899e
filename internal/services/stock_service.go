package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid adjustment data.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates at least one line exceeds the count in stock.
	ErrStockInsufficient = errors.New("stock: insufficient")
	// ErrStockProductNotFound indicates a referenced product does not exist.
	ErrStockProductNotFound = errors.New("stock: product not found")
	// ErrStockUnavailable indicates the ledger backend is temporarily unreachable.
	ErrStockUnavailable = errors.New("stock: ledger unavailable")
)

// StockServiceDeps bundles collaborators required to construct the stock service.
type StockServiceDeps struct {
	Stock  repositories.StockRepository
	Clock  func() time.Time
	Events RealtimeEventPublisher
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	stock  repositories.StockRepository
	clock  func() time.Time
	events RealtimeEventPublisher
	logger func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a concrete StockService implementation.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stock == nil {
		return nil, errors.New("stock service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockService{
		stock: deps.Stock,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// CommitOrderStock decrements every line of the order inside one ledger
// transaction. A short line aborts the whole batch with no counts changed.
func (s *stockService) CommitOrderStock(ctx context.Context, cmd StockCommitCommand) error {
	req, err := s.batchRequest(cmd)
	if err != nil {
		return err
	}

	result, err := s.stock.Decrement(ctx, req)
	if err != nil {
		return s.mapStockError(err)
	}

	s.publishProductUpdates(ctx, cmd.OrderID, result.Counts)
	return nil
}

// RestoreOrderStock adds committed quantities back, same batch semantics.
func (s *stockService) RestoreOrderStock(ctx context.Context, cmd StockCommitCommand) error {
	req, err := s.batchRequest(cmd)
	if err != nil {
		return err
	}

	result, err := s.stock.Restore(ctx, req)
	if err != nil {
		return s.mapStockError(err)
	}

	s.publishProductUpdates(ctx, cmd.OrderID, result.Counts)
	return nil
}

func (s *stockService) GetProducts(ctx context.Context, productRefs []string) (map[string]Product, error) {
	if len(productRefs) == 0 {
		return nil, fmt.Errorf("%w: at least one product ref is required", ErrStockInvalidInput)
	}
	products, err := s.stock.GetProducts(ctx, productRefs)
	if err != nil {
		return nil, s.mapStockError(err)
	}
	return products, nil
}

func (s *stockService) batchRequest(cmd StockCommitCommand) (repositories.StockBatchRequest, error) {
	if len(cmd.Adjustments) == 0 {
		return repositories.StockBatchRequest{}, fmt.Errorf("%w: at least one adjustment is required", ErrStockInvalidInput)
	}
	for _, adj := range cmd.Adjustments {
		if strings.TrimSpace(adj.ProductRef) == "" {
			return repositories.StockBatchRequest{}, fmt.Errorf("%w: product ref is required", ErrStockInvalidInput)
		}
		if adj.Quantity <= 0 {
			return repositories.StockBatchRequest{}, fmt.Errorf("%w: quantity for %s must be positive", ErrStockInvalidInput, adj.ProductRef)
		}
	}
	return repositories.StockBatchRequest{
		OrderRef:    strings.TrimSpace(cmd.OrderID),
		Adjustments: cmd.Adjustments,
		Now:         s.clock(),
	}, nil
}

// publishProductUpdates mirrors new counts to connected clients. Publish
// failures are logged and never fail the ledger operation.
func (s *stockService) publishProductUpdates(ctx context.Context, orderID string, counts map[string]int) {
	if s.events == nil {
		return
	}
	now := s.clock()
	for productRef, count := range counts {
		event := RealtimeEvent{
			Event:      RealtimeEventProductUpdate,
			Channel:    string(domain.NotificationChannelAdmin),
			OccurredAt: now,
			Payload: map[string]any{
				"productRef":   productRef,
				"countInStock": count,
				"orderRef":     orderID,
			},
		}
		if err := s.events.PublishRealtimeEvent(ctx, event); err != nil {
			s.logger(ctx, "stock.event.publish.failed", map[string]any{
				"product": productRef,
				"order":   orderID,
				"error":   err.Error(),
			})
		}
	}
}

func (s *stockService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.ProductRef)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrStockProductNotFound, stockErr.ProductRef)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %v", ErrStockInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrStockProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStockUnavailable, err)
		}
	}

	return err
}
