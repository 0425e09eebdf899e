package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

type stubStockRepository struct {
	decrementFn   func(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error)
	restoreFn     func(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error)
	getProductFn  func(ctx context.Context, ref string) (domain.Product, error)
	getProductsFn func(ctx context.Context, refs []string) (map[string]domain.Product, error)
}

func (s *stubStockRepository) Decrement(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
	if s.decrementFn == nil {
		return repositories.StockBatchResult{}, nil
	}
	return s.decrementFn(ctx, req)
}

func (s *stubStockRepository) Restore(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
	if s.restoreFn == nil {
		return repositories.StockBatchResult{}, nil
	}
	return s.restoreFn(ctx, req)
}

func (s *stubStockRepository) GetProduct(ctx context.Context, ref string) (domain.Product, error) {
	if s.getProductFn == nil {
		return domain.Product{}, errors.New("getProduct not stubbed")
	}
	return s.getProductFn(ctx, ref)
}

func (s *stubStockRepository) GetProducts(ctx context.Context, refs []string) (map[string]domain.Product, error) {
	if s.getProductsFn == nil {
		return map[string]domain.Product{}, nil
	}
	return s.getProductsFn(ctx, refs)
}

func newTestStockService(t *testing.T, deps StockServiceDeps) StockService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = testClock
	}
	svc, err := NewStockService(deps)
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}
	return svc
}

func TestStockServiceCommitPassesBatchToLedger(t *testing.T) {
	var captured repositories.StockBatchRequest
	repo := &stubStockRepository{
		decrementFn: func(_ context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
			captured = req
			return repositories.StockBatchResult{Counts: map[string]int{"prod-1": 8}}, nil
		},
	}
	svc := newTestStockService(t, StockServiceDeps{Stock: repo})

	err := svc.CommitOrderStock(context.Background(), StockCommitCommand{
		OrderID: "ord_1",
		Adjustments: []domain.StockAdjustment{
			{ProductRef: "prod-1", Quantity: 2},
		},
		ActorID: "staff-1",
	})
	if err != nil {
		t.Fatalf("CommitOrderStock: %v", err)
	}
	if captured.OrderRef != "ord_1" {
		t.Fatalf("unexpected order ref %q", captured.OrderRef)
	}
	if len(captured.Adjustments) != 1 || captured.Adjustments[0].Quantity != 2 {
		t.Fatalf("unexpected adjustments %+v", captured.Adjustments)
	}
	if !captured.Now.Equal(testClock()) {
		t.Fatalf("expected fixed clock on request, got %v", captured.Now)
	}
}

func TestStockServiceCommitValidatesAdjustments(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{Stock: &stubStockRepository{}})

	cases := []struct {
		name string
		cmd  StockCommitCommand
	}{
		{"no adjustments", StockCommitCommand{OrderID: "ord_1"}},
		{"blank product ref", StockCommitCommand{OrderID: "ord_1", Adjustments: []domain.StockAdjustment{{ProductRef: " ", Quantity: 1}}}},
		{"zero quantity", StockCommitCommand{OrderID: "ord_1", Adjustments: []domain.StockAdjustment{{ProductRef: "prod-1", Quantity: 0}}}},
		{"negative quantity", StockCommitCommand{OrderID: "ord_1", Adjustments: []domain.StockAdjustment{{ProductRef: "prod-1", Quantity: -4}}}},
	}

	for _, tc := range cases {
		if err := svc.CommitOrderStock(context.Background(), tc.cmd); !errors.Is(err, ErrStockInvalidInput) {
			t.Fatalf("%s: expected ErrStockInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestStockServiceMapsLedgerErrors(t *testing.T) {
	cases := []struct {
		name    string
		ledger  error
		want    error
		partial string
	}{
		{
			"insufficient line",
			repositories.NewStockError(repositories.StockErrorInsufficient, "prod-2", "2 requested, 1 left", nil),
			ErrStockInsufficient,
			"prod-2",
		},
		{
			"missing product",
			repositories.NewStockError(repositories.StockErrorProductNotFound, "prod-9", "no such product", nil),
			ErrStockProductNotFound,
			"prod-9",
		},
		{
			"invalid quantity",
			repositories.NewStockError(repositories.StockErrorInvalidQuantity, "prod-1", "quantity must be positive", nil),
			ErrStockInvalidInput,
			"",
		},
		{
			"backend unavailable",
			&stubRepoError{msg: "deadline exceeded", unavailable: true},
			ErrStockUnavailable,
			"deadline exceeded",
		},
		{
			"document missing",
			&stubRepoError{msg: "doc gone", notFound: true},
			ErrStockProductNotFound,
			"",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubStockRepository{
				decrementFn: func(context.Context, repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
					return repositories.StockBatchResult{}, tc.ledger
				},
			}
			svc := newTestStockService(t, StockServiceDeps{Stock: repo})

			err := svc.CommitOrderStock(context.Background(), StockCommitCommand{
				OrderID:     "ord_1",
				Adjustments: []domain.StockAdjustment{{ProductRef: "prod-1", Quantity: 1}},
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.partial != "" && !strings.Contains(err.Error(), tc.partial) {
				t.Fatalf("expected %q in error, got %v", tc.partial, err)
			}
		})
	}
}

func TestStockServiceRestorePublishesProductUpdates(t *testing.T) {
	repo := &stubStockRepository{
		restoreFn: func(context.Context, repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
			return repositories.StockBatchResult{Counts: map[string]int{"prod-1": 12}}, nil
		},
	}
	events := &stubEventPublisher{}
	svc := newTestStockService(t, StockServiceDeps{Stock: repo, Events: events})

	err := svc.RestoreOrderStock(context.Background(), StockCommitCommand{
		OrderID:     "ord_1",
		Adjustments: []domain.StockAdjustment{{ProductRef: "prod-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("RestoreOrderStock: %v", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one product update event, got %d", len(events.events))
	}
	event := events.events[0]
	if event.Event != RealtimeEventProductUpdate || event.Channel != string(domain.NotificationChannelAdmin) {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Payload["countInStock"] != 12 || event.Payload["productRef"] != "prod-1" {
		t.Fatalf("unexpected payload %+v", event.Payload)
	}
}

func TestStockServicePublishFailureDoesNotFailCommit(t *testing.T) {
	repo := &stubStockRepository{
		decrementFn: func(context.Context, repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
			return repositories.StockBatchResult{Counts: map[string]int{"prod-1": 3}}, nil
		},
	}
	events := &stubEventPublisher{
		publishFn: func(context.Context, RealtimeEvent) error {
			return errors.New("topic unavailable")
		},
	}
	var logged []string
	svc := newTestStockService(t, StockServiceDeps{
		Stock:  repo,
		Events: events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	err := svc.CommitOrderStock(context.Background(), StockCommitCommand{
		OrderID:     "ord_1",
		Adjustments: []domain.StockAdjustment{{ProductRef: "prod-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("commit must succeed despite publish failure, got %v", err)
	}
	if len(logged) != 1 || logged[0] != "stock.event.publish.failed" {
		t.Fatalf("expected publish failure log, got %v", logged)
	}
}

func TestStockServiceGetProductsRequiresRefs(t *testing.T) {
	svc := newTestStockService(t, StockServiceDeps{Stock: &stubStockRepository{}})

	if _, err := svc.GetProducts(context.Background(), nil); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
}
