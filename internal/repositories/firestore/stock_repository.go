package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/sahel-market/api/internal/domain"
	pfirestore "github.com/sahel-market/api/internal/platform/firestore"
	"github.com/sahel-market/api/internal/repositories"
)

const productsCollection = "products"

// StockRepository mutates product stock counts with all-or-nothing semantics.
type StockRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &StockRepository{provider: provider, products: products}, nil
}

// Decrement subtracts every adjustment inside one transaction. Every line is
// validated before the first write, so a short line leaves all counts intact.
func (r *StockRepository) Decrement(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
	return r.applyBatch(ctx, "stock.decrement", req, -1)
}

// Restore adds quantities back using the same batch transaction.
func (r *StockRepository) Restore(ctx context.Context, req repositories.StockBatchRequest) (repositories.StockBatchResult, error) {
	return r.applyBatch(ctx, "stock.restore", req, +1)
}

func (r *StockRepository) applyBatch(ctx context.Context, op string, req repositories.StockBatchRequest, sign int) (repositories.StockBatchResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockBatchResult{}, errors.New("stock repository not initialised")
	}
	if len(req.Adjustments) == 0 {
		return repositories.StockBatchResult{}, errors.New("stock batch: at least one adjustment is required")
	}

	now := req.Now.UTC()
	var result repositories.StockBatchResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}

		// Reads complete for every line before the first write so a failed
		// check aborts the transaction with no stock mutated.
		writes := make([]pendingWrite, 0, len(req.Adjustments))
		counts := make(map[string]int, len(req.Adjustments))
		for _, adj := range req.Adjustments {
			productRef := strings.TrimSpace(adj.ProductRef)
			if productRef == "" {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, productRef, "stock batch: product ref is required", nil)
			}
			if adj.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorInvalidQuantity, productRef, fmt.Sprintf("stock batch: quantity for %s must be > 0", productRef), nil)
			}

			docRef, err := r.products.DocumentRef(ctx, productRef)
			if err != nil {
				return err
			}
			snap, err := tx.Get(docRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, productRef, fmt.Sprintf("product %s not found", productRef), err)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productRef, err)
			}

			delta := sign * adj.Quantity
			if doc.CountInStock+delta < 0 {
				return repositories.NewStockError(repositories.StockErrorInsufficient, productRef, fmt.Sprintf("insufficient stock for %s", productRef), nil)
			}
			doc.CountInStock += delta
			doc.UpdatedAt = now
			writes = append(writes, pendingWrite{ref: docRef, doc: doc})
			counts[productRef] = doc.CountInStock
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}

		result = repositories.StockBatchResult{Counts: counts}
		return nil
	})
	if err != nil {
		return repositories.StockBatchResult{}, wrapStockError(op, err)
	}
	return result, nil
}

func (r *StockRepository) GetProduct(ctx context.Context, productRef string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("stock repository not initialised")
	}
	productRef = strings.TrimSpace(productRef)
	if productRef == "" {
		return domain.Product{}, errors.New("stock get product: product ref is required")
	}

	doc, err := r.products.Get(ctx, productRef)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, productRef, fmt.Sprintf("product %s not found", productRef), err)
		}
		return domain.Product{}, wrapStockError("stock.getProduct", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *StockRepository) GetProducts(ctx context.Context, productRefs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("stock repository not initialised")
	}

	out := make(map[string]domain.Product, len(productRefs))
	for _, ref := range productRefs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, ok := out[ref]; ok {
			continue
		}
		product, err := r.GetProduct(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[ref] = product
	}
	return out, nil
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	Name         string    `firestore:"name"`
	Price        float64   `firestore:"price"`
	CountInStock int       `firestore:"countInStock"`
	Image        string    `firestore:"image,omitempty"`
	IsVisible    bool      `firestore:"isVisible"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Price:        d.Price,
		CountInStock: d.CountInStock,
		Image:        strings.TrimSpace(d.Image),
		IsVisible:    d.IsVisible,
		UpdatedAt:    d.UpdatedAt,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
