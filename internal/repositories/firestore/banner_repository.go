package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/sahel-market/api/internal/domain"
	pfirestore "github.com/sahel-market/api/internal/platform/firestore"
)

const bannersCollection = "promoBanners"

// BannerRepository reads promotional banners. The storefront keeps at most one
// active banner; coupon validation resolves against it.
type BannerRepository struct {
	base *pfirestore.BaseRepository[bannerDocument]
}

func NewBannerRepository(provider *pfirestore.Provider) (*BannerRepository, error) {
	if provider == nil {
		return nil, errors.New("banner repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[bannerDocument](provider, bannersCollection, nil, nil)
	return &BannerRepository{base: base}, nil
}

// FindActive returns the newest active banner.
func (r *BannerRepository) FindActive(ctx context.Context) (domain.PromoBanner, error) {
	if r == nil || r.base == nil {
		return domain.PromoBanner{}, errors.New("banner repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("isActive", "==", true).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.PromoBanner{}, err
	}
	if len(docs) == 0 {
		return domain.PromoBanner{}, pfirestore.WrapError("banners.findActive", notFoundError("no active banner"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *BannerRepository) FindByID(ctx context.Context, bannerID string) (domain.PromoBanner, error) {
	if r == nil || r.base == nil {
		return domain.PromoBanner{}, errors.New("banner repository not initialised")
	}
	doc, err := r.base.Get(ctx, bannerID)
	if err != nil {
		return domain.PromoBanner{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type bannerDocument struct {
	Title         string    `firestore:"title"`
	CouponCode    string    `firestore:"couponCode"`
	DiscountType  string    `firestore:"discountType"`
	DiscountValue float64   `firestore:"discountValue"`
	IsActive      bool      `firestore:"isActive"`
	EndDate       time.Time `firestore:"endDate"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d bannerDocument) toDomain(id string) domain.PromoBanner {
	return domain.PromoBanner{
		ID:            id,
		Title:         strings.TrimSpace(d.Title),
		CouponCode:    strings.TrimSpace(d.CouponCode),
		DiscountType:  domain.DiscountType(d.DiscountType),
		DiscountValue: d.DiscountValue,
		IsActive:      d.IsActive,
		EndDate:       d.EndDate,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// notFoundError shapes a missing-result outcome so WrapError categorises it
// the same way a missing document read would be.
func notFoundError(msg string) error {
	return status.Error(codes.NotFound, msg)
}
