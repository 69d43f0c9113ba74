package repository

import (
	"context"
	"time"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type ListingFilter struct {
	Marketplace string
	Seller      string
	Status      *model.ListingStatus
	Limit       int
	Offset      int
}

// ListingPurchase describes one inventory decrement against the snapshot
// the caller validated.
type ListingPurchase struct {
	Address           string
	ObservedCount     uint64
	ObservedRemaining uint64
	Units             uint64
	Buyer             string
	At                time.Time
}

type ListingRepository interface {
	Create(ctx context.Context, l *model.Listing) error
	FindByAddress(ctx context.Context, address string) (*model.Listing, error)
	List(ctx context.Context, f ListingFilter) ([]model.Listing, int64, error)
	ApplyPurchase(ctx context.Context, p ListingPurchase) (int64, error)
	CancelIfActive(ctx context.Context, address, seller string, at time.Time) (int64, error)
}

type listingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, l *model.Listing) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *listingRepository) FindByAddress(ctx context.Context, address string) (*model.Listing, error) {
	var l model.Listing
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *listingRepository) List(ctx context.Context, f ListingFilter) ([]model.Listing, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Listing{})
	if f.Marketplace != "" {
		q = q.Where("marketplace = ?", f.Marketplace)
	}
	if f.Seller != "" {
		q = q.Where("seller = ?", f.Seller)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []model.Listing
	if err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ApplyPurchase decrements inventory only if the listing still matches the
// observed snapshot. Zero rows affected means another purchase got there
// first.
func (r *listingRepository) ApplyPurchase(ctx context.Context, p ListingPurchase) (int64, error) {
	updates := map[string]interface{}{
		"remaining_units": gorm.Expr("remaining_units - ?", p.Units),
		"purchase_count":  gorm.Expr("purchase_count + 1"),
		"buyer":           p.Buyer,
		"updated_at":      p.At,
	}
	if p.Units == p.ObservedRemaining {
		updates["status"] = model.ListingStatusSoldOut
		updates["sold_at"] = p.At
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("address = ? AND purchase_count = ? AND remaining_units = ? AND status = ?",
			p.Address, p.ObservedCount, p.ObservedRemaining, model.ListingStatusActive).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) CancelIfActive(ctx context.Context, address, seller string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("address = ? AND seller = ? AND status = ?", address, seller, model.ListingStatusActive).
		Updates(map[string]interface{}{
			"status":     model.ListingStatusCancelled,
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
