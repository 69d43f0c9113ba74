package repository

import (
	"context"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, p *model.PurchaseRecord) error
	FindByAddress(ctx context.Context, address string) (*model.PurchaseRecord, error)
	ListByBuyer(ctx context.Context, buyer string) ([]model.PurchaseRecord, error)
	ListBySeller(ctx context.Context, seller string) ([]model.PurchaseRecord, error)
	ListByListing(ctx context.Context, listing string) ([]model.PurchaseRecord, error)
	SetBuyerCapsuleIfEmpty(ctx context.Context, address, cid string) (int64, error)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, p *model.PurchaseRecord) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *purchaseRepository) FindByAddress(ctx context.Context, address string) (*model.PurchaseRecord, error) {
	var p model.PurchaseRecord
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepository) ListByBuyer(ctx context.Context, buyer string) ([]model.PurchaseRecord, error) {
	return r.list(ctx, "buyer = ?", buyer)
}

func (r *purchaseRepository) ListBySeller(ctx context.Context, seller string) ([]model.PurchaseRecord, error) {
	return r.list(ctx, "seller = ?", seller)
}

func (r *purchaseRepository) ListByListing(ctx context.Context, listing string) ([]model.PurchaseRecord, error) {
	var list []model.PurchaseRecord
	if err := r.db.WithContext(ctx).
		Where("listing = ?", listing).
		Order("purchase_index ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SetBuyerCapsuleIfEmpty writes the buyer capsule cid unless one is already
// set. Zero rows affected means the record was finalized before.
func (r *purchaseRepository) SetBuyerCapsuleIfEmpty(ctx context.Context, address, cid string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.PurchaseRecord{}).
		Where("address = ? AND dek_capsule_for_buyer_cid = ?", address, "").
		Update("dek_capsule_for_buyer_cid", cid)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *purchaseRepository) list(ctx context.Context, where string, arg string) ([]model.PurchaseRecord, error) {
	var list []model.PurchaseRecord
	if err := r.db.WithContext(ctx).
		Where(where, arg).
		Order("timestamp DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
