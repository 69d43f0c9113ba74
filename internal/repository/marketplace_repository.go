package repository

import (
	"context"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type MarketplaceRepository interface {
	Create(ctx context.Context, m *model.Marketplace) error
	FindByAddress(ctx context.Context, address string) (*model.Marketplace, error)
	List(ctx context.Context) ([]model.Marketplace, error)
	Update(ctx context.Context, m *model.Marketplace) error
}

type marketplaceRepository struct {
	db *gorm.DB
}

func NewMarketplaceRepository(db *gorm.DB) MarketplaceRepository {
	return &marketplaceRepository{db: db}
}

func (r *marketplaceRepository) Create(ctx context.Context, m *model.Marketplace) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *marketplaceRepository) FindByAddress(ctx context.Context, address string) (*model.Marketplace, error) {
	var m model.Marketplace
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *marketplaceRepository) List(ctx context.Context) ([]model.Marketplace, error) {
	var list []model.Marketplace
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *marketplaceRepository) Update(ctx context.Context, m *model.Marketplace) error {
	return r.db.WithContext(ctx).Save(m).Error
}
