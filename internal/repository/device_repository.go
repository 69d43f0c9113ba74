package repository

import (
	"context"
	"time"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type DeviceRepository interface {
	Create(ctx context.Context, d *model.Device) error
	FindByAddress(ctx context.Context, address string) (*model.Device, error)
	ListByMarketplace(ctx context.Context, marketplace string) ([]model.Device, error)
	Deactivate(ctx context.Context, address string, at time.Time) (int64, error)
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Create(ctx context.Context, d *model.Device) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *deviceRepository) FindByAddress(ctx context.Context, address string) (*model.Device, error) {
	var d model.Device
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepository) ListByMarketplace(ctx context.Context, marketplace string) ([]model.Device, error) {
	var list []model.Device
	if err := r.db.WithContext(ctx).
		Where("marketplace = ?", marketplace).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Deactivate clears the active flag and reports whether a row changed.
func (r *deviceRepository) Deactivate(ctx context.Context, address string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Device{}).
		Where("address = ? AND is_active = ?", address, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
