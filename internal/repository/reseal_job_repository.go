package repository

import (
	"context"
	"time"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type ResealJobRepository interface {
	Create(ctx context.Context, j *model.ResealJob) error
	FindByComputationID(ctx context.Context, id uint64) (*model.ResealJob, error)
	LatestForPurchase(ctx context.Context, purchase string) (*model.ResealJob, error)
	Transition(ctx context.Context, address string, from, to model.ResealJobStatus, deliveredAt *time.Time) (int64, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]model.ResealJob, error)
}

type resealJobRepository struct {
	db *gorm.DB
}

func NewResealJobRepository(db *gorm.DB) ResealJobRepository {
	return &resealJobRepository{db: db}
}

func (r *resealJobRepository) Create(ctx context.Context, j *model.ResealJob) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *resealJobRepository) FindByComputationID(ctx context.Context, id uint64) (*model.ResealJob, error) {
	var j model.ResealJob
	if err := r.db.WithContext(ctx).Where("computation_id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *resealJobRepository) LatestForPurchase(ctx context.Context, purchase string) (*model.ResealJob, error) {
	var j model.ResealJob
	if err := r.db.WithContext(ctx).
		Where("purchase = ?", purchase).
		Order("created_at DESC").
		Order("computation_id DESC").
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// Transition moves a job between states only if it is still in from.
func (r *resealJobRepository) Transition(ctx context.Context, address string, from, to model.ResealJobStatus, deliveredAt *time.Time) (int64, error) {
	updates := map[string]interface{}{"status": to}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	res := r.db.WithContext(ctx).
		Model(&model.ResealJob{}).
		Where("address = ? AND status = ?", address, from).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListStale returns requested jobs created before the cutoff, oldest first.
func (r *resealJobRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]model.ResealJob, error) {
	var list []model.ResealJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.ResealJobRequested, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
