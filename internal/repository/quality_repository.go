package repository

import (
	"context"
	"time"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QualityRepository interface {
	CreateJob(ctx context.Context, j *model.QualityJob) error
	FindJobByComputationID(ctx context.Context, id uint64) (*model.QualityJob, error)
	CompleteJob(ctx context.Context, address string, at time.Time) (int64, error)
	DeleteOpenJob(ctx context.Context, address string) (int64, error)
	GetState(ctx context.Context, device string) (*model.DqState, error)
	RecordScore(ctx context.Context, s *model.DqState) error
}

type qualityRepository struct {
	db *gorm.DB
}

func NewQualityRepository(db *gorm.DB) QualityRepository {
	return &qualityRepository{db: db}
}

func (r *qualityRepository) CreateJob(ctx context.Context, j *model.QualityJob) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *qualityRepository) FindJobByComputationID(ctx context.Context, id uint64) (*model.QualityJob, error) {
	var j model.QualityJob
	if err := r.db.WithContext(ctx).Where("computation_id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *qualityRepository) CompleteJob(ctx context.Context, address string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.QualityJob{}).
		Where("address = ? AND completed_at IS NULL", address).
		Update("completed_at", at)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DeleteOpenJob removes a job that has not completed yet.
func (r *qualityRepository) DeleteOpenJob(ctx context.Context, address string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("address = ? AND completed_at IS NULL", address).
		Delete(&model.QualityJob{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *qualityRepository) GetState(ctx context.Context, device string) (*model.DqState, error) {
	var s model.DqState
	if err := r.db.WithContext(ctx).Where("device = ?", device).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordScore replaces the commitment and bumps the window counter. s is
// reloaded so WindowCount reflects the stored value.
func (r *qualityRepository) RecordScore(ctx context.Context, s *model.DqState) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_acc_ciphertext_hash": s.LastAccCiphertextHash,
			"last_acc_nonce_le":        s.LastAccNonceLE,
			"window_count":             gorm.Expr("window_count + 1"),
			"updated_at":               s.UpdatedAt,
		}),
	}).Create(&model.DqState{
		Device:                s.Device,
		LastAccCiphertextHash: s.LastAccCiphertextHash,
		LastAccNonceLE:        s.LastAccNonceLE,
		WindowCount:           1,
		UpdatedAt:             s.UpdatedAt,
	}).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("device = ?", s.Device).First(s).Error
}
