package repository

import (
	"context"
	"errors"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CursorRepository interface {
	Get(ctx context.Context, name string) (uint64, error)
	Save(ctx context.Context, name string, lastEventID uint64) error
}

type cursorRepository struct {
	db *gorm.DB
}

func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

// Get returns 0 for a cursor that was never saved.
func (r *cursorRepository) Get(ctx context.Context, name string) (uint64, error) {
	var c model.RelayerCursor
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.LastEventID, nil
}

func (r *cursorRepository) Save(ctx context.Context, name string, lastEventID uint64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_event_id", "updated_at"}),
	}).Create(&model.RelayerCursor{Name: name, LastEventID: lastEventID}).Error
}
