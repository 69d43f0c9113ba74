package repository

import (
	"context"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type EventFilter struct {
	After   uint64
	Kinds   []model.EventKind
	Listing string
	Limit   int
}

type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	List(ctx context.Context, f EventFilter) ([]model.Event, error)
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// List returns events with IDs above f.After in ascending order.
func (r *eventRepository) List(ctx context.Context, f EventFilter) ([]model.Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&model.Event{}).Where("id > ?", f.After)
	if len(f.Kinds) > 0 {
		q = q.Where("kind IN ?", f.Kinds)
	}
	if f.Listing != "" {
		q = q.Where("listing = ?", f.Listing)
	}
	var list []model.Event
	if err := q.Order("id ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
