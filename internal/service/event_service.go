package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/repository"
)

type EventService interface {
	List(ctx context.Context, f repository.EventFilter) ([]model.Event, error)
}

type eventService struct {
	store *repository.Store
}

func NewEventService(store *repository.Store) EventService {
	return &eventService{store: store}
}

func (s *eventService) List(ctx context.Context, f repository.EventFilter) ([]model.Event, error) {
	return s.store.Events.List(ctx, f)
}

// emit appends an event through tx so it commits or rolls back with the
// state change it describes.
func emit(ctx context.Context, tx *repository.Store, kind model.EventKind, listing, purchase, actor string, payload any, at time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.Events.Create(ctx, &model.Event{
		Kind:      kind,
		Listing:   listing,
		Purchase:  purchase,
		Actor:     actor,
		Payload:   raw,
		CreatedAt: at,
	})
}
