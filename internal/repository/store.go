package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

// Store groups the repositories that share one database handle. A Store
// handed to an InTx callback is bound to that transaction.
type Store struct {
	db *gorm.DB

	Marketplaces MarketplaceRepository
	Devices      DeviceRepository
	Listings     ListingRepository
	Purchases    PurchaseRepository
	Accounts     TokenAccountRepository
	ResealJobs   ResealJobRepository
	Quality      QualityRepository
	Events       EventRepository
	Cursors      CursorRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Marketplaces: NewMarketplaceRepository(db),
		Devices:      NewDeviceRepository(db),
		Listings:     NewListingRepository(db),
		Purchases:    NewPurchaseRepository(db),
		Accounts:     NewTokenAccountRepository(db),
		ResealJobs:   NewResealJobRepository(db),
		Quality:      NewQualityRepository(db),
		Events:       NewEventRepository(db),
		Cursors:      NewCursorRepository(db),
	}
}

// InTx runs fn inside a single database transaction. Any error returned by
// fn rolls back every write made through the transactional Store.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return ErrDBNotReady
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *Store) DB() *gorm.DB {
	return s.db
}
