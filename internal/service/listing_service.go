package service

import (
	"context"
	"errors"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/metrics"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/reqctx"
	"github.com/shinyyama/sensor-market/internal/repository"
	"gorm.io/gorm"
)

var listingLog = logging.Logger("listing")

const maxCIDLen = 64

type CreateListingInput struct {
	Seller              string
	Marketplace         string
	Device              string
	DataCID             string
	DekCapsuleForMxeCID string
	PricePerUnit        uint64
	TotalDataUnits      uint64
	ExpiresAt           *time.Time
}

type ListingService interface {
	Create(ctx context.Context, in CreateListingInput) (*model.Listing, error)
	Cancel(ctx context.Context, seller, listing string) (*model.Listing, error)
	Get(ctx context.Context, address string) (*model.Listing, error)
	List(ctx context.Context, f repository.ListingFilter) ([]model.Listing, int64, error)
	ListBySeller(ctx context.Context, seller string, limit, offset int) ([]model.Listing, int64, error)
}

type listingService struct {
	store *repository.Store
	now   Clock
}

func NewListingService(store *repository.Store, now Clock) ListingService {
	return &listingService{store: store, now: orSystem(now)}
}

func (s *listingService) Create(ctx context.Context, in CreateListingInput) (*model.Listing, error) {
	if in.Seller == "" {
		return nil, ErrMissingIdentity
	}
	if in.PricePerUnit == 0 || in.PricePerUnit > model.MaxAmount {
		return nil, ErrInvalidPrice
	}
	if in.TotalDataUnits == 0 || in.TotalDataUnits > model.MaxAmount {
		return nil, ErrInvalidDataUnits
	}
	if in.DataCID == "" {
		return nil, ErrDataCIDEmpty
	}
	if len(in.DataCID) > maxCIDLen {
		return nil, ErrCidTooLong
	}
	if in.DekCapsuleForMxeCID == "" {
		return nil, ErrMxeCapsuleCIDEmpty
	}
	if len(in.DekCapsuleForMxeCID) > maxCIDLen {
		return nil, ErrCidTooLong
	}

	now := s.now()
	var l *model.Listing
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		m, err := tx.Marketplaces.FindByAddress(ctx, in.Marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}
		if !m.IsActive {
			return ErrMarketplaceInactive
		}
		d, err := tx.Devices.FindByAddress(ctx, in.Device)
		if err != nil {
			return notFound(err, ErrDeviceNotFound)
		}
		if d.Marketplace != m.Address {
			return ErrWrongMarketplaceForDevice
		}
		if !d.IsActive {
			return ErrDeviceInactive
		}
		if d.Owner != in.Seller {
			return ErrUnauthorized
		}
		if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
			return ErrInvalidExpiry
		}

		addr := address.Listing(m.Address, in.Seller, d.DeviceID)
		if _, err := tx.Listings.FindByAddress(ctx, addr); err == nil {
			return ErrListingExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		l = &model.Listing{
			Address:             addr,
			Seller:              in.Seller,
			Marketplace:         m.Address,
			Device:              d.Address,
			DeviceID:            d.DeviceID,
			DataCID:             in.DataCID,
			DekCapsuleForMxeCID: in.DekCapsuleForMxeCID,
			PricePerUnit:        in.PricePerUnit,
			TotalDataUnits:      in.TotalDataUnits,
			RemainingUnits:      in.TotalDataUnits,
			TokenMint:           m.TokenMint,
			Status:              model.ListingStatusActive,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if in.ExpiresAt != nil {
			exp := in.ExpiresAt.UTC().Truncate(time.Second)
			l.ExpiresAt = &exp
		}
		if err := tx.Listings.Create(ctx, l); err != nil {
			return err
		}
		// proceeds land in the seller's account for the marketplace mint
		if err := tx.Accounts.Open(ctx, &model.TokenAccount{
			Address: address.TokenAccount(in.Seller, m.TokenMint),
			Owner:   in.Seller,
			Mint:    m.TokenMint,
		}); err != nil {
			return err
		}
		return emit(ctx, tx, model.EventListingCreated, addr, "", in.Seller, listingPayload(l), now)
	})
	if err != nil {
		return nil, err
	}
	metrics.ListingsChanged.WithLabelValues(l.Status.String()).Inc()
	listingLog.Infow("listing created", "rid", reqctx.RID(ctx), "listing", l.Address, "seller", l.Seller,
		"price_per_unit", l.PricePerUnit, "units", l.TotalDataUnits)
	return l, nil
}

func (s *listingService) Cancel(ctx context.Context, seller, listing string) (*model.Listing, error) {
	now := s.now()
	var l *model.Listing
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		l, err = tx.Listings.FindByAddress(ctx, listing)
		if err != nil {
			return notFound(err, ErrListingNotFound)
		}
		if l.Seller != seller {
			return ErrUnauthorized
		}
		if l.Status != model.ListingStatusActive {
			return ErrListingNotActive
		}
		n, err := tx.Listings.CancelIfActive(ctx, listing, seller, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrListingNotActive
		}
		l.Status = model.ListingStatusCancelled
		l.UpdatedAt = now
		return emit(ctx, tx, model.EventListingCancelled, listing, "", seller, listingPayload(l), now)
	})
	if err != nil {
		return nil, err
	}
	metrics.ListingsChanged.WithLabelValues(l.Status.String()).Inc()
	listingLog.Infow("listing cancelled", "rid", reqctx.RID(ctx), "listing", listing, "remaining_units", l.RemainingUnits)
	return l, nil
}

func (s *listingService) Get(ctx context.Context, addr string) (*model.Listing, error) {
	l, err := s.store.Listings.FindByAddress(ctx, addr)
	if err != nil {
		return nil, notFound(err, ErrListingNotFound)
	}
	return l, nil
}

func (s *listingService) List(ctx context.Context, f repository.ListingFilter) ([]model.Listing, int64, error) {
	return s.store.Listings.List(ctx, f)
}

func (s *listingService) ListBySeller(ctx context.Context, seller string, limit, offset int) ([]model.Listing, int64, error) {
	return s.store.Listings.List(ctx, repository.ListingFilter{Seller: seller, Limit: limit, Offset: offset})
}

func listingPayload(l *model.Listing) model.ListingPayload {
	return model.ListingPayload{
		Listing:        l.Address,
		Seller:         l.Seller,
		Marketplace:    l.Marketplace,
		Device:         l.Device,
		PricePerUnit:   l.PricePerUnit,
		TotalDataUnits: l.TotalDataUnits,
		Status:         l.Status.String(),
	}
}
