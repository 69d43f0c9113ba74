package service

import (
	"context"
	"errors"
	"regexp"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/reqctx"
	"github.com/shinyyama/sensor-market/internal/repository"
	"gorm.io/gorm"
)

var registryLog = logging.Logger("registry")

var (
	nameRe     = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,50}$`)
	deviceIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
)

type MarketplaceUpdate struct {
	SellerFeeBps *uint16
	IsActive     *bool
}

// RegistryService manages the marketplace and device records that listing
// and settlement read.
type RegistryService interface {
	InitializeMarketplace(ctx context.Context, admin, name string, feeBps uint16, tokenMint string) (*model.Marketplace, error)
	UpdateMarketplace(ctx context.Context, admin, marketplace string, in MarketplaceUpdate) (*model.Marketplace, error)
	GetMarketplace(ctx context.Context, address string) (*model.Marketplace, error)
	ListMarketplaces(ctx context.Context) ([]model.Marketplace, error)
	RegisterDevice(ctx context.Context, owner, marketplace, deviceID string) (*model.Device, error)
	DeactivateDevice(ctx context.Context, caller, device string) (*model.Device, error)
	GetDevice(ctx context.Context, address string) (*model.Device, error)
	ListDevices(ctx context.Context, marketplace string) ([]model.Device, error)
}

type registryService struct {
	store *repository.Store
	now   Clock
}

func NewRegistryService(store *repository.Store, now Clock) RegistryService {
	return &registryService{store: store, now: orSystem(now)}
}

func (s *registryService) InitializeMarketplace(ctx context.Context, admin, name string, feeBps uint16, tokenMint string) (*model.Marketplace, error) {
	if admin == "" {
		return nil, ErrMissingIdentity
	}
	if !nameRe.MatchString(name) {
		return nil, ErrInvalidName
	}
	if feeBps > model.MaxFeeBps {
		return nil, ErrInvalidFeeBps
	}
	if tokenMint == "" || len(tokenMint) > 64 {
		return nil, ErrInvalidMint
	}
	addr := address.Marketplace(admin, name)
	treasury, bump, err := address.Treasury(addr)
	if err != nil {
		return nil, err
	}
	now := s.now()
	m := &model.Marketplace{
		Address:      addr,
		Admin:        admin,
		Name:         name,
		Treasury:     treasury,
		TreasuryBump: bump,
		SellerFeeBps: feeBps,
		TokenMint:    tokenMint,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.Marketplaces.FindByAddress(ctx, addr); err == nil {
			return ErrMarketplaceExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Marketplaces.Create(ctx, m); err != nil {
			return err
		}
		return tx.Accounts.Open(ctx, &model.TokenAccount{
			Address: address.TokenAccount(treasury, tokenMint),
			Owner:   treasury,
			Mint:    tokenMint,
		})
	})
	if err != nil {
		return nil, err
	}
	registryLog.Infow("marketplace initialized", "rid", reqctx.RID(ctx), "marketplace", addr, "admin", admin, "fee_bps", feeBps)
	return m, nil
}

func (s *registryService) UpdateMarketplace(ctx context.Context, admin, marketplace string, in MarketplaceUpdate) (*model.Marketplace, error) {
	if in.SellerFeeBps != nil && *in.SellerFeeBps > model.MaxFeeBps {
		return nil, ErrInvalidFeeBps
	}
	var m *model.Marketplace
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		m, err = tx.Marketplaces.FindByAddress(ctx, marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}
		if m.Admin != admin {
			return ErrUnauthorized
		}
		if in.SellerFeeBps != nil {
			m.SellerFeeBps = *in.SellerFeeBps
		}
		if in.IsActive != nil {
			m.IsActive = *in.IsActive
		}
		m.UpdatedAt = s.now()
		return tx.Marketplaces.Update(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	registryLog.Infow("marketplace updated", "rid", reqctx.RID(ctx), "marketplace", marketplace, "fee_bps", m.SellerFeeBps, "active", m.IsActive)
	return m, nil
}

func (s *registryService) GetMarketplace(ctx context.Context, addr string) (*model.Marketplace, error) {
	m, err := s.store.Marketplaces.FindByAddress(ctx, addr)
	if err != nil {
		return nil, notFound(err, ErrMarketplaceNotFound)
	}
	return m, nil
}

func (s *registryService) ListMarketplaces(ctx context.Context) ([]model.Marketplace, error) {
	return s.store.Marketplaces.List(ctx)
}

func (s *registryService) RegisterDevice(ctx context.Context, owner, marketplace, deviceID string) (*model.Device, error) {
	if owner == "" {
		return nil, ErrMissingIdentity
	}
	if !deviceIDRe.MatchString(deviceID) {
		return nil, ErrInvalidDeviceID
	}
	addr := address.Device(marketplace, deviceID)
	now := s.now()
	d := &model.Device{
		Address:     addr,
		Marketplace: marketplace,
		DeviceID:    deviceID,
		Owner:       owner,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		m, err := tx.Marketplaces.FindByAddress(ctx, marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}
		if !m.IsActive {
			return ErrMarketplaceInactive
		}
		if _, err := tx.Devices.FindByAddress(ctx, addr); err == nil {
			return ErrDeviceExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Devices.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	registryLog.Infow("device registered", "rid", reqctx.RID(ctx), "device", addr, "device_id", deviceID, "owner", owner)
	return d, nil
}

// DeactivateDevice may be called by the device owner or the marketplace
// admin. Deactivating an inactive device is a no-op.
func (s *registryService) DeactivateDevice(ctx context.Context, caller, device string) (*model.Device, error) {
	var d *model.Device
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		d, err = tx.Devices.FindByAddress(ctx, device)
		if err != nil {
			return notFound(err, ErrDeviceNotFound)
		}
		if caller != d.Owner {
			m, err := tx.Marketplaces.FindByAddress(ctx, d.Marketplace)
			if err != nil {
				return notFound(err, ErrMarketplaceNotFound)
			}
			if caller != m.Admin {
				return ErrUnauthorized
			}
		}
		now := s.now()
		n, err := tx.Devices.Deactivate(ctx, device, now)
		if err != nil {
			return err
		}
		if n > 0 {
			d.IsActive = false
			d.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	registryLog.Infow("device deactivated", "rid", reqctx.RID(ctx), "device", device, "by", caller)
	return d, nil
}

func (s *registryService) GetDevice(ctx context.Context, addr string) (*model.Device, error) {
	d, err := s.store.Devices.FindByAddress(ctx, addr)
	if err != nil {
		return nil, notFound(err, ErrDeviceNotFound)
	}
	return d, nil
}

func (s *registryService) ListDevices(ctx context.Context, marketplace string) ([]model.Device, error) {
	return s.store.Devices.ListByMarketplace(ctx, marketplace)
}

// notFound maps gorm's missing-row error to a service sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
