package service

import (
	"context"
	"encoding/hex"
	"errors"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/metrics"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/reqctx"
	"github.com/shinyyama/sensor-market/internal/repository"
	"gorm.io/gorm"
)

var purchaseLog = logging.Logger("purchase")

// PurchaseInput names every record the purchase touches. Empty account
// fields default to the derived token account of the expected owner.
type PurchaseInput struct {
	Buyer           string
	Marketplace     string
	Device          string
	Listing         string
	TokenMint       string
	Treasury        string
	BuyerAccount    string
	SellerAccount   string
	TreasuryAccount string
	Units           uint64
	BuyerX25519     []byte
	PurchaseIndex   uint64
}

type PurchaseResult struct {
	Record  *model.PurchaseRecord
	Listing *model.Listing
}

type PurchaseService interface {
	Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error)
	Get(ctx context.Context, address, uid string) (*model.PurchaseRecord, error)
	ListByBuyer(ctx context.Context, buyer string) ([]model.PurchaseRecord, error)
	ListBySeller(ctx context.Context, seller string) ([]model.PurchaseRecord, error)
}

type purchaseService struct {
	store *repository.Store
	now   Clock
}

func NewPurchaseService(store *repository.Store, now Clock) PurchaseService {
	return &purchaseService{store: store, now: orSystem(now)}
}

func (s *purchaseService) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	res, err := s.purchase(ctx, in)
	metrics.Purchases.WithLabelValues(metrics.Outcome(fault.CodeOf(err), err)).Inc()
	if err != nil {
		purchaseLog.Debugw("purchase rejected", "rid", reqctx.RID(ctx), "listing", in.Listing, "buyer", in.Buyer, "err", err)
		return nil, err
	}
	metrics.UnitsSold.Add(float64(res.Record.UnitsPurchased))
	metrics.FeesCollected.Add(float64(res.Record.Fee))
	if res.Listing.Status == model.ListingStatusSoldOut {
		metrics.ListingsChanged.WithLabelValues(res.Listing.Status.String()).Inc()
	}
	purchaseLog.Infow("purchase settled", "rid", reqctx.RID(ctx), "listing", in.Listing, "purchase", res.Record.Address,
		"buyer", in.Buyer, "units", res.Record.UnitsPurchased, "price", res.Record.PricePaid, "fee", res.Record.Fee,
		"remaining_units", res.Listing.RemainingUnits)
	return res, nil
}

func (s *purchaseService) purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if in.Buyer == "" {
		return nil, ErrMissingIdentity
	}
	if err := mpc.ValidatePublicKey(in.BuyerX25519); err != nil {
		return nil, ErrInvalidPublicKey
	}

	now := s.now()
	var res *PurchaseResult
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		l, err := tx.Listings.FindByAddress(ctx, in.Listing)
		if err != nil {
			return notFound(err, ErrListingNotFound)
		}
		m, err := tx.Marketplaces.FindByAddress(ctx, l.Marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}
		d, err := tx.Devices.FindByAddress(ctx, l.Device)
		if err != nil {
			return notFound(err, ErrDeviceNotFound)
		}

		// 1. the supplied records must be the ones the listing points at
		if l.Marketplace != in.Marketplace {
			return ErrWrongMarketplaceForListing
		}
		if l.Device != in.Device {
			return ErrWrongDeviceForListing
		}
		if l.TokenMint != in.TokenMint {
			return ErrWrongMintForListing
		}
		if !d.IsActive {
			return ErrDeviceInactive
		}
		if m.Treasury != in.Treasury {
			return ErrWrongTreasuryAuthority
		}

		// 2. settlement accounts
		buyerAcct, err := s.account(ctx, tx, in.BuyerAccount, in.Buyer, l.TokenMint)
		if err != nil {
			return err
		}
		sellerAcct, err := s.account(ctx, tx, in.SellerAccount, l.Seller, l.TokenMint)
		if err != nil {
			return err
		}
		treasuryAcct, err := s.account(ctx, tx, in.TreasuryAccount, m.Treasury, l.TokenMint)
		if err != nil {
			return err
		}

		// 3. stale reads lose here
		if in.PurchaseIndex != l.PurchaseCount {
			return ErrPurchaseIndexMismatch
		}

		// 4. business rules
		if in.Units == 0 {
			return ErrInvalidUnitsRequested
		}
		if l.Status != model.ListingStatusActive {
			return ErrListingNotActive
		}
		if l.Seller == in.Buyer {
			return ErrCannotBuyOwnListing
		}
		if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
			return ErrListingExpired
		}
		if in.Units > l.RemainingUnits {
			return ErrInsufficientUnits
		}

		// 5. funds
		price, err := PriceFor(l.PricePerUnit, in.Units)
		if err != nil {
			return err
		}
		if buyerAcct.Amount < price {
			return ErrInsufficientFunds
		}
		fee, toSeller, err := SplitFee(price, m.SellerFeeBps)
		if err != nil {
			return err
		}
		if treasuryAcct.Amount > model.MaxAmount-fee || sellerAcct.Amount > model.MaxAmount-toSeller {
			return ErrMathOverflow
		}

		n, err := tx.Listings.ApplyPurchase(ctx, repository.ListingPurchase{
			Address:           l.Address,
			ObservedCount:     l.PurchaseCount,
			ObservedRemaining: l.RemainingUnits,
			Units:             in.Units,
			Buyer:             in.Buyer,
			At:                now,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrPurchaseIndexMismatch
		}
		index := l.PurchaseCount
		l.RemainingUnits -= in.Units
		l.PurchaseCount++
		l.Buyer = &in.Buyer
		l.UpdatedAt = now
		if l.RemainingUnits == 0 {
			l.Status = model.ListingStatusSoldOut
			l.SoldAt = &now
		}

		rec := &model.PurchaseRecord{
			Address:             address.Purchase(l.Address, index),
			Listing:             l.Address,
			PurchaseIndex:       index,
			Buyer:               in.Buyer,
			Seller:              l.Seller,
			UnitsPurchased:      in.Units,
			PricePaid:           price,
			Fee:                 fee,
			Timestamp:           now,
			BuyerX25519Pubkey:   hex.EncodeToString(in.BuyerX25519),
			DekCapsuleForMxeCID: l.DekCapsuleForMxeCID,
		}
		if err := tx.Purchases.Create(ctx, rec); err != nil {
			return err
		}

		if err := transfer(ctx, tx, buyerAcct.Address, treasuryAcct.Address, fee); err != nil {
			return err
		}
		if err := transfer(ctx, tx, buyerAcct.Address, sellerAcct.Address, toSeller); err != nil {
			return err
		}

		if err := emit(ctx, tx, model.EventListingPurchased, l.Address, rec.Address, in.Buyer, model.ListingPurchasedPayload{
			Listing:        l.Address,
			Purchase:       rec.Address,
			PurchaseIndex:  index,
			Buyer:          in.Buyer,
			Seller:         l.Seller,
			Units:          in.Units,
			PricePaid:      price,
			Fee:            fee,
			RemainingUnits: l.RemainingUnits,
			Timestamp:      now.Unix(),
		}, now); err != nil {
			return err
		}
		if err := emit(ctx, tx, model.EventPurchaseNeedsReseal, l.Address, rec.Address, in.Buyer, model.PurchaseNeedsResealPayload{
			Purchase:            rec.Address,
			Listing:             l.Address,
			Buyer:               in.Buyer,
			BuyerX25519Pubkey:   rec.BuyerX25519Pubkey,
			DekCapsuleForMxeCID: rec.DekCapsuleForMxeCID,
		}, now); err != nil {
			return err
		}

		res = &PurchaseResult{Record: rec, Listing: l}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// account loads a settlement account and checks who holds it and in what
// currency.
func (s *purchaseService) account(ctx context.Context, tx *repository.Store, addr, owner, mint string) (*model.TokenAccount, error) {
	if addr == "" {
		addr = address.TokenAccount(owner, mint)
	}
	a, err := tx.Accounts.FindByAddress(ctx, addr)
	if err != nil {
		return nil, notFound(err, ErrAccountNotFound)
	}
	if a.Owner != owner {
		return nil, ErrAccountWrongOwner
	}
	if a.Mint != mint {
		return nil, ErrAccountWrongMint
	}
	return a, nil
}

// transfer moves amount between two accounts. Zero transfers are skipped.
func transfer(ctx context.Context, tx *repository.Store, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := tx.Accounts.Debit(ctx, from, amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientFunds
		}
		return err
	}
	if err := tx.Accounts.Credit(ctx, to, amount); err != nil {
		return notFound(err, ErrAccountNotFound)
	}
	return nil
}

// Get returns a purchase record to its buyer or seller.
func (s *purchaseService) Get(ctx context.Context, addr, uid string) (*model.PurchaseRecord, error) {
	p, err := s.store.Purchases.FindByAddress(ctx, addr)
	if err != nil {
		return nil, notFound(err, ErrPurchaseNotFound)
	}
	if uid != p.Buyer && uid != p.Seller {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *purchaseService) ListByBuyer(ctx context.Context, buyer string) ([]model.PurchaseRecord, error) {
	return s.store.Purchases.ListByBuyer(ctx, buyer)
}

func (s *purchaseService) ListBySeller(ctx context.Context, seller string) ([]model.PurchaseRecord, error) {
	return s.store.Purchases.ListBySeller(ctx, seller)
}
