package service

import (
	"strings"
	"testing"
	"time"

	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListing(t *testing.T) {
	f := newFixture(t)

	l := f.listing
	assert.Equal(t, address.Listing(f.mk.Address, "seller", "dev-1"), l.Address)
	assert.Equal(t, model.ListingStatusActive, l.Status)
	assert.Equal(t, uint64(10), l.RemainingUnits)
	assert.Equal(t, uint64(0), l.PurchaseCount)
	assert.Equal(t, testMint, l.TokenMint)
	assert.Nil(t, l.Buyer)

	// the seller can receive proceeds immediately
	assert.Equal(t, uint64(0), f.balance(t, "seller"))
}

func TestCreateListingRejections(t *testing.T) {
	f := newFixture(t)
	d2, err := f.registry.RegisterDevice(f.ctx, "seller", f.mk.Address, "dev-2")
	require.NoError(t, err)
	other, err := f.registry.InitializeMarketplace(f.ctx, "admin2", "weather", 0, testMint)
	require.NoError(t, err)
	foreign, err := f.registry.RegisterDevice(f.ctx, "seller", other.Address, "dev-9")
	require.NoError(t, err)
	past := f.now.Add(-time.Minute)

	valid := CreateListingInput{
		Seller:              "seller",
		Marketplace:         f.mk.Address,
		Device:              d2.Address,
		DataCID:             "bafkdata",
		DekCapsuleForMxeCID: "bafkmxe",
		PricePerUnit:        5,
		TotalDataUnits:      5,
	}
	cases := []struct {
		name   string
		mutate func(in *CreateListingInput)
		want   error
	}{
		{"zero price", func(in *CreateListingInput) { in.PricePerUnit = 0 }, ErrInvalidPrice},
		{"price above int64", func(in *CreateListingInput) { in.PricePerUnit = 1 << 63 }, ErrInvalidPrice},
		{"zero units", func(in *CreateListingInput) { in.TotalDataUnits = 0 }, ErrInvalidDataUnits},
		{"units above int64", func(in *CreateListingInput) { in.TotalDataUnits = 1 << 63 }, ErrInvalidDataUnits},
		{"empty data cid", func(in *CreateListingInput) { in.DataCID = "" }, ErrDataCIDEmpty},
		{"long data cid", func(in *CreateListingInput) { in.DataCID = strings.Repeat("x", 65) }, ErrCidTooLong},
		{"empty mxe cid", func(in *CreateListingInput) { in.DekCapsuleForMxeCID = "" }, ErrMxeCapsuleCIDEmpty},
		{"not the owner", func(in *CreateListingInput) { in.Seller = "mallory" }, ErrUnauthorized},
		{"device elsewhere", func(in *CreateListingInput) { in.Device = foreign.Address }, ErrWrongMarketplaceForDevice},
		{"past expiry", func(in *CreateListingInput) { in.ExpiresAt = &past }, ErrInvalidExpiry},
		{"duplicate", func(in *CreateListingInput) { in.Device = f.dev.Address }, ErrListingExists},
		{"unknown device", func(in *CreateListingInput) { in.Device = "missing" }, ErrDeviceNotFound},
		{"unknown marketplace", func(in *CreateListingInput) { in.Marketplace = "missing" }, ErrMarketplaceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.listings.Create(f.ctx, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = f.registry.DeactivateDevice(f.ctx, "admin", d2.Address)
	require.NoError(t, err)
	_, err = f.listings.Create(f.ctx, valid)
	assert.ErrorIs(t, err, ErrDeviceInactive)

	off := false
	_, err = f.registry.UpdateMarketplace(f.ctx, "admin", f.mk.Address, MarketplaceUpdate{IsActive: &off})
	require.NoError(t, err)
	_, err = f.listings.Create(f.ctx, valid)
	assert.ErrorIs(t, err, ErrMarketplaceInactive)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)

	_, err := f.listings.Cancel(f.ctx, "buyer", f.listing.Address)
	require.ErrorIs(t, err, ErrUnauthorized)

	l, err := f.listings.Cancel(f.ctx, "seller", f.listing.Address)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusCancelled, l.Status)

	_, err = f.listings.Cancel(f.ctx, "seller", f.listing.Address)
	require.ErrorIs(t, err, ErrListingNotActive)

	_, err = f.buy("buyer", f.listing, 1, 0)
	require.ErrorIs(t, err, ErrListingNotActive)

	assert.Contains(t, f.kinds(t), model.EventListingCancelled)
}

func TestCancelSoldOutListing(t *testing.T) {
	f := newFixture(t)
	_, err := f.buy("buyer", f.listing, 10, 0)
	require.NoError(t, err)

	_, err = f.listings.Cancel(f.ctx, "seller", f.listing.Address)
	assert.ErrorIs(t, err, ErrListingNotActive)
	assert.Equal(t, model.ListingStatusSoldOut, f.reload(t, f.listing).Status)
}

func TestListListings(t *testing.T) {
	f := newFixture(t)
	f.newListing(t, "other-seller", "dev-2", 1, 1, nil)
	_, err := f.listings.Cancel(f.ctx, "seller", f.listing.Address)
	require.NoError(t, err)

	active := model.ListingStatusActive
	list, total, err := f.listings.List(f.ctx, repository.ListingFilter{Marketplace: f.mk.Address, Status: &active})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "other-seller", list[0].Seller)

	mine, total, err := f.listings.ListBySeller(f.ctx, "seller", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, f.listing.Address, mine[0].Address)
}
