package service

import (
	"testing"

	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeMarketplace(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, address.Marketplace("admin", "sensors"), f.mk.Address)
	treasury, bump, err := address.Treasury(f.mk.Address)
	require.NoError(t, err)
	assert.Equal(t, treasury, f.mk.Treasury)
	assert.Equal(t, bump, f.mk.TreasuryBump)
	assert.Equal(t, uint64(0), f.balance(t, f.mk.Treasury))

	_, err = f.registry.InitializeMarketplace(f.ctx, "admin", "sensors", 0, testMint)
	assert.ErrorIs(t, err, ErrMarketplaceExists)

	cases := []struct {
		name  string
		mname string
		bps   uint16
		mint  string
		want  error
	}{
		{"empty name", "", 0, testMint, ErrInvalidName},
		{"long name", "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijk", 0, testMint, ErrInvalidName},
		{"bad characters", "sensors!", 0, testMint, ErrInvalidName},
		{"fee too high", "ok", 10_001, testMint, ErrInvalidFeeBps},
		{"no mint", "ok", 0, "", ErrInvalidMint},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.registry.InitializeMarketplace(f.ctx, "admin", tc.mname, tc.bps, tc.mint)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, fault.IsValidation(err))
		})
	}

	full, err := f.registry.InitializeMarketplace(f.ctx, "admin", "all fees", 10_000, testMint)
	require.NoError(t, err)
	assert.Equal(t, uint16(10_000), full.SellerFeeBps)
}

func TestUpdateMarketplace(t *testing.T) {
	f := newFixture(t)
	bps := uint16(500)

	_, err := f.registry.UpdateMarketplace(f.ctx, "seller", f.mk.Address, MarketplaceUpdate{SellerFeeBps: &bps})
	require.ErrorIs(t, err, ErrUnauthorized)

	tooHigh := uint16(10_001)
	_, err = f.registry.UpdateMarketplace(f.ctx, "admin", f.mk.Address, MarketplaceUpdate{SellerFeeBps: &tooHigh})
	require.ErrorIs(t, err, ErrInvalidFeeBps)

	m, err := f.registry.UpdateMarketplace(f.ctx, "admin", f.mk.Address, MarketplaceUpdate{SellerFeeBps: &bps})
	require.NoError(t, err)
	assert.Equal(t, bps, m.SellerFeeBps)
	assert.True(t, m.IsActive)

	got, err := f.registry.GetMarketplace(f.ctx, f.mk.Address)
	require.NoError(t, err)
	assert.Equal(t, bps, got.SellerFeeBps)
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.RegisterDevice(f.ctx, "seller", f.mk.Address, "dev-1")
	require.ErrorIs(t, err, ErrDeviceExists)
	_, err = f.registry.RegisterDevice(f.ctx, "seller", f.mk.Address, "bad id")
	require.ErrorIs(t, err, ErrInvalidDeviceID)
	_, err = f.registry.RegisterDevice(f.ctx, "seller", "missing", "dev-3")
	require.ErrorIs(t, err, ErrMarketplaceNotFound)

	_, err = f.registry.DeactivateDevice(f.ctx, "buyer", f.dev.Address)
	require.ErrorIs(t, err, ErrUnauthorized)

	d, err := f.registry.DeactivateDevice(f.ctx, "admin", f.dev.Address)
	require.NoError(t, err)
	assert.False(t, d.IsActive)

	// repeat deactivation is a no-op
	d, err = f.registry.DeactivateDevice(f.ctx, "seller", f.dev.Address)
	require.NoError(t, err)
	assert.False(t, d.IsActive)

	list, err := f.registry.ListDevices(f.ctx, f.mk.Address)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFundAccount(t *testing.T) {
	f := newFixture(t)

	a, err := f.accounts.Fund(f.ctx, "buyer", testMint, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_005), a.Amount)

	_, err = f.accounts.Fund(f.ctx, "buyer", testMint, ^uint64(0))
	require.ErrorIs(t, err, ErrMathOverflow)
	_, err = f.accounts.Fund(f.ctx, "buyer", testMint, model.MaxAmount-10_004)
	require.ErrorIs(t, err, ErrMathOverflow)
	assert.Equal(t, uint64(10_005), f.balance(t, "buyer"))

	a, err = f.accounts.Fund(f.ctx, "rich", testMint, model.MaxAmount)
	require.NoError(t, err)
	assert.Equal(t, uint64(model.MaxAmount), a.Amount)

	opened, err := f.accounts.Open(f.ctx, "buyer", testMint)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_005), opened.Amount)

	list, err := f.accounts.ListByOwner(f.ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
