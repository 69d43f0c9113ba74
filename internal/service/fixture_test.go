package service

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/dbtest"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
	"gorm.io/gorm"
)

const (
	testProgram = "mpc-program"
	testMint    = "usdc"
	testFeeBps  = 250
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []mpc.Request
	err  error
	// deliver, when set, runs before Submit returns, the way a fast cluster
	// can answer while the caller still waits on the gateway.
	deliver func(req mpc.Request)
}

func (f *fakeSubmitter) Submit(_ context.Context, req mpc.Request) error {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.reqs = append(f.reqs, req)
	deliver := f.deliver
	f.mu.Unlock()
	if deliver != nil {
		deliver(req)
	}
	return nil
}

func (f *fakeSubmitter) requests() []mpc.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mpc.Request(nil), f.reqs...)
}

type fixture struct {
	ctx   context.Context
	store *repository.Store
	now   time.Time
	sub   *fakeSubmitter
	key   ed25519.PrivateKey

	registry  RegistryService
	accounts  AccountService
	listings  ListingService
	purchases PurchaseService
	reseal    ResealService
	quality   QualityService
	events    EventService

	mk       *model.Marketplace
	dev      *model.Device
	listing  *model.Listing
	buyerKey []byte
}

// newFixture sets up a marketplace run by "admin", a device owned by
// "seller" listed at 100 per unit for 10 units, and a buyer holding 10000.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.New(t))
}

func newFixtureOn(t *testing.T, gdb *gorm.DB) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: repository.NewStore(gdb),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		sub:   &fakeSubmitter{},
		key:   ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize)),
	}
	clock := func() time.Time { return f.now }
	verifier := mpc.NewVerifier(testProgram, f.key.Public().(ed25519.PublicKey))
	f.registry = NewRegistryService(f.store, clock)
	f.accounts = NewAccountService(f.store)
	f.listings = NewListingService(f.store, clock)
	f.purchases = NewPurchaseService(f.store, clock)
	f.reseal = NewResealService(f.store, f.sub, verifier, clock, 10*time.Minute)
	f.quality = NewQualityService(f.store, f.sub, verifier, clock)
	f.events = NewEventService(f.store)
	f.buyerKey = x25519Pub(t, 3)

	var err error
	f.mk, err = f.registry.InitializeMarketplace(f.ctx, "admin", "sensors", testFeeBps, testMint)
	require.NoError(t, err)
	f.dev, f.listing = f.newListing(t, "seller", "dev-1", 100, 10, nil)
	_, err = f.accounts.Fund(f.ctx, "buyer", testMint, 10_000)
	require.NoError(t, err)
	return f
}

func (f *fixture) newListing(t *testing.T, seller, deviceID string, price, units uint64, expires *time.Time) (*model.Device, *model.Listing) {
	t.Helper()
	d, err := f.registry.RegisterDevice(f.ctx, seller, f.mk.Address, deviceID)
	require.NoError(t, err)
	l, err := f.listings.Create(f.ctx, CreateListingInput{
		Seller:              seller,
		Marketplace:         f.mk.Address,
		Device:              d.Address,
		DataCID:             "bafkdata-" + deviceID,
		DekCapsuleForMxeCID: "bafkmxe-" + deviceID,
		PricePerUnit:        price,
		TotalDataUnits:      units,
		ExpiresAt:           expires,
	})
	require.NoError(t, err)
	return d, l
}

func (f *fixture) input(buyer string, l *model.Listing, units, index uint64) PurchaseInput {
	return PurchaseInput{
		Buyer:         buyer,
		Marketplace:   l.Marketplace,
		Device:        l.Device,
		Listing:       l.Address,
		TokenMint:     l.TokenMint,
		Treasury:      f.mk.Treasury,
		Units:         units,
		BuyerX25519:   f.buyerKey,
		PurchaseIndex: index,
	}
}

func (f *fixture) buy(buyer string, l *model.Listing, units, index uint64) (*PurchaseResult, error) {
	return f.purchases.Purchase(f.ctx, f.input(buyer, l, units, index))
}

func (f *fixture) balance(t *testing.T, owner string) uint64 {
	t.Helper()
	a, err := f.store.Accounts.FindByAddress(f.ctx, address.TokenAccount(owner, testMint))
	require.NoError(t, err)
	return a.Amount
}

func (f *fixture) reload(t *testing.T, l *model.Listing) *model.Listing {
	t.Helper()
	got, err := f.listings.Get(f.ctx, l.Address)
	require.NoError(t, err)
	return got
}

func (f *fixture) kinds(t *testing.T) []model.EventKind {
	t.Helper()
	evs, err := f.events.List(f.ctx, repository.EventFilter{Limit: 500})
	require.NoError(t, err)
	out := make([]model.EventKind, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Kind)
	}
	return out
}

// callback builds a callback signed by the trusted cluster key.
func (f *fixture) callback(t *testing.T, circuit string, id uint64, status mpc.Status, out any) *mpc.Callback {
	t.Helper()
	cb := &mpc.Callback{Program: testProgram, Circuit: circuit, ComputationID: id, Status: status}
	if out != nil {
		raw, err := json.Marshal(out)
		require.NoError(t, err)
		cb.Output = raw
	}
	mpc.Sign(f.key, cb)
	return cb
}

func x25519Pub(t *testing.T, seed byte) []byte {
	t.Helper()
	pub, err := curve25519.X25519(bytes.Repeat([]byte{seed}, 32), curve25519.Basepoint)
	require.NoError(t, err)
	return pub
}

func eventsOf(kinds ...model.EventKind) repository.EventFilter {
	return repository.EventFilter{Kinds: kinds, Limit: 500}
}
