package service

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shinyyama/sensor-market/internal/dbtest"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limbs(seed byte) [4]mpc.Bytes32 {
	var out [4]mpc.Bytes32
	for i := range out {
		out[i][0] = seed
		out[i][31] = byte(i)
	}
	return out
}

func (f *fixture) purchased(t *testing.T) *model.PurchaseRecord {
	t.Helper()
	res, err := f.buy("buyer", f.listing, 2, 0)
	require.NoError(t, err)
	return res.Record
}

func (f *fixture) requestInput(p *model.PurchaseRecord, id uint64) ResealRequestInput {
	return ResealRequestInput{
		Purchase:      p.Address,
		Requester:     "buyer",
		ComputationID: id,
		Nonce:         mpc.NonceFromUint128(0, id),
		BuyerPubKey:   f.buyerKey,
		Ciphertexts:   limbs(9),
	}
}

func resealOutput() mpc.ResealOutput {
	var key mpc.Bytes32
	key[0] = 0xAA
	return mpc.ResealOutput{EncryptionKey: key, Nonce: mpc.NonceFromUint128(1, 2), Ciphertexts: limbs(5)}
}

func TestResealEndToEnd(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)

	st, err := f.reseal.Status(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, StatePurchased, st.State)

	job, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 42))
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobRequested, job.Status)

	reqs := f.sub.requests()
	require.Len(t, reqs, 1)
	rr, ok := reqs[0].(*mpc.ResealRequest)
	require.True(t, ok)
	assert.Equal(t, uint64(42), rr.ComputationID)
	assert.Equal(t, p.Address, rr.Purchase)
	assert.Equal(t, p.Listing, rr.Listing)
	assert.Equal(t, f.buyerKey, rr.BuyerPublicKey[:])
	assert.Equal(t, limbs(9), rr.Ciphertexts)

	st, err = f.reseal.Status(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, StateResealRequested, st.State)

	res, err := f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 42, mpc.StatusSuccess, resealOutput()))
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobDelivered, res.Job.Status)
	assert.Equal(t, resealOutput(), *res.Output)

	evs, err := f.store.Events.List(f.ctx, eventsOf(model.EventResealOutput))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	var payload model.ResealOutputPayload
	require.NoError(t, evs[0].Decode(&payload))
	assert.Equal(t, p.Address, payload.Purchase)
	assert.Equal(t, resealOutput().EncryptionKey.String(), payload.EncryptionKey)
	assert.Equal(t, resealOutput().Ciphertexts[3].String(), payload.Ciphertexts[3])

	// the callback alone never binds the capsule
	got, err := f.store.Purchases.FindByAddress(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Empty(t, got.DekCapsuleForBuyerCID)

	rec, err := f.reseal.FinalizePurchase(f.ctx, FinalizeInput{
		Authority:   "seller",
		Marketplace: f.mk.Address,
		Listing:     f.listing.Address,
		Purchase:    p.Address,
		CID:         "bafkbuyer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "bafkbuyer-1", rec.DekCapsuleForBuyerCID)

	st, err = f.reseal.Status(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, st.State)

	_, err = f.reseal.FinalizePurchase(f.ctx, FinalizeInput{
		Authority:   "admin",
		Marketplace: f.mk.Address,
		Listing:     f.listing.Address,
		Purchase:    p.Address,
		CID:         "bafkbuyer-2",
	})
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	got, err = f.store.Purchases.FindByAddress(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, "bafkbuyer-1", got.DekCapsuleForBuyerCID)

	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, 43))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestRequestResealRejections(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)

	cases := []struct {
		name   string
		mutate func(in *ResealRequestInput)
		want   error
	}{
		{"zero computation id", func(in *ResealRequestInput) { in.ComputationID = 0 }, ErrClusterNotSet},
		{"low order key", func(in *ResealRequestInput) { in.BuyerPubKey = make([]byte, 32) }, ErrInvalidPublicKey},
		{"different key", func(in *ResealRequestInput) { in.BuyerPubKey = x25519Pub(t, 4) }, ErrBuyerKeyMismatch},
		{"stranger", func(in *ResealRequestInput) { in.Requester = "stranger" }, ErrForbidden},
		{"missing purchase", func(in *ResealRequestInput) { in.Purchase = "missing" }, ErrPurchaseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.requestInput(p, 7)
			tc.mutate(&in)
			_, err := f.reseal.RequestReseal(f.ctx, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.sub.requests())

	in := f.requestInput(p, 7)
	in.Requester = "seller"
	_, err := f.reseal.RequestReseal(f.ctx, in)
	require.NoError(t, err)

	in = f.requestInput(p, 8)
	in.Requester = "admin"
	_, err = f.reseal.RequestReseal(f.ctx, in)
	assert.ErrorIs(t, err, ErrResealInProgress)
}

func TestRequestResealSubmitFailureExpiresJob(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)
	f.sub.err = errors.New("gateway down")

	_, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 11))
	require.ErrorIs(t, err, ErrSubmitFailed)
	assert.True(t, fault.IsExternal(err))

	job, err := f.store.ResealJobs.FindByComputationID(f.ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobExpired, job.Status)

	st, err := f.reseal.Status(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, StatePurchased, st.State)

	// the burned id stays burned, a fresh one goes through at once
	f.sub.err = nil
	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, 11))
	require.ErrorIs(t, err, ErrDuplicateComputation)
	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, 12))
	require.NoError(t, err)
}

func TestResealCallbackDuringSubmit(t *testing.T) {
	f := newFixtureOn(t, dbtest.NewFile(t, 4))
	p := f.purchased(t)

	var (
		delivered bool
		cbErr     error
	)
	f.sub.deliver = func(req mpc.Request) {
		rr, ok := req.(*mpc.ResealRequest)
		if !ok {
			return
		}
		delivered = true
		_, cbErr = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, rr.ComputationID, mpc.StatusSuccess, resealOutput()))
	}

	job, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 77))
	require.NoError(t, err)
	require.True(t, delivered)
	require.NoError(t, cbErr)

	st, err := f.reseal.Status(f.ctx, p.Address)
	require.NoError(t, err)
	assert.Equal(t, StateResealDelivered, st.State)
	require.NotNil(t, st.Job)
	assert.Equal(t, job.ComputationID, st.Job.ComputationID)
	evs, err := f.store.Events.List(f.ctx, eventsOf(model.EventResealOutput))
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestRequestResealComputationIDRange(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)

	_, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 1<<63|5))
	require.ErrorIs(t, err, ErrComputationIDRange)
	assert.True(t, fault.IsValidation(err))
	assert.Empty(t, f.sub.requests())

	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, model.MaxAmount))
	require.NoError(t, err)
}

func TestRequestResealTimeout(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)

	_, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 1))
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, 2))
	require.ErrorIs(t, err, ErrResealInProgress)

	f.now = f.now.Add(6 * time.Minute)
	_, err = f.reseal.RequestReseal(f.ctx, f.requestInput(p, 1))
	require.ErrorIs(t, err, ErrDuplicateComputation)

	job, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), job.ComputationID)

	old, err := f.store.ResealJobs.FindByComputationID(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobExpired, old.Status)

	// a late result for the expired job is refused
	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 1, mpc.StatusSuccess, resealOutput()))
	assert.ErrorIs(t, err, ErrJobNotOpen)
}

func TestOnResealResultProvenance(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)
	_, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 5))
	require.NoError(t, err)

	forged := f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput())
	mpc.Sign(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{8}, ed25519.SeedSize)), forged)
	_, err = f.reseal.OnResealResult(f.ctx, forged)
	require.ErrorIs(t, err, ErrUntrustedCallback)
	assert.True(t, fault.IsAuthorization(err))

	impostor := f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput())
	impostor.Program = "other-program"
	_, err = f.reseal.OnResealResult(f.ctx, impostor)
	require.ErrorIs(t, err, ErrUntrustedCallback)

	tampered := f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput())
	tampered.ComputationID = 6
	_, err = f.reseal.OnResealResult(f.ctx, tampered)
	require.ErrorIs(t, err, ErrUntrustedCallback)

	_, err = f.reseal.OnResealResult(f.ctx, nil)
	require.ErrorIs(t, err, ErrUntrustedCallback)

	job, err := f.store.ResealJobs.FindByComputationID(f.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobRequested, job.Status)
}

func TestOnResealResultAbortAndReplay(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)
	_, err := f.reseal.RequestReseal(f.ctx, f.requestInput(p, 5))
	require.NoError(t, err)

	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusAborted, nil))
	require.ErrorIs(t, err, ErrAbortedComputation)
	job, err := f.store.ResealJobs.FindByComputationID(f.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.ResealJobRequested, job.Status)

	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 5, mpc.StatusSuccess, resealOutput()))
	require.ErrorIs(t, err, ErrCircuitMismatch)

	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 99, mpc.StatusSuccess, resealOutput()))
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, nil))
	require.ErrorIs(t, err, ErrBadCallbackOutput)

	cb := f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput())
	_, err = f.reseal.OnResealResult(f.ctx, cb)
	require.NoError(t, err)
	_, err = f.reseal.OnResealResult(f.ctx, cb)
	require.ErrorIs(t, err, ErrJobNotOpen)
}

func TestFinalizePurchaseChecks(t *testing.T) {
	f := newFixture(t)
	p := f.purchased(t)
	_, other := f.newListing(t, "seller", "dev-2", 100, 10, nil)
	otherMk, err := f.registry.InitializeMarketplace(f.ctx, "admin2", "weather", 100, testMint)
	require.NoError(t, err)

	valid := FinalizeInput{
		Authority:   "seller",
		Marketplace: f.mk.Address,
		Listing:     f.listing.Address,
		Purchase:    p.Address,
		CID:         "bafkbuyer",
	}
	cases := []struct {
		name   string
		mutate func(in *FinalizeInput)
		want   error
	}{
		{"buyer is not an authority", func(in *FinalizeInput) { in.Authority = "buyer" }, ErrUnauthorizedFinalize},
		{"admin of another marketplace", func(in *FinalizeInput) {
			in.Authority = "admin2"
			in.Marketplace = otherMk.Address
		}, ErrWrongMarketplaceForListing},
		{"record of another listing", func(in *FinalizeInput) { in.Listing = other.Address }, ErrRecordListingMismatch},
		{"listing of another marketplace", func(in *FinalizeInput) { in.Marketplace = otherMk.Address }, ErrWrongMarketplaceForListing},
		{"empty cid", func(in *FinalizeInput) { in.CID = "" }, ErrCidEmpty},
		{"long cid", func(in *FinalizeInput) { in.CID = strings.Repeat("b", 65) }, ErrCidTooLong},
		{"missing purchase", func(in *FinalizeInput) { in.Purchase = "missing" }, ErrPurchaseNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.reseal.FinalizePurchase(f.ctx, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	valid.Authority = "admin"
	valid.CID = strings.Repeat("b", 64)
	rec, err := f.reseal.FinalizePurchase(f.ctx, valid)
	require.NoError(t, err)
	assert.Len(t, rec.DekCapsuleForBuyerCID, 64)
}
