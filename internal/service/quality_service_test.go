package service

import (
	"errors"
	"testing"

	"github.com/shinyyama/sensor-market/internal/dbtest"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func (f *fixture) accuracyInput(id uint64) AccuracyInput {
	return AccuracyInput{
		Owner:         "seller",
		Device:        f.dev.Address,
		ComputationID: id,
		PublicKey:     f.buyerKey,
		Nonce:         mpc.NonceFromUint128(0, id),
		Reading:       mpc.Bytes32{1},
		Mean:          mpc.Bytes32{2},
		StdDev:        mpc.Bytes32{3},
	}
}

func TestAccuracyScoreFlow(t *testing.T) {
	f := newFixture(t)

	job, err := f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(100))
	require.NoError(t, err)
	assert.Nil(t, job.CompletedAt)

	reqs := f.sub.requests()
	require.Len(t, reqs, 1)
	ar, ok := reqs[0].(*mpc.AccuracyRequest)
	require.True(t, ok)
	assert.Equal(t, mpc.CircuitAccuracyScore, ar.Circuit())
	assert.Equal(t, f.dev.Address, ar.Device)

	out := mpc.AccuracyOutput{Ciphertext: mpc.Bytes32{0xCA, 0xFE}, Nonce: mpc.NonceFromUint128(0, 7)}
	st, err := f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 100, mpc.StatusSuccess, out))
	require.NoError(t, err)
	assert.Equal(t, CiphertextDigest(out.Ciphertext), st.LastAccCiphertextHash)
	assert.Len(t, st.LastAccCiphertextHash, 64)
	assert.Equal(t, out.Nonce.String(), st.LastAccNonceLE)
	assert.Equal(t, uint64(1), st.WindowCount)

	_, err = f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 100, mpc.StatusSuccess, out))
	require.ErrorIs(t, err, ErrJobNotOpen)

	_, err = f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(101))
	require.NoError(t, err)
	_, err = f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 101, mpc.StatusSuccess, out))
	require.NoError(t, err)

	got, err := f.quality.GetQuality(f.ctx, f.dev.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.WindowCount)

	evs, err := f.store.Events.List(f.ctx, eventsOf(model.EventQualityScore))
	require.NoError(t, err)
	require.Len(t, evs, 2)
	var payload model.QualityScorePayload
	require.NoError(t, evs[1].Decode(&payload))
	assert.Equal(t, "accuracy", payload.ComputationType)
	assert.Equal(t, uint64(2), payload.WindowCount)
}

func TestAccuracyScoreRejections(t *testing.T) {
	f := newFixture(t)

	in := f.accuracyInput(5)
	in.Owner = "buyer"
	_, err := f.quality.RequestAccuracyScore(f.ctx, in)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(0))
	require.ErrorIs(t, err, ErrClusterNotSet)

	_, err = f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(5))
	require.NoError(t, err)
	_, err = f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(5))
	require.ErrorIs(t, err, ErrDuplicateComputation)

	// a reseal result cannot land on an accuracy job
	_, err = f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput()))
	require.ErrorIs(t, err, ErrCircuitMismatch)
	_, err = f.reseal.OnResealResult(f.ctx, f.callback(t, mpc.CircuitResealDEK, 5, mpc.StatusSuccess, resealOutput()))
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 5, mpc.StatusAborted, nil))
	require.ErrorIs(t, err, ErrAbortedComputation)

	_, err = f.quality.GetQuality(f.ctx, f.dev.Address)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccuracyCallbackDuringSubmit(t *testing.T) {
	f := newFixtureOn(t, dbtest.NewFile(t, 4))
	out := mpc.AccuracyOutput{Ciphertext: mpc.Bytes32{0xBE, 0xEF}, Nonce: mpc.NonceFromUint128(0, 9)}

	var cbErr error
	f.sub.deliver = func(req mpc.Request) {
		_, cbErr = f.quality.OnAccuracyResult(f.ctx, f.callback(t, mpc.CircuitAccuracyScore, 300, mpc.StatusSuccess, out))
	}

	_, err := f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(300))
	require.NoError(t, err)
	require.NoError(t, cbErr)

	st, err := f.quality.GetQuality(f.ctx, f.dev.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.WindowCount)
}

func TestAccuracySubmitFailureDropsJob(t *testing.T) {
	f := newFixture(t)
	f.sub.err = errors.New("gateway down")

	_, err := f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(400))
	require.ErrorIs(t, err, ErrSubmitFailed)

	_, err = f.store.Quality.FindJobByComputationID(f.ctx, 400)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	f.sub.err = nil
	_, err = f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(400))
	require.NoError(t, err)
}

func TestAccuracyComputationIDRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.quality.RequestAccuracyScore(f.ctx, f.accuracyInput(1<<63))
	require.ErrorIs(t, err, ErrComputationIDRange)
	assert.Empty(t, f.sub.requests())
}
