package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/metrics"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/reqctx"
	"github.com/shinyyama/sensor-market/internal/repository"
	"golang.org/x/crypto/sha3"
	"gorm.io/gorm"
)

var qualityLog = logging.Logger("quality")

const computationTypeAccuracy = "accuracy"

// AccuracyInput carries the encrypted Q16.16 reading, mean and standard
// deviation for one scoring window.
type AccuracyInput struct {
	Owner         string
	Device        string
	ComputationID uint64
	PublicKey     []byte
	Nonce         mpc.Nonce
	Reading       mpc.Bytes32
	Mean          mpc.Bytes32
	StdDev        mpc.Bytes32
}

type QualityService interface {
	RequestAccuracyScore(ctx context.Context, in AccuracyInput) (*model.QualityJob, error)
	OnAccuracyResult(ctx context.Context, cb *mpc.Callback) (*model.DqState, error)
	GetQuality(ctx context.Context, device string) (*model.DqState, error)
}

type qualityService struct {
	store     *repository.Store
	submitter mpc.Submitter
	verifier  CallbackVerifier
	now       Clock
}

func NewQualityService(store *repository.Store, submitter mpc.Submitter, verifier CallbackVerifier, now Clock) QualityService {
	return &qualityService{store: store, submitter: submitter, verifier: verifier, now: orSystem(now)}
}

func (s *qualityService) RequestAccuracyScore(ctx context.Context, in AccuracyInput) (*model.QualityJob, error) {
	if in.ComputationID == 0 {
		return nil, ErrClusterNotSet
	}
	if in.ComputationID > model.MaxAmount {
		return nil, ErrComputationIDRange
	}
	if err := mpc.ValidatePublicKey(in.PublicKey); err != nil {
		return nil, ErrInvalidPublicKey
	}
	now := s.now()
	var job *model.QualityJob
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		d, err := tx.Devices.FindByAddress(ctx, in.Device)
		if err != nil {
			return notFound(err, ErrDeviceNotFound)
		}
		if d.Owner != in.Owner {
			return ErrUnauthorized
		}
		if !d.IsActive {
			return ErrDeviceInactive
		}
		if _, err := tx.Quality.FindJobByComputationID(ctx, in.ComputationID); err == nil {
			return ErrDuplicateComputation
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		job = &model.QualityJob{
			Address:       address.QualityJob(in.ComputationID),
			ComputationID: in.ComputationID,
			Device:        d.Address,
			Nonce:         in.Nonce.String(),
			CreatedAt:     now,
		}
		return tx.Quality.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	var pub mpc.Bytes32
	copy(pub[:], in.PublicKey)
	if err := s.submitter.Submit(ctx, &mpc.AccuracyRequest{
		ComputationID: in.ComputationID,
		PublicKey:     pub,
		Nonce:         in.Nonce,
		Reading:       in.Reading,
		Mean:          in.Mean,
		StdDev:        in.StdDev,
		Device:        job.Device,
	}); err != nil {
		qualityLog.Errorw("accuracy submit failed", "rid", reqctx.RID(ctx), "device", job.Device, "computation_id", job.ComputationID, "err", err)
		if _, derr := s.store.Quality.DeleteOpenJob(ctx, job.Address); derr != nil {
			qualityLog.Errorw("drop unsubmitted job", "rid", reqctx.RID(ctx), "computation_id", job.ComputationID, "err", derr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	qualityLog.Infow("accuracy score requested", "rid", reqctx.RID(ctx), "device", job.Device, "computation_id", job.ComputationID)
	return job, nil
}

func (s *qualityService) OnAccuracyResult(ctx context.Context, cb *mpc.Callback) (*model.DqState, error) {
	st, err := s.onAccuracyResult(ctx, cb)
	metrics.Callbacks.WithLabelValues(mpc.CircuitAccuracyScore, metrics.Outcome(fault.CodeOf(err), err)).Inc()
	if err != nil {
		qualityLog.Warnw("accuracy callback rejected", "rid", reqctx.RID(ctx), "computation_id", callbackID(cb), "err", err)
		return nil, err
	}
	qualityLog.Infow("quality score recorded", "rid", reqctx.RID(ctx), "device", st.Device, "window_count", st.WindowCount)
	return st, nil
}

func (s *qualityService) onAccuracyResult(ctx context.Context, cb *mpc.Callback) (*model.DqState, error) {
	if err := s.verifier.Verify(cb); err != nil {
		return nil, ErrUntrustedCallback
	}
	if cb.Circuit != mpc.CircuitAccuracyScore {
		return nil, ErrCircuitMismatch
	}
	now := s.now()
	var st *model.DqState
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		job, err := tx.Quality.FindJobByComputationID(ctx, cb.ComputationID)
		if err != nil {
			return notFound(err, ErrJobNotFound)
		}
		if job.CompletedAt != nil {
			return ErrJobNotOpen
		}
		if cb.Status != mpc.StatusSuccess {
			return ErrAbortedComputation
		}
		var out mpc.AccuracyOutput
		if err := cb.DecodeOutput(&out); err != nil {
			return ErrBadCallbackOutput
		}
		n, err := tx.Quality.CompleteJob(ctx, job.Address, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrJobNotOpen
		}
		st = &model.DqState{
			Device:                job.Device,
			LastAccCiphertextHash: CiphertextDigest(out.Ciphertext),
			LastAccNonceLE:        out.Nonce.String(),
			UpdatedAt:             now,
		}
		if err := tx.Quality.RecordScore(ctx, st); err != nil {
			return err
		}
		return emit(ctx, tx, model.EventQualityScore, "", "", cb.Program, model.QualityScorePayload{
			Device:          st.Device,
			ComputationType: computationTypeAccuracy,
			ComputationID:   job.ComputationID,
			CiphertextHash:  st.LastAccCiphertextHash,
			NonceLE:         st.LastAccNonceLE,
			WindowCount:     st.WindowCount,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *qualityService) GetQuality(ctx context.Context, device string) (*model.DqState, error) {
	st, err := s.store.Quality.GetState(ctx, device)
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return st, nil
}

// CiphertextDigest is the keccak256 commitment stored for an encrypted score.
func CiphertextDigest(c mpc.Bytes32) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(c[:])
	return hex.EncodeToString(h.Sum(nil))
}
