package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

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

var resealLog = logging.Logger("reseal")

const DefaultResealTimeout = 10 * time.Minute

// CallbackVerifier authenticates callbacks from the computation cluster.
type CallbackVerifier interface {
	Verify(cb *mpc.Callback) error
}

type ResealState string

const (
	StatePurchased       ResealState = "purchased"
	StateResealRequested ResealState = "reseal_requested"
	StateResealDelivered ResealState = "reseal_delivered"
	StateFinalized       ResealState = "finalized"
)

type ResealRequestInput struct {
	Purchase      string
	Requester     string
	ComputationID uint64
	Nonce         mpc.Nonce
	BuyerPubKey   []byte
	Ciphertexts   [4]mpc.Bytes32
}

type ResealResult struct {
	Job    *model.ResealJob
	Output *mpc.ResealOutput
}

type FinalizeInput struct {
	Authority   string
	Marketplace string
	Listing     string
	Purchase    string
	CID         string
}

type ResealStatus struct {
	Purchase *model.PurchaseRecord
	State    ResealState
	Job      *model.ResealJob
}

type ResealService interface {
	RequestReseal(ctx context.Context, in ResealRequestInput) (*model.ResealJob, error)
	OnResealResult(ctx context.Context, cb *mpc.Callback) (*ResealResult, error)
	FinalizePurchase(ctx context.Context, in FinalizeInput) (*model.PurchaseRecord, error)
	Status(ctx context.Context, purchase string) (*ResealStatus, error)
}

type resealService struct {
	store     *repository.Store
	submitter mpc.Submitter
	verifier  CallbackVerifier
	now       Clock
	timeout   time.Duration
}

func NewResealService(store *repository.Store, submitter mpc.Submitter, verifier CallbackVerifier, now Clock, timeout time.Duration) ResealService {
	if timeout <= 0 {
		timeout = DefaultResealTimeout
	}
	return &resealService{store: store, submitter: submitter, verifier: verifier, now: orSystem(now), timeout: timeout}
}

func (s *resealService) RequestReseal(ctx context.Context, in ResealRequestInput) (*model.ResealJob, error) {
	job, err := s.requestReseal(ctx, in)
	metrics.ResealRequests.WithLabelValues(metrics.Outcome(fault.CodeOf(err), err)).Inc()
	if err != nil {
		return nil, err
	}
	resealLog.Infow("reseal requested", "rid", reqctx.RID(ctx), "purchase", job.Purchase, "computation_id", job.ComputationID)
	return job, nil
}

func (s *resealService) requestReseal(ctx context.Context, in ResealRequestInput) (*model.ResealJob, error) {
	if in.ComputationID == 0 {
		return nil, ErrClusterNotSet
	}
	if in.ComputationID > model.MaxAmount {
		return nil, ErrComputationIDRange
	}
	if err := mpc.ValidatePublicKey(in.BuyerPubKey); err != nil {
		return nil, ErrInvalidPublicKey
	}

	now := s.now()
	var job *model.ResealJob
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		p, err := tx.Purchases.FindByAddress(ctx, in.Purchase)
		if err != nil {
			return notFound(err, ErrPurchaseNotFound)
		}
		l, err := tx.Listings.FindByAddress(ctx, p.Listing)
		if err != nil {
			return notFound(err, ErrListingNotFound)
		}
		m, err := tx.Marketplaces.FindByAddress(ctx, l.Marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}
		if in.Requester != p.Buyer && in.Requester != p.Seller && in.Requester != m.Admin {
			return ErrForbidden
		}
		if hex.EncodeToString(in.BuyerPubKey) != p.BuyerX25519Pubkey {
			return ErrBuyerKeyMismatch
		}
		if p.DekCapsuleForMxeCID == "" {
			return ErrMissingMxeCapsule
		}
		if p.Finalized() {
			return ErrAlreadyFinalized
		}

		prev, err := tx.ResealJobs.LatestForPurchase(ctx, p.Address)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		case prev.Live():
			if now.Sub(prev.CreatedAt) < s.timeout {
				return ErrResealInProgress
			}
			if _, err := tx.ResealJobs.Transition(ctx, prev.Address, prev.Status, model.ResealJobExpired, nil); err != nil {
				return err
			}
			resealLog.Warnw("reseal job expired", "rid", reqctx.RID(ctx), "purchase", p.Address, "computation_id", prev.ComputationID)
		}

		if _, err := tx.ResealJobs.FindByComputationID(ctx, in.ComputationID); err == nil {
			return ErrDuplicateComputation
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		job = &model.ResealJob{
			Address:       address.ResealJob(in.ComputationID),
			ComputationID: in.ComputationID,
			Purchase:      p.Address,
			Listing:       p.Listing,
			Nonce:         in.Nonce.String(),
			Status:        model.ResealJobRequested,
			CreatedAt:     now,
		}
		if err := tx.ResealJobs.Create(ctx, job); err != nil {
			return err
		}
		if err := emit(ctx, tx, model.EventResealRequested, p.Listing, p.Address, in.Requester, model.ResealRequestedPayload{
			Purchase:      p.Address,
			Listing:       p.Listing,
			ComputationID: in.ComputationID,
			Nonce:         job.Nonce,
		}, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Submit only after the job is committed: the callback may arrive
	// before Submit returns.
	var pub mpc.Bytes32
	copy(pub[:], in.BuyerPubKey)
	req := &mpc.ResealRequest{
		ComputationID:  in.ComputationID,
		Nonce:          in.Nonce,
		Ciphertexts:    in.Ciphertexts,
		BuyerPublicKey: pub,
		Purchase:       job.Purchase,
		Listing:        job.Listing,
	}
	if err := s.submitter.Submit(ctx, req); err != nil {
		resealLog.Errorw("reseal submit failed", "rid", reqctx.RID(ctx), "purchase", job.Purchase, "computation_id", job.ComputationID, "err", err)
		if _, xerr := s.store.ResealJobs.Transition(ctx, job.Address, model.ResealJobRequested, model.ResealJobExpired, nil); xerr != nil {
			resealLog.Errorw("expire unsubmitted job", "rid", reqctx.RID(ctx), "computation_id", job.ComputationID, "err", xerr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	return job, nil
}

func (s *resealService) OnResealResult(ctx context.Context, cb *mpc.Callback) (*ResealResult, error) {
	res, err := s.onResealResult(ctx, cb)
	metrics.Callbacks.WithLabelValues(mpc.CircuitResealDEK, metrics.Outcome(fault.CodeOf(err), err)).Inc()
	if err != nil {
		resealLog.Warnw("reseal callback rejected", "rid", reqctx.RID(ctx), "computation_id", callbackID(cb), "err", err)
		return nil, err
	}
	resealLog.Infow("reseal delivered", "rid", reqctx.RID(ctx), "purchase", res.Job.Purchase, "computation_id", res.Job.ComputationID)
	return res, nil
}

func (s *resealService) onResealResult(ctx context.Context, cb *mpc.Callback) (*ResealResult, error) {
	if err := s.verifier.Verify(cb); err != nil {
		return nil, ErrUntrustedCallback
	}
	if cb.Circuit != mpc.CircuitResealDEK {
		return nil, ErrCircuitMismatch
	}

	now := s.now()
	var res *ResealResult
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		job, err := tx.ResealJobs.FindByComputationID(ctx, cb.ComputationID)
		if err != nil {
			return notFound(err, ErrJobNotFound)
		}
		if job.Status != model.ResealJobRequested {
			return ErrJobNotOpen
		}
		if cb.Status != mpc.StatusSuccess {
			// the job stays open so a timed-out retry can replace it
			return ErrAbortedComputation
		}
		var out mpc.ResealOutput
		if err := cb.DecodeOutput(&out); err != nil {
			return ErrBadCallbackOutput
		}
		n, err := tx.ResealJobs.Transition(ctx, job.Address, model.ResealJobRequested, model.ResealJobDelivered, &now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrJobNotOpen
		}
		job.Status = model.ResealJobDelivered
		job.DeliveredAt = &now

		payload := model.ResealOutputPayload{
			Purchase:      job.Purchase,
			Listing:       job.Listing,
			ComputationID: job.ComputationID,
			EncryptionKey: out.EncryptionKey.String(),
			Nonce:         out.Nonce.String(),
		}
		for i, c := range out.Ciphertexts {
			payload.Ciphertexts[i] = c.String()
		}
		if err := emit(ctx, tx, model.EventResealOutput, job.Listing, job.Purchase, cb.Program, payload, now); err != nil {
			return err
		}
		res = &ResealResult{Job: job, Output: &out}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *resealService) FinalizePurchase(ctx context.Context, in FinalizeInput) (*model.PurchaseRecord, error) {
	now := s.now()
	var rec *model.PurchaseRecord
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		p, err := tx.Purchases.FindByAddress(ctx, in.Purchase)
		if err != nil {
			return notFound(err, ErrPurchaseNotFound)
		}
		l, err := tx.Listings.FindByAddress(ctx, in.Listing)
		if err != nil {
			return notFound(err, ErrListingNotFound)
		}
		m, err := tx.Marketplaces.FindByAddress(ctx, in.Marketplace)
		if err != nil {
			return notFound(err, ErrMarketplaceNotFound)
		}

		if in.Authority != l.Seller && in.Authority != m.Admin {
			return ErrUnauthorizedFinalize
		}
		if p.Listing != l.Address {
			return ErrRecordListingMismatch
		}
		if l.Marketplace != m.Address {
			return ErrWrongMarketplaceForListing
		}
		if p.DekCapsuleForMxeCID == "" {
			return ErrMissingMxeCapsule
		}
		if in.CID == "" {
			return ErrCidEmpty
		}
		if len(in.CID) > maxCIDLen {
			return ErrCidTooLong
		}
		if p.Finalized() {
			return ErrAlreadyFinalized
		}
		n, err := tx.Purchases.SetBuyerCapsuleIfEmpty(ctx, p.Address, in.CID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAlreadyFinalized
		}
		p.DekCapsuleForBuyerCID = in.CID
		rec = p
		return emit(ctx, tx, model.EventPurchaseSealed, l.Address, p.Address, in.Authority, model.PurchaseSealedPayload{
			Listing:   l.Address,
			Purchase:  p.Address,
			Buyer:     p.Buyer,
			CID:       in.CID,
			Authority: in.Authority,
			Timestamp: now.Unix(),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.PurchasesFinalized.Inc()
	resealLog.Infow("purchase sealed", "rid", reqctx.RID(ctx), "purchase", rec.Address, "cid", rec.DekCapsuleForBuyerCID, "authority", in.Authority)
	return rec, nil
}

func (s *resealService) Status(ctx context.Context, purchase string) (*ResealStatus, error) {
	p, err := s.store.Purchases.FindByAddress(ctx, purchase)
	if err != nil {
		return nil, notFound(err, ErrPurchaseNotFound)
	}
	st := &ResealStatus{Purchase: p, State: StatePurchased}
	job, err := s.store.ResealJobs.LatestForPurchase(ctx, purchase)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		st.Job = job
		switch job.Status {
		case model.ResealJobRequested:
			st.State = StateResealRequested
		case model.ResealJobDelivered:
			st.State = StateResealDelivered
		}
	}
	if p.Finalized() {
		st.State = StateFinalized
	}
	return st, nil
}

func callbackID(cb *mpc.Callback) uint64 {
	if cb == nil {
		return 0
	}
	return cb.ComputationID
}
