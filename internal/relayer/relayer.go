// Package relayer drives purchases through the reseal protocol. It follows
// the event log from a persisted cursor, asks the cluster to reseal each new
// purchase and binds the resulting buyer capsule to the purchase record.
package relayer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/capsule"
	"github.com/shinyyama/sensor-market/internal/fault"
	"github.com/shinyyama/sensor-market/internal/metrics"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/shinyyama/sensor-market/internal/repository"
	"github.com/shinyyama/sensor-market/internal/service"
	"gorm.io/gorm"
)

var log = logging.Logger("relayer")

const CursorName = "reseal-relayer"

var errBadPayload = errors.New("relayer: malformed event payload")

type Options struct {
	// Authority requests reseals and finalizes purchases. It must be the
	// marketplace admin or the seller.
	Authority string
	Batch     int
	SeenSize  int
	SeenTTL   time.Duration
	// Timeout is how long a reseal job may stay open before it is
	// re-requested.
	Timeout    time.Duration
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
}

type Relayer struct {
	store    *repository.Store
	reseal   service.ResealService
	capsules capsule.Store
	opts     Options
	seen     *expirable.LRU[string, struct{}]
	runID    string
}

func New(store *repository.Store, reseal service.ResealService, capsules capsule.Store, opts Options) *Relayer {
	if opts.Batch <= 0 {
		opts.Batch = 50
	}
	if opts.SeenSize <= 0 {
		opts.SeenSize = 4096
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = service.DefaultResealTimeout
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		}
	}
	if opts.Now == nil {
		opts.Now = service.SystemClock
	}
	return &Relayer{
		store:    store,
		reseal:   reseal,
		capsules: capsules,
		opts:     opts,
		seen:     expirable.NewLRU[string, struct{}](opts.SeenSize, nil, opts.SeenTTL),
		runID:    uuid.NewString(),
	}
}

// Run calls Tick every interval until ctx is done.
func (r *Relayer) Run(ctx context.Context, interval time.Duration) error {
	log.Infow("relayer started", "run", r.runID, "authority", r.opts.Authority, "interval", interval, "batch", r.opts.Batch)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("relayer tick failed", "run", r.runID, "err", err)
		}
		select {
		case <-ctx.Done():
			log.Infow("relayer stopped", "run", r.runID)
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick processes one batch of events and re-requests timed out jobs. It
// returns the number of events consumed. A transient failure stops the batch
// without moving the cursor past the failed event.
func (r *Relayer) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.RelayerTickDuration.Observe(time.Since(start).Seconds()) }()

	cursor, err := r.store.Cursors.Get(ctx, CursorName)
	if err != nil {
		return 0, err
	}
	evs, err := r.store.Events.List(ctx, repository.EventFilter{
		After: cursor,
		Kinds: []model.EventKind{model.EventPurchaseNeedsReseal, model.EventResealOutput},
		Limit: r.opts.Batch,
	})
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range evs {
		ev := &evs[i]
		err := r.handle(ctx, ev)
		outcome := metrics.Outcome(fault.CodeOf(err), err)
		metrics.RelayerEvents.WithLabelValues(string(ev.Kind), outcome).Inc()
		if err != nil {
			if !permanent(err) {
				return done, fmt.Errorf("event %d: %w", ev.ID, err)
			}
			log.Warnw("event skipped", "run", r.runID, "event", ev.ID, "kind", ev.Kind, "purchase", ev.Purchase, "err", err)
		}
		if err := r.store.Cursors.Save(ctx, CursorName, ev.ID); err != nil {
			return done, err
		}
		metrics.RelayerCursor.Set(float64(ev.ID))
		done++
	}

	if err := r.retryStale(ctx); err != nil {
		return done, err
	}
	return done, nil
}

func (r *Relayer) handle(ctx context.Context, ev *model.Event) error {
	switch ev.Kind {
	case model.EventPurchaseNeedsReseal:
		var p model.PurchaseNeedsResealPayload
		if err := ev.Decode(&p); err != nil || p.Purchase == "" {
			return errBadPayload
		}
		if _, ok := r.seen.Get(p.Purchase); ok {
			return nil
		}
		rec, err := r.store.Purchases.FindByAddress(ctx, p.Purchase)
		if err != nil {
			return err
		}
		return r.request(ctx, rec)
	case model.EventResealOutput:
		var p model.ResealOutputPayload
		if err := ev.Decode(&p); err != nil {
			return errBadPayload
		}
		return r.finalize(ctx, &p)
	}
	return nil
}

// request loads the cluster-custody capsule of rec and submits a reseal.
func (r *Relayer) request(ctx context.Context, rec *model.PurchaseRecord) error {
	if rec.Finalized() {
		return nil
	}
	pub, err := hex.DecodeString(rec.BuyerX25519Pubkey)
	if err != nil {
		return errBadPayload
	}
	var raw []byte
	err = r.retry(ctx, func() error {
		var err error
		raw, err = r.capsules.Get(ctx, rec.DekCapsuleForMxeCID)
		return err
	})
	if err != nil {
		return err
	}
	mxe, err := capsule.ParseMXE(raw)
	if err != nil {
		return err
	}

	var job *model.ResealJob
	err = r.retry(ctx, func() error {
		id, err := mpc.RandomComputationID()
		if err != nil {
			return err
		}
		job, err = r.reseal.RequestReseal(ctx, service.ResealRequestInput{
			Purchase:      rec.Address,
			Requester:     r.opts.Authority,
			ComputationID: id,
			Nonce:         mxe.Nonce,
			BuyerPubKey:   pub,
			Ciphertexts:   mxe.Ciphertexts,
		})
		return err
	})
	switch {
	case errors.Is(err, service.ErrResealInProgress), errors.Is(err, service.ErrAlreadyFinalized):
		r.seen.Add(rec.Address, struct{}{})
		return nil
	case err != nil:
		return err
	}
	r.seen.Add(rec.Address, struct{}{})
	log.Infow("reseal submitted", "run", r.runID, "purchase", rec.Address, "computation_id", job.ComputationID)
	return nil
}

// finalize stores the buyer capsule and binds its cid to the purchase.
func (r *Relayer) finalize(ctx context.Context, p *model.ResealOutputPayload) error {
	c := &capsule.Buyer{}
	var err error
	if c.EncryptionKey, err = mpc.ParseBytes32(p.EncryptionKey); err != nil {
		return errBadPayload
	}
	if c.Nonce, err = mpc.ParseNonce(p.Nonce); err != nil {
		return errBadPayload
	}
	for i, s := range p.Ciphertexts {
		if c.Ciphertexts[i], err = mpc.ParseBytes32(s); err != nil {
			return errBadPayload
		}
	}

	var id string
	err = r.retry(ctx, func() error {
		var err error
		id, err = r.capsules.Put(ctx, c.Bytes())
		return err
	})
	if err != nil {
		return err
	}

	l, err := r.store.Listings.FindByAddress(ctx, p.Listing)
	if err != nil {
		return err
	}
	_, err = r.reseal.FinalizePurchase(ctx, service.FinalizeInput{
		Authority:   r.opts.Authority,
		Marketplace: l.Marketplace,
		Listing:     l.Address,
		Purchase:    p.Purchase,
		CID:         id,
	})
	if errors.Is(err, service.ErrAlreadyFinalized) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Infow("purchase finalized", "run", r.runID, "purchase", p.Purchase, "cid", id)
	return nil
}

// retryStale re-requests reseals whose job has been open past the timeout.
func (r *Relayer) retryStale(ctx context.Context) error {
	jobs, err := r.store.ResealJobs.ListStale(ctx, r.opts.Now().Add(-r.opts.Timeout), r.opts.Batch)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		key := fmt.Sprintf("job:%d", j.ComputationID)
		if _, ok := r.seen.Get(key); ok {
			continue
		}
		r.seen.Add(key, struct{}{})
		rec, err := r.store.Purchases.FindByAddress(ctx, j.Purchase)
		if err != nil {
			return err
		}
		if rec.Finalized() {
			if _, err := r.store.ResealJobs.Transition(ctx, j.Address, model.ResealJobRequested, model.ResealJobExpired, nil); err != nil {
				return err
			}
			continue
		}
		log.Infow("reseal timed out", "run", r.runID, "purchase", j.Purchase, "computation_id", j.ComputationID)
		r.seen.Remove(j.Purchase)
		if err := r.request(ctx, rec); err != nil && !permanent(err) {
			r.seen.Remove(key)
			return err
		}
	}
	return nil
}

func (r *Relayer) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(r.opts.NewBackOff(), ctx))
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	switch fault.KindOf(err) {
	case fault.Validation, fault.Authorization, fault.Conflict, fault.Arithmetic, fault.NotFound:
		return true
	}
	return errors.Is(err, errBadPayload) ||
		errors.Is(err, capsule.ErrNotFound) ||
		errors.Is(err, capsule.ErrBadID) ||
		errors.Is(err, capsule.ErrCorrupted) ||
		errors.Is(err, capsule.ErrBadSize) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}
