package service

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/address"
	"github.com/shinyyama/sensor-market/internal/model"
	"github.com/shinyyama/sensor-market/internal/repository"
)

var accountLog = logging.Logger("accounts")

// AccountService manages settlement-currency balances.
type AccountService interface {
	Open(ctx context.Context, owner, mint string) (*model.TokenAccount, error)
	Fund(ctx context.Context, owner, mint string, amount uint64) (*model.TokenAccount, error)
	ListByOwner(ctx context.Context, owner string) ([]model.TokenAccount, error)
}

type accountService struct {
	store *repository.Store
}

func NewAccountService(store *repository.Store) AccountService {
	return &accountService{store: store}
}

// Open returns the owner's account for mint, creating it if needed.
func (s *accountService) Open(ctx context.Context, owner, mint string) (*model.TokenAccount, error) {
	if owner == "" {
		return nil, ErrMissingIdentity
	}
	if mint == "" || len(mint) > 64 {
		return nil, ErrInvalidMint
	}
	a := &model.TokenAccount{Address: address.TokenAccount(owner, mint), Owner: owner, Mint: mint}
	if err := s.store.Accounts.Open(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Fund mints amount into the owner's account. It backs the admin CLI and
// local setups; production balances arrive through deposits.
func (s *accountService) Fund(ctx context.Context, owner, mint string, amount uint64) (*model.TokenAccount, error) {
	if owner == "" {
		return nil, ErrMissingIdentity
	}
	if mint == "" || len(mint) > 64 {
		return nil, ErrInvalidMint
	}
	addr := address.TokenAccount(owner, mint)
	var a *model.TokenAccount
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		acct := &model.TokenAccount{Address: addr, Owner: owner, Mint: mint}
		if err := tx.Accounts.Open(ctx, acct); err != nil {
			return err
		}
		if amount > model.MaxAmount-acct.Amount {
			return ErrMathOverflow
		}
		if amount > 0 {
			if err := tx.Accounts.Credit(ctx, addr, amount); err != nil {
				return err
			}
		}
		var err error
		a, err = tx.Accounts.FindByAddress(ctx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	accountLog.Infow("account funded", "account", addr, "owner", owner, "mint", mint, "amount", amount, "balance", a.Amount)
	return a, nil
}

func (s *accountService) ListByOwner(ctx context.Context, owner string) ([]model.TokenAccount, error) {
	return s.store.Accounts.ListByOwner(ctx, owner)
}
