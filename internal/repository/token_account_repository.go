package repository

import (
	"context"

	"github.com/shinyyama/sensor-market/internal/model"
	"gorm.io/gorm"
)

type TokenAccountRepository interface {
	Open(ctx context.Context, a *model.TokenAccount) error
	FindByAddress(ctx context.Context, address string) (*model.TokenAccount, error)
	ListByOwner(ctx context.Context, owner string) ([]model.TokenAccount, error)
	Debit(ctx context.Context, address string, amount uint64) error
	Credit(ctx context.Context, address string, amount uint64) error
}

type tokenAccountRepository struct {
	db *gorm.DB
}

func NewTokenAccountRepository(db *gorm.DB) TokenAccountRepository {
	return &tokenAccountRepository{db: db}
}

// Open loads the account at a.Address, creating it with a zero balance if it
// does not exist yet.
func (r *tokenAccountRepository) Open(ctx context.Context, a *model.TokenAccount) error {
	return r.db.WithContext(ctx).
		Where("address = ?", a.Address).
		Attrs(model.TokenAccount{Owner: a.Owner, Mint: a.Mint}).
		FirstOrCreate(a).Error
}

func (r *tokenAccountRepository) FindByAddress(ctx context.Context, address string) (*model.TokenAccount, error) {
	var a model.TokenAccount
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *tokenAccountRepository) ListByOwner(ctx context.Context, owner string) ([]model.TokenAccount, error) {
	var list []model.TokenAccount
	if err := r.db.WithContext(ctx).Where("owner = ?", owner).Order("mint ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Debit returns gorm.ErrRecordNotFound when the account is missing or holds
// less than amount.
func (r *tokenAccountRepository) Debit(ctx context.Context, address string, amount uint64) error {
	res := r.db.WithContext(ctx).
		Model(&model.TokenAccount{}).
		Where("address = ? AND amount >= ?", address, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *tokenAccountRepository) Credit(ctx context.Context, address string, amount uint64) error {
	res := r.db.WithContext(ctx).
		Model(&model.TokenAccount{}).
		Where("address = ?", address).
		Update("amount", gorm.Expr("amount + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
