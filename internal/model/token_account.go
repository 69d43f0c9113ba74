package model

import "time"

// TokenAccount is a balance of one settlement currency held by one owner.
type TokenAccount struct {
	Address   string    `gorm:"column:address;primaryKey;size:64"`
	Owner     string    `gorm:"column:owner;size:128;uniqueIndex:idx_token_owner_mint;not null"`
	Mint      string    `gorm:"column:mint;size:64;uniqueIndex:idx_token_owner_mint;not null"`
	Amount    uint64    `gorm:"column:amount;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TokenAccount) TableName() string {
	return "token_accounts"
}
