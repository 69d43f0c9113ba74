package model

import (
	"math"
	"time"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10000

// MaxAmount bounds every stored quantity: balances, prices, data units and
// computation ids all live in signed 64-bit columns.
const MaxAmount = math.MaxInt64

type Marketplace struct {
	Address      string    `gorm:"column:address;primaryKey;size:64"`
	Admin        string    `gorm:"column:admin;size:128;index;not null"`
	Name         string    `gorm:"column:name;size:50;not null"`
	Treasury     string    `gorm:"column:treasury;size:64;not null"`
	TreasuryBump uint8     `gorm:"column:treasury_bump;not null"`
	SellerFeeBps uint16    `gorm:"column:seller_fee_bps;not null"`
	TokenMint    string    `gorm:"column:token_mint;size:64;not null"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (Marketplace) TableName() string {
	return "marketplaces"
}
