package model

import "time"

// PurchaseRecord is immutable after creation except DekCapsuleForBuyerCID,
// which is written exactly once when the purchase is finalized.
type PurchaseRecord struct {
	Address               string    `gorm:"column:address;primaryKey;size:64"`
	Listing               string    `gorm:"column:listing;size:64;uniqueIndex:idx_purchase_listing_index;not null"`
	PurchaseIndex         uint64    `gorm:"column:purchase_index;uniqueIndex:idx_purchase_listing_index;not null"`
	Buyer                 string    `gorm:"column:buyer;size:128;index;not null"`
	Seller                string    `gorm:"column:seller;size:128;index;not null"`
	UnitsPurchased        uint64    `gorm:"column:units_purchased;not null"`
	PricePaid             uint64    `gorm:"column:price_paid;not null"`
	Fee                   uint64    `gorm:"column:fee;not null"`
	Timestamp             time.Time `gorm:"column:timestamp;not null"`
	BuyerX25519Pubkey     string    `gorm:"column:buyer_x25519_pubkey;size:64;not null"`
	DekCapsuleForMxeCID   string    `gorm:"column:dek_capsule_for_mxe_cid;size:64;not null"`
	DekCapsuleForBuyerCID string    `gorm:"column:dek_capsule_for_buyer_cid;size:64;not null"`
}

func (PurchaseRecord) TableName() string {
	return "purchase_records"
}

func (p *PurchaseRecord) Finalized() bool {
	return p.DekCapsuleForBuyerCID != ""
}
