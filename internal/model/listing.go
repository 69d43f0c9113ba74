package model

import "time"

type ListingStatus uint8

const (
	ListingStatusActive    ListingStatus = 0
	ListingStatusSoldOut   ListingStatus = 1
	ListingStatusCancelled ListingStatus = 2
)

func (s ListingStatus) String() string {
	switch s {
	case ListingStatusActive:
		return "active"
	case ListingStatusSoldOut:
		return "sold_out"
	case ListingStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseListingStatus is the inverse of ListingStatus.String.
func ParseListingStatus(s string) (ListingStatus, bool) {
	switch s {
	case "active":
		return ListingStatusActive, true
	case "sold_out":
		return ListingStatusSoldOut, true
	case "cancelled":
		return ListingStatusCancelled, true
	}
	return 0, false
}

// Listing is a sellable batch of data units from one device.
// RemainingUnits never exceeds TotalDataUnits and PurchaseCount only grows.
type Listing struct {
	Address             string        `gorm:"column:address;primaryKey;size:64"`
	Seller              string        `gorm:"column:seller;size:128;index;not null"`
	Marketplace         string        `gorm:"column:marketplace;size:64;index;not null"`
	Device              string        `gorm:"column:device;size:64;index;not null"`
	DeviceID            string        `gorm:"column:device_id;size:64;not null"`
	DataCID             string        `gorm:"column:data_cid;size:64;not null"`
	DekCapsuleForMxeCID string        `gorm:"column:dek_capsule_for_mxe_cid;size:64;not null"`
	PricePerUnit        uint64        `gorm:"column:price_per_unit;not null"`
	TotalDataUnits      uint64        `gorm:"column:total_data_units;not null"`
	RemainingUnits      uint64        `gorm:"column:remaining_units;not null"`
	TokenMint           string        `gorm:"column:token_mint;size:64;not null"`
	Status              ListingStatus `gorm:"column:status;index;not null"`
	PurchaseCount       uint64        `gorm:"column:purchase_count;not null"`
	Buyer               *string       `gorm:"column:buyer;size:128"`
	CreatedAt           time.Time     `gorm:"column:created_at"`
	UpdatedAt           time.Time     `gorm:"column:updated_at"`
	ExpiresAt           *time.Time    `gorm:"column:expires_at"`
	SoldAt              *time.Time    `gorm:"column:sold_at"`
}

func (Listing) TableName() string {
	return "listings"
}
