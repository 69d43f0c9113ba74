package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type EventKind string

const (
	EventListingCreated      EventKind = "listing_created"
	EventListingCancelled    EventKind = "listing_cancelled"
	EventListingPurchased    EventKind = "listing_purchased"
	EventPurchaseNeedsReseal EventKind = "purchase_needs_reseal"
	EventResealRequested     EventKind = "reseal_requested"
	EventResealOutput        EventKind = "reseal_output"
	EventPurchaseSealed      EventKind = "purchase_sealed"
	EventQualityScore        EventKind = "quality_score"
)

// Event is an append-only notification. IDs are monotonic so consumers can
// resume from the last one they processed.
type Event struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	Kind      EventKind      `gorm:"column:kind;size:64;index;not null"`
	Listing   string         `gorm:"column:listing;size:64;index"`
	Purchase  string         `gorm:"column:purchase;size:64;index"`
	Actor     string         `gorm:"column:actor;size:128"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (Event) TableName() string {
	return "events"
}

func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type ListingPayload struct {
	Listing        string `json:"listing"`
	Seller         string `json:"seller"`
	Marketplace    string `json:"marketplace"`
	Device         string `json:"device"`
	PricePerUnit   uint64 `json:"pricePerUnit"`
	TotalDataUnits uint64 `json:"totalDataUnits"`
	Status         string `json:"status"`
}

type ListingPurchasedPayload struct {
	Listing        string `json:"listing"`
	Purchase       string `json:"purchase"`
	PurchaseIndex  uint64 `json:"purchaseIndex"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Units          uint64 `json:"units"`
	PricePaid      uint64 `json:"pricePaid"`
	Fee            uint64 `json:"fee"`
	RemainingUnits uint64 `json:"remainingUnits"`
	Timestamp      int64  `json:"timestamp"`
}

type PurchaseNeedsResealPayload struct {
	Purchase            string `json:"purchase"`
	Listing             string `json:"listing"`
	Buyer               string `json:"buyer"`
	BuyerX25519Pubkey   string `json:"buyerX25519Pubkey"`
	DekCapsuleForMxeCID string `json:"dekCapsuleForMxeCid"`
}

type ResealRequestedPayload struct {
	Purchase      string `json:"purchase"`
	Listing       string `json:"listing"`
	ComputationID uint64 `json:"computationId"`
	Nonce         string `json:"nonce"`
}

type ResealOutputPayload struct {
	Purchase      string    `json:"purchase"`
	Listing       string    `json:"listing"`
	ComputationID uint64    `json:"computationId"`
	EncryptionKey string    `json:"encryptionKey"`
	Nonce         string    `json:"nonce"`
	Ciphertexts   [4]string `json:"ciphertexts"`
}

type PurchaseSealedPayload struct {
	Listing   string `json:"listing"`
	Purchase  string `json:"purchase"`
	Buyer     string `json:"buyer"`
	CID       string `json:"cid"`
	Authority string `json:"authority"`
	Timestamp int64  `json:"timestamp"`
}

type QualityScorePayload struct {
	Device          string `json:"device"`
	ComputationType string `json:"computationType"`
	ComputationID   uint64 `json:"computationId"`
	CiphertextHash  string `json:"ciphertextHash"`
	NonceLE         string `json:"nonceLe"`
	WindowCount     uint64 `json:"windowCount"`
}
