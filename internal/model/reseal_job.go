package model

import "time"

type ResealJobStatus string

const (
	ResealJobRequested ResealJobStatus = "requested"
	ResealJobDelivered ResealJobStatus = "delivered"
	ResealJobExpired   ResealJobStatus = "expired"
)

// ResealJob correlates an outstanding reseal computation with its purchase.
type ResealJob struct {
	Address       string          `gorm:"column:address;primaryKey;size:64"`
	ComputationID uint64          `gorm:"column:computation_id;uniqueIndex;not null"`
	Purchase      string          `gorm:"column:purchase;size:64;index;not null"`
	Listing       string          `gorm:"column:listing;size:64;not null"`
	Nonce         string          `gorm:"column:nonce;size:32;not null"`
	Status        ResealJobStatus `gorm:"column:status;size:16;index;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;index"`
	DeliveredAt   *time.Time      `gorm:"column:delivered_at"`
}

func (ResealJob) TableName() string {
	return "reseal_jobs"
}

// Live reports whether the job still blocks a new request for its purchase.
func (j *ResealJob) Live() bool {
	return j.Status == ResealJobRequested || j.Status == ResealJobDelivered
}
