package model

import "time"

type QualityJob struct {
	Address       string     `gorm:"column:address;primaryKey;size:64"`
	ComputationID uint64     `gorm:"column:computation_id;uniqueIndex;not null"`
	Device        string     `gorm:"column:device;size:64;index;not null"`
	Nonce         string     `gorm:"column:nonce;size:32;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
}

func (QualityJob) TableName() string {
	return "quality_jobs"
}

// DqState holds the latest data-quality commitment for a device. The score
// itself stays encrypted; only its digest and nonce are kept.
type DqState struct {
	Device                string    `gorm:"column:device;primaryKey;size:64"`
	LastAccCiphertextHash string    `gorm:"column:last_acc_ciphertext_hash;size:64;not null"`
	LastAccNonceLE        string    `gorm:"column:last_acc_nonce_le;size:32;not null"`
	WindowCount           uint64    `gorm:"column:window_count;not null"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
}

func (DqState) TableName() string {
	return "dq_states"
}
