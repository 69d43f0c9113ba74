package model

import "time"

type RelayerCursor struct {
	Name        string    `gorm:"column:name;primaryKey;size:64"`
	LastEventID uint64    `gorm:"column:last_event_id;not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (RelayerCursor) TableName() string {
	return "relayer_cursors"
}
