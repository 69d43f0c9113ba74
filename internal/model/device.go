package model

import "time"

type Device struct {
	Address     string    `gorm:"column:address;primaryKey;size:64"`
	Marketplace string    `gorm:"column:marketplace;size:64;uniqueIndex:idx_device_marketplace_id;not null"`
	DeviceID    string    `gorm:"column:device_id;size:64;uniqueIndex:idx_device_marketplace_id;not null"`
	Owner       string    `gorm:"column:owner;size:128;index;not null"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Device) TableName() string {
	return "devices"
}
