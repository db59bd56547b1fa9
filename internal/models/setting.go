package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a generic key-value row. It carries the ingestion cursor, the
// ingestion lock, the empty-poll streak counter and feature switches, each
// under a distinct key with a JSON value.
type Setting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Key string `gorm:"type:varchar(120);not null;uniqueIndex"`

	Value datatypes.JSON `gorm:"type:jsonb;not null"`

	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (Setting) TableName() string {
	return "settings"
}
