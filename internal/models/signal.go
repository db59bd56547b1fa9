package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal lifecycle status values. Only StatusPending is written by this
// service; the execution side moves signals to executed/failed.
const (
	StatusPending  = "pending"
	StatusExecuted = "executed"
	StatusFailed   = "failed"
)

// Signal outcome values applied by the reconciler.
const (
	ResultWin  = "win"
	ResultWin1 = "win1"
	ResultWin2 = "win2"
	ResultLoss = "loss"
)

// Signal is one trade recommendation ingested from the upstream channel.
// UpstreamID is the dedup key: the telegram message id for bot ingestion,
// or a content hash for archive scraping.
type Signal struct {
	ID         string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UpstreamID string `gorm:"type:varchar(120);not null;uniqueIndex" json:"upstream_id"`

	Asset     string `gorm:"type:varchar(40);not null;index" json:"asset"`
	RawAsset  string `gorm:"type:varchar(40);not null" json:"raw_asset"`
	Timeframe string `gorm:"type:varchar(10);not null" json:"timeframe"`
	Direction string `gorm:"type:varchar(10);not null" json:"direction"`

	// EntryTime is a wall-clock time of day ("16:15:00"), no date.
	EntryTime string           `gorm:"type:varchar(10)" json:"entry_time,omitempty"`
	Payout    *decimal.Decimal `gorm:"type:numeric(6,2)" json:"payout,omitempty"`

	RawMessage string    `gorm:"type:text" json:"raw_message"`
	Status     string    `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	Result     *string   `gorm:"type:varchar(10);index" json:"result"`
	ReceivedAt time.Time `gorm:"type:timestamptz;not null;index" json:"received_at"`
}

func (Signal) TableName() string {
	return "signals"
}
