package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Trade is the durable record of one completed leg, drained off the Trade
// Writer's queue by the persistence worker. RawBookJSON archives both sides'
// order book at fill time, mirroring the catalog's own raw-payload column.
type Trade struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)"`
	MarketSlug  string          `gorm:"type:varchar(80);not null;index"`
	Leg         int             `gorm:"not null"`
	Side        string          `gorm:"type:varchar(4);not null"`
	TokenID     string          `gorm:"type:varchar(100);not null"`
	Shares      decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Price       decimal.Decimal `gorm:"type:numeric(10,6);not null"`
	Cost        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Fee         decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	PnL         decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	IsLive      bool            `gorm:"not null;default:false"`
	Ts          time.Time       `gorm:"type:timestamptz;not null;index"`
	RawBookJSON datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt   time.Time       `gorm:"type:timestamptz;autoCreateTime"`
}

func (Trade) TableName() string {
	return "engine_trades"
}
