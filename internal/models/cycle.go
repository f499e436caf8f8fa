package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cycle is the durable record of one leg1->hedge (or abandoned) cycle.
type Cycle struct {
	ID             string           `gorm:"primaryKey;type:varchar(64)"`
	MarketSlug     string           `gorm:"type:varchar(80);not null;index"`
	StartedAt      time.Time        `gorm:"type:timestamptz;not null"`
	EndedAt        *time.Time       `gorm:"type:timestamptz"`
	Leg1Side       string           `gorm:"type:varchar(4);not null"`
	Leg1Price      decimal.Decimal  `gorm:"type:numeric(10,6);not null"`
	Leg2Price      *decimal.Decimal `gorm:"type:numeric(10,6)"`
	LockedInProfit decimal.Decimal  `gorm:"type:numeric(20,8);not null;default:0"`
	Status         string           `gorm:"type:varchar(16);not null;index"`
	CreatedAt      time.Time        `gorm:"type:timestamptz;autoCreateTime"`
}

func (Cycle) TableName() string {
	return "engine_cycles"
}
