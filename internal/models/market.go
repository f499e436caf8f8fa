package models

import "time"

// Market is the durable record of one 15-minute BTC up/down window, written
// once per rotation via EnsureMarketExists.
type Market struct {
	Slug        string    `gorm:"primaryKey;type:varchar(80)"`
	WindowStart int64     `gorm:"not null;index"`
	UpTokenID   string    `gorm:"type:varchar(100);not null"`
	DownTokenID string    `gorm:"type:varchar(100);not null"`
	FirstSeenAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Market) TableName() string {
	return "engine_markets"
}
