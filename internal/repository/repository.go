// Package repository defines the durable-store contract used by the Trade
// Writer and the supervisor: a narrow surface covering market/trade/cycle
// persistence only, in the style of the broader catalog repository this
// module was distilled from.
package repository

import (
	"context"

	"github.com/miramaps/updown-engine/internal/engine"
)

// Repository is implemented by the GORM-backed store in repository/gorm.
// Methods take the engine's own domain types directly; translation to GORM
// row shapes is the store's concern, not the caller's.
type Repository interface {
	// EnsureMarketExists upserts the market row for a newly-seen slug. It is
	// a no-op if the slug is already recorded.
	EnsureMarketExists(ctx context.Context, slug string, windowStart int64, upTokenID, downTokenID string) error

	InsertTrade(ctx context.Context, t engine.Trade) error
	InsertCycle(ctx context.Context, c engine.CycleRecord) error
	UpdateCycle(ctx context.Context, c engine.CycleRecord) error

	ListRecentTrades(ctx context.Context, limit int) ([]engine.Trade, error)
}
