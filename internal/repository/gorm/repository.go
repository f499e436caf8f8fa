// Package gormrepository is the GORM-backed implementation of
// repository.Repository.
package gormrepository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/miramaps/updown-engine/internal/engine"
	"github.com/miramaps/updown-engine/internal/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureMarketExists(ctx context.Context, slug string, windowStart int64, upTokenID, downTokenID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := &models.Market{
		Slug:        slug,
		WindowStart: windowStart,
		UpTokenID:   upTokenID,
		DownTokenID: downTokenID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(row).Error
}

func (s *Store) InsertTrade(ctx context.Context, t engine.Trade) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := &models.Trade{
		ID:          t.ID,
		MarketSlug:  t.MarketSlug,
		Leg:         t.Leg,
		Side:        string(t.Side),
		TokenID:     t.TokenID,
		Shares:      decimal.NewFromFloat(t.Shares),
		Price:       decimal.NewFromFloat(t.Price),
		Cost:        decimal.NewFromFloat(t.Cost),
		Fee:         decimal.NewFromFloat(t.Fee),
		PnL:         decimal.NewFromFloat(t.PnL),
		IsLive:      t.IsLive,
		Ts:          t.Ts,
		RawBookJSON: datatypes.JSON(t.BookSnapshotJSON),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(row).Error
}

func (s *Store) InsertCycle(ctx context.Context, c engine.CycleRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(cycleRow(c)).Error
}

func (s *Store) UpdateCycle(ctx context.Context, c engine.CycleRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := cycleRow(c)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ended_at", "leg2_price", "locked_in_profit", "status",
		}),
	}).Create(row).Error
}

func cycleRow(c engine.CycleRecord) *models.Cycle {
	row := &models.Cycle{
		ID:             c.ID,
		MarketSlug:     c.MarketSlug,
		StartedAt:      c.StartedAt,
		EndedAt:        c.EndedAt,
		Leg1Side:       string(c.Leg1Side),
		Leg1Price:      decimal.NewFromFloat(c.Leg1Price),
		LockedInProfit: decimal.NewFromFloat(c.LockedInProfit),
		Status:         string(c.Status),
	}
	if c.Leg2Price != 0 {
		leg2 := decimal.NewFromFloat(c.Leg2Price)
		row.Leg2Price = &leg2
	}
	return row
}

func (s *Store) ListRecentTrades(ctx context.Context, limit int) ([]engine.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Trade
	if err := s.db.WithContext(ctx).Order("ts DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Trade, 0, len(rows))
	for _, r := range rows {
		shares, _ := r.Shares.Float64()
		price, _ := r.Price.Float64()
		cost, _ := r.Cost.Float64()
		fee, _ := r.Fee.Float64()
		pnl, _ := r.PnL.Float64()
		out = append(out, engine.Trade{
			ID:               r.ID,
			MarketSlug:       r.MarketSlug,
			Leg:              r.Leg,
			Side:             engine.Side(r.Side),
			TokenID:          r.TokenID,
			Shares:           shares,
			Price:            price,
			Cost:             cost,
			Fee:              fee,
			PnL:              pnl,
			IsLive:           r.IsLive,
			Ts:               r.Ts,
			BookSnapshotJSON: []byte(r.RawBookJSON),
		})
	}
	return out, nil
}
