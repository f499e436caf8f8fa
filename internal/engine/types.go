// Package engine implements the stateful two-leg cycle trading core: market
// state, the window clock, and the entry/hedge state machine.
package engine

import "time"

// Side identifies one of the two complementary outcome tokens of a window.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Mode selects whether the Execution Port simulates fills or places live orders.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

// CycleState is the engine's coarse trading state.
type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateInCycleLeg1 CycleState = "in_cycle_leg1"
)

// PriceLevel is a single (price, size) book level.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is the normalized event the Price-Stream Adapter emits.
// Bids and asks are not trusted to be pre-sorted; BestBid/BestAsk scan defensively.
type OrderBookSnapshot struct {
	TokenID string
	Bids    []PriceLevel
	Asks    []PriceLevel
	Ts      time.Time
}

// BestBid returns max(price) over Bids, or 0.0 if Bids is empty.
func (s OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0.0
	}
	best := s.Bids[0].Price
	for _, lvl := range s.Bids[1:] {
		if lvl.Price > best {
			best = lvl.Price
		}
	}
	return best
}

// BestAsk returns min(price) over Asks, or 1.0 if Asks is empty.
func (s OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 1.0
	}
	best := s.Asks[0].Price
	for _, lvl := range s.Asks[1:] {
		if lvl.Price < best {
			best = lvl.Price
		}
	}
	return best
}

// MarketState holds the identity and latest books of one 15-minute market.
type MarketState struct {
	Slug        string
	UpTokenID   string
	DownTokenID string
	UpBook      OrderBookSnapshot
	DownBook    OrderBookSnapshot
	LastUpdate  time.Time
}

// BookFor returns the book belonging to the given side.
func (m *MarketState) BookFor(side Side) OrderBookSnapshot {
	if side == SideUp {
		return m.UpBook
	}
	return m.DownBook
}

func (m *MarketState) setBookFor(side Side, book OrderBookSnapshot) {
	if side == SideUp {
		m.UpBook = book
		return
	}
	m.DownBook = book
}

// Trade is an immutable record of one leg of a cycle. BookSnapshotJSON
// archives the full book of both sides at the moment of the fill, for
// later reconstruction of why a fill happened at that price; it is opaque
// to the engine and only consumed by the durable store.
type Trade struct {
	ID               string
	MarketSlug       string
	Leg              int
	Side             Side
	TokenID          string
	Shares           float64
	Price            float64
	Cost             float64
	Fee              float64
	PnL              float64
	IsLive           bool
	Ts               time.Time
	BookSnapshotJSON []byte
}

// Position is the open leg-1 holding awaiting a hedge. At most one exists at a time.
type Position struct {
	MarketSlug string
	Side       Side
	Shares     float64
	AvgCost    float64
	TotalCost  float64
	Trades     []Trade
}

// CycleStatus is the lifecycle stage of a CycleRecord.
type CycleStatus string

const (
	CycleStatusPending  CycleStatus = "pending"
	CycleStatusLeg1Done CycleStatus = "leg1_done"
	CycleStatusComplete CycleStatus = "complete"
	CycleStatusIncomplete CycleStatus = "incomplete"
)

// CycleRecord summarizes a finished (or abandoned) cycle for the status port and durable store.
type CycleRecord struct {
	ID              string
	MarketSlug      string
	StartedAt       time.Time
	EndedAt         *time.Time
	Leg1Side        Side
	Leg1Price       float64
	Leg2Price       float64
	LockedInProfit  float64
	Status          CycleStatus
}

// Config holds the trading parameters. The fields exposed through
// SetConfigField and SetDCAEnabled may be mutated concurrently with
// evaluation; a mutation takes effect on the next evaluate() call, never on
// one already in flight. DCALevels, BreakevenEnabled, WindowMinutes and
// CooldownSeconds have no setter and keep the values given to New.
type Config struct {
	EntryThreshold    float64
	Shares            float64
	DCAEnabled        bool
	DCALevels         []float64
	DCAMultiplier     float64
	SumTarget         float64
	BreakevenEnabled  bool
	WindowMinutes     int
	DumpWindowSeconds int
	CooldownSeconds   int
}
