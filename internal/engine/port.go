package engine

import "context"

// PlaceRequest is the Execution Port's single abstract operation input.
type PlaceRequest struct {
	MarketSlug string
	Side       Side
	TokenID    string
	Shares     float64
	Price      float64
	Leg        int
}

// ExecutionPort is implemented by both the Simulated and Live trade
// placement paths. Both forms must be safe to call with the engine lock
// held: neither may call back into engine state.
type ExecutionPort interface {
	Place(ctx context.Context, req PlaceRequest) (Trade, error)
	// Balance probes the venue (or paper ledger) for available cash, used
	// by SetMode(Live) to seed engine cash from the real account.
	Balance(ctx context.Context) (float64, error)
	// CredentialsConfigured reports whether live order placement has
	// everything it needs to run. Simulated implementations return true.
	CredentialsConfigured() bool
}

// TradeWriter receives finished trades for asynchronous durable persistence.
// Enqueue must never block the caller on I/O.
type TradeWriter interface {
	Enqueue(t Trade)
}
