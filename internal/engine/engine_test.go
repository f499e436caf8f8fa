package engine

import (
	"context"
	"testing"
	"time"
)

func almostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// fakePort is a deterministic ExecutionPort stand-in for engine tests: it
// echoes back the requested price/shares as a filled paper trade.
type fakePort struct {
	seq        int
	fail       bool
	credential bool
	balance    float64
}

func (p *fakePort) Place(_ context.Context, req PlaceRequest) (Trade, error) {
	if p.fail {
		return Trade{}, ErrExecutionFailed
	}
	p.seq++
	return Trade{
		Shares: req.Shares,
		Price:  req.Price,
		Cost:   req.Shares * req.Price,
	}, nil
}

func (p *fakePort) Balance(context.Context) (float64, error) {
	return p.balance, nil
}

func (p *fakePort) CredentialsConfigured() bool { return p.credential }

type fakeWriter struct {
	trades []Trade
}

func (w *fakeWriter) Enqueue(t Trade) { w.trades = append(w.trades, t) }

func newTestEngine(cfg Config, port ExecutionPort, writer TradeWriter, at time.Time) *Engine {
	e := New(cfg, port, writer, nil, 1000.0)
	e.now = func() time.Time { return at }
	return e
}

func happyConfig() Config {
	return Config{
		EntryThreshold:    0.36,
		Shares:            10,
		SumTarget:         0.99,
		DumpWindowSeconds: 120,
		CooldownSeconds:   5,
	}
}

// Scenario 1: happy cycle.
func TestHappyCycle(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC() // window_start=900, time_left=10
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.35, Size: 50}}})
	e.ApplyBook("down-token", OrderBookSnapshot{TokenID: "down-token", Asks: []PriceLevel{{Price: 0.66, Size: 50}}})

	st := e.Status()
	if st.Positions[SideUp].Shares != 10 {
		t.Fatalf("expected leg-1 UP position of 10 shares, got %+v", st.Positions)
	}
	if !almostEqual(st.Cash, 996.50, 1e-9) {
		t.Fatalf("cash after leg-1 = %v, want 996.50", st.Cash)
	}

	e.ApplyBook("down-token", OrderBookSnapshot{TokenID: "down-token", Asks: []PriceLevel{{Price: 0.60, Size: 50}}})

	st = e.Status()
	if _, open := st.Positions[SideUp]; open {
		t.Fatalf("position should be cleared after hedge, got %+v", st.Positions)
	}
	if !almostEqual(st.RealizedPnL, 0.50, 1e-9) {
		t.Fatalf("realized_pnl = %v, want 0.50", st.RealizedPnL)
	}
	if !almostEqual(st.Cash, 1000.50, 1e-9) {
		t.Fatalf("cash after hedge = %v, want 1000.50", st.Cash)
	}
	if len(writer.trades) != 2 {
		t.Fatalf("expected 2 trades enqueued, got %d", len(writer.trades))
	}
}

// Scenario 2: entry suppressed outside trading phase.
func TestEntrySuppressedOutsideTradingPhase(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(600, 0).UTC() // window_start=0, time_left=300
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(0), "up-token", "down-token")

	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.20, Size: 50}}})

	st := e.Status()
	if len(st.Positions) != 0 {
		t.Fatalf("no position should have opened outside the trading phase, got %+v", st.Positions)
	}
}

// Scenario 3: abandonment on rotation.
func TestAbandonmentOnRotation(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")
	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})

	before := e.Status()
	if _, open := before.Positions[SideUp]; !open {
		t.Fatalf("expected an open position before rotation")
	}

	e.SetMarket(FormatSlug(1800), "up2", "down2")

	after := e.Status()
	if len(after.Positions) != 0 {
		t.Fatalf("position should be cleared after abandonment, got %+v", after.Positions)
	}
	if !almostEqual(after.RealizedPnL, -3.0, 1e-9) {
		t.Fatalf("realized_pnl after abandonment = %v, want -3.00", after.RealizedPnL)
	}
	if after.CurrentCycle == nil || after.CurrentCycle.Status != CycleStatusIncomplete {
		t.Fatalf("expected an incomplete cycle record, got %+v", after.CurrentCycle)
	}
}

// Scenario 4: cooldown.
func TestCooldownSuppressesReentry(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})
	e.ApplyBook("down-token", OrderBookSnapshot{TokenID: "down-token", Asks: []PriceLevel{{Price: 0.60, Size: 50}}})
	if st := e.Status(); st.CurrentCycle == nil || st.CurrentCycle.Status != CycleStatusComplete {
		t.Fatalf("expected a completed cycle before testing cooldown, got %+v", st.CurrentCycle)
	}

	e.now = func() time.Time { return at.Add(2 * time.Second) }
	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})
	if st := e.Status(); len(st.Positions) != 0 {
		t.Fatalf("entry within cooldown should be suppressed, got %+v", st.Positions)
	}

	e.now = func() time.Time { return at.Add(6 * time.Second) }
	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})
	if st := e.Status(); len(st.Positions) == 0 {
		t.Fatalf("entry after cooldown should fire")
	}
}

// Scenario 5: unknown token drop.
func TestUnknownTokenDropped(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	e.ApplyBook("some-other-token", OrderBookSnapshot{TokenID: "some-other-token", Asks: []PriceLevel{{Price: 0.10, Size: 50}}})

	st := e.Status()
	if len(st.Positions) != 0 || len(writer.trades) != 0 {
		t.Fatalf("unknown token event must not mutate engine state, got positions=%+v trades=%d", st.Positions, len(writer.trades))
	}
}

// Scenario 6: live mode refusal.
func TestLiveModeRefusalWithoutCredentials(t *testing.T) {
	port := &fakePort{credential: false}
	writer := &fakeWriter{}
	e := newTestEngine(happyConfig(), port, writer, time.Unix(1790, 0).UTC())

	err := e.SetMode(context.Background(), ModeLive)
	if err != ErrLiveUnavailable {
		t.Fatalf("expected ErrLiveUnavailable, got %v", err)
	}
	if e.Status().Mode != ModeSimulated {
		t.Fatalf("mode should remain simulated after refusal")
	}
	if e.Status().Cash != 1000.0 {
		t.Fatalf("cash should be unchanged after refused mode switch, got %v", e.Status().Cash)
	}
}

// I6: best_ask/best_bid defaults on empty books.
func TestBestPriceDefaults(t *testing.T) {
	empty := OrderBookSnapshot{}
	if empty.BestAsk() != 1.0 {
		t.Fatalf("best_ask(empty) = %v, want 1.0", empty.BestAsk())
	}
	if empty.BestBid() != 0.0 {
		t.Fatalf("best_bid(empty) = %v, want 0.0", empty.BestBid())
	}
}

// Boundary: unsorted asks still yield the true minimum.
func TestBestAskIgnoresInputOrdering(t *testing.T) {
	book := OrderBookSnapshot{Asks: []PriceLevel{{Price: 0.50}, {Price: 0.20}, {Price: 0.80}}}
	if book.BestAsk() != 0.20 {
		t.Fatalf("best_ask = %v, want 0.20", book.BestAsk())
	}
}

// Boundary: sum_target = 1.0 fires as soon as opposite_ask <= 1.0 - avg_cost.
func TestSumTargetOneFiresAtBreakeven(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	cfg := happyConfig()
	cfg.SumTarget = 1.0
	e := newTestEngine(cfg, port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})
	e.ApplyBook("down-token", OrderBookSnapshot{TokenID: "down-token", Asks: []PriceLevel{{Price: 0.70, Size: 50}}})

	st := e.Status()
	if len(st.Positions) != 0 {
		t.Fatalf("hedge should have fired exactly at the sum_target boundary, got %+v", st.Positions)
	}
}

// I4 / round-trip: set_market(X); set_market(X) only refreshes token IDs.
func TestSetMarketSameSlugIsIdempotentBeyondTokenRefresh(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")
	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.35, Size: 10}}})

	e.SetMarket(FormatSlug(900), "up-token-2", "down-token-2")

	st := e.Status()
	if st.Positions[SideUp].Shares != 10 {
		t.Fatalf("re-setting the same slug must not disturb an open position, got %+v", st.Positions)
	}
	e.mu.Lock()
	upToken := e.market.UpTokenID
	e.mu.Unlock()
	if upToken != "up-token-2" {
		t.Fatalf("token IDs should refresh on same-slug set_market, got %q", upToken)
	}
}

// ExecutionFailed: a rejected leg-1 order leaves the engine Idle.
func TestExecutionFailedLeavesEngineIdle(t *testing.T) {
	port := &fakePort{fail: true}
	writer := &fakeWriter{}
	at := time.Unix(1790, 0).UTC()
	e := newTestEngine(happyConfig(), port, writer, at)
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	e.ApplyBook("up-token", OrderBookSnapshot{TokenID: "up-token", Asks: []PriceLevel{{Price: 0.30, Size: 50}}})

	st := e.Status()
	if len(st.Positions) != 0 {
		t.Fatalf("failed execution must not open a position, got %+v", st.Positions)
	}
	if st.Cash != 1000.0 {
		t.Fatalf("failed execution must not touch cash, got %v", st.Cash)
	}
}

func TestResetRejectedInLiveMode(t *testing.T) {
	port := &fakePort{credential: true, balance: 500}
	writer := &fakeWriter{}
	e := newTestEngine(happyConfig(), port, writer, time.Unix(1790, 0).UTC())
	if err := e.SetMode(context.Background(), ModeLive); err != nil {
		t.Fatalf("SetMode(Live) failed: %v", err)
	}
	if err := e.Reset(1000); err != ErrResetInLive {
		t.Fatalf("expected ErrResetInLive, got %v", err)
	}
}

func TestPlaceExternalTrade_EntryThenHedge(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	e := newTestEngine(happyConfig(), port, writer, time.Unix(1790, 0).UTC())
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	entry, err := e.PlaceExternalTrade(ExternalTradeRequest{Side: SideUp, TokenID: "up-token", Shares: 10, Price: 0.30})
	if err != nil {
		t.Fatalf("entry err=%v", err)
	}
	if entry.Leg != 1 || entry.Cost != 3.0 {
		t.Fatalf("entry=%+v", entry)
	}
	st := e.Status()
	if st.Positions[SideUp].Shares != 10 {
		t.Fatalf("expected open UP position, got %+v", st.Positions)
	}

	hedge, err := e.PlaceExternalTrade(ExternalTradeRequest{Side: SideDown, TokenID: "down-token", Shares: 10, Price: 0.60})
	if err != nil {
		t.Fatalf("hedge err=%v", err)
	}
	if hedge.Leg != 2 || !almostEqual(hedge.PnL, 1.0, 1e-9) {
		t.Fatalf("hedge=%+v", hedge)
	}
	st = e.Status()
	if _, open := st.Positions[SideUp]; open {
		t.Fatalf("position should be cleared after hedge, got %+v", st.Positions)
	}
	if len(writer.trades) != 2 {
		t.Fatalf("expected 2 trades enqueued, got %d", len(writer.trades))
	}
}

func TestPlaceExternalTrade_RejectsSameSideHedge(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	e := newTestEngine(happyConfig(), port, writer, time.Unix(1790, 0).UTC())
	e.SetMarket(FormatSlug(900), "up-token", "down-token")

	if _, err := e.PlaceExternalTrade(ExternalTradeRequest{Side: SideUp, TokenID: "up-token", Shares: 10, Price: 0.30}); err != nil {
		t.Fatalf("entry err=%v", err)
	}
	if _, err := e.PlaceExternalTrade(ExternalTradeRequest{Side: SideUp, TokenID: "up-token", Shares: 10, Price: 0.40}); err != ErrExternalTradeSideMismatch {
		t.Fatalf("expected ErrExternalTradeSideMismatch, got %v", err)
	}
}

func TestPlaceExternalTrade_RequiresActiveMarket(t *testing.T) {
	port := &fakePort{}
	writer := &fakeWriter{}
	e := newTestEngine(happyConfig(), port, writer, time.Unix(1790, 0).UTC())
	if _, err := e.PlaceExternalTrade(ExternalTradeRequest{Side: SideUp, TokenID: "up-token", Shares: 10, Price: 0.30}); err != ErrNoActiveMarket {
		t.Fatalf("expected ErrNoActiveMarket, got %v", err)
	}
}
