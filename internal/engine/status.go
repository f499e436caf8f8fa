package engine

// PositionView is the read-only per-side position summary in a status snapshot.
type PositionView struct {
	Shares  float64
	AvgCost float64
}

// Status is the pull-based snapshot of §4.7.
type Status struct {
	Running           bool
	Mode              Mode
	Cash              float64
	Positions         map[Side]PositionView
	RealizedPnL       float64
	UnrealizedPnL     float64
	Equity            float64
	UptimeSeconds     float64
	ActiveSlug        string
	Config            Config
	UpBook            OrderBookSnapshot
	DownBook          OrderBookSnapshot
	RecentTrades      []Trade
	CurrentCycle      *CycleRecord
	LiveAvailable     bool
}

// Status computes the pull snapshot. Unrealized P&L is priced off the
// current best bid of the position's side, matching the reference
// implementation's mark-to-book convention.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running:       e.running,
		Mode:          e.mode,
		Cash:          e.cash,
		RealizedPnL:   e.realizedPnL,
		UptimeSeconds: e.nowFunc().Sub(e.startTime).Seconds(),
		Config:        e.cfg,
		Positions:     map[Side]PositionView{},
		LiveAvailable: e.execPort != nil && e.execPort.CredentialsConfigured(),
	}

	if e.market != nil {
		st.ActiveSlug = e.market.Slug
		st.UpBook = e.market.UpBook
		st.DownBook = e.market.DownBook
	}

	positionValue := 0.0
	if e.position != nil {
		st.Positions[e.position.Side] = PositionView{Shares: e.position.Shares, AvgCost: e.position.AvgCost}
		positionValue = e.position.TotalCost
		if e.market != nil {
			currentBid := e.market.BookFor(e.position.Side).BestBid()
			st.UnrealizedPnL = (currentBid - e.position.AvgCost) * e.position.Shares
		}
	}
	st.Equity = e.cash + positionValue + st.UnrealizedPnL

	st.CurrentCycle = e.lastCompletedCycle

	n := len(e.tradeHistory)
	start := 0
	if n > maxRecentTrades {
		start = n - maxRecentTrades
	}
	st.RecentTrades = append([]Trade(nil), e.tradeHistory[start:]...)

	return st
}
