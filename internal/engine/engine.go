package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxRecentTrades = 100

// Engine is the single-mutex trading core. Every public method acquires mu
// for the whole operation, including any Execution-Port call, per the
// locking discipline: correctness over throughput at tens of events/sec.
type Engine struct {
	mu sync.Mutex

	cfg  Config
	mode Mode

	cash        float64
	realizedPnL float64
	startTime   time.Time
	running     bool

	tradeHistory []Trade
	position     *Position

	lastCompletedCycle   *CycleRecord
	lastCycleCompleteTime time.Time

	market *MarketState // at most one active market

	execPort ExecutionPort
	writer   TradeWriter
	logger   *zap.Logger

	now func() time.Time

	tradeSeq uint64
	cycleSeq uint64
}

// New constructs an Engine in Simulated mode with the given starting cash.
func New(cfg Config, execPort ExecutionPort, writer TradeWriter, logger *zap.Logger, startingCash float64) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		mode:      ModeSimulated,
		cash:      startingCash,
		startTime: time.Now(),
		execPort:  execPort,
		writer:    writer,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Engine) nowFunc() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// SetMarket installs a new active market, or refreshes token IDs if the slug
// is unchanged. Switching slugs clears the store to a single fresh entry and,
// if a position was open, abandons the cycle (§4.2 / AbandonedCycle).
func (e *Engine) SetMarket(slug, upToken, downToken string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market != nil && e.market.Slug == slug {
		e.market.UpTokenID = upToken
		e.market.DownTokenID = downToken
		return
	}

	if e.position != nil {
		e.abandonCycleLocked()
	}

	e.market = &MarketState{
		Slug:        slug,
		UpTokenID:   upToken,
		DownTokenID: downToken,
	}
}

// abandonCycleLocked must be called with mu held and e.position != nil.
func (e *Engine) abandonCycleLocked() {
	pos := e.position
	now := e.nowFunc()
	ended := now
	e.realizedPnL -= pos.TotalCost
	e.lastCompletedCycle = &CycleRecord{
		ID:         e.nextCycleID(),
		MarketSlug: pos.MarketSlug,
		StartedAt:  pos.Trades[0].Ts,
		EndedAt:    &ended,
		Leg1Side:   pos.Side,
		Leg1Price:  pos.AvgCost,
		Status:     CycleStatusIncomplete,
	}
	e.logger.Warn("cycle abandoned on market rotation",
		zap.String("market_slug", pos.MarketSlug),
		zap.String("side", string(pos.Side)),
		zap.Float64("total_cost", pos.TotalCost),
	)
	e.position = nil
}

// ApplyBook locates the market owning tokenID, replaces its book, and
// triggers evaluate(). Unknown tokens and stale windows are silently dropped.
func (e *Engine) ApplyBook(tokenID string, snap OrderBookSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market == nil {
		return
	}
	var side Side
	switch tokenID {
	case e.market.UpTokenID:
		side = SideUp
	case e.market.DownTokenID:
		side = SideDown
	default:
		return // UnknownToken
	}

	e.market.setBookFor(side, snap)
	e.market.LastUpdate = e.nowFunc()

	e.evaluateLocked()
}

// evaluateLocked implements §4.6 evaluate(market). Called with mu held.
func (e *Engine) evaluateLocked() {
	market := e.market
	windowStart, err := SlugWindowStart(market.Slug)
	if err != nil {
		return
	}
	now := e.nowFunc()
	win := ComputeWindow(now.Unix(), e.cfg.DumpWindowSeconds)
	if win.WindowStart != windowStart {
		return // StaleWindow
	}
	if win.TimeLeft < 0 || win.TimeLeft > int64(e.cfg.DumpWindowSeconds) {
		return
	}

	upAsk := market.UpBook.BestAsk()
	downAsk := market.DownBook.BestAsk()

	switch {
	case e.position == nil:
		if now.Sub(e.lastCycleCompleteTime) < time.Duration(e.cfg.CooldownSeconds)*time.Second {
			return
		}
		if upAsk < e.cfg.EntryThreshold {
			e.enterLocked(SideUp, upAsk, now)
		} else if downAsk < e.cfg.EntryThreshold {
			e.enterLocked(SideDown, downAsk, now)
		}
	case e.position.MarketSlug == market.Slug:
		opposite := e.position.Side.Opposite()
		oppositeAsk := market.BookFor(opposite).BestAsk()
		if e.position.AvgCost+oppositeAsk <= e.cfg.SumTarget {
			e.hedgeLocked(opposite, oppositeAsk, now)
		}
	}
}

func (e *Engine) enterLocked(side Side, price float64, now time.Time) {
	tokenID := e.market.UpTokenID
	if side == SideDown {
		tokenID = e.market.DownTokenID
	}
	req := PlaceRequest{
		MarketSlug: e.market.Slug,
		Side:       side,
		TokenID:    tokenID,
		Shares:     e.cfg.Shares,
		Price:      price,
		Leg:        1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trade, err := e.execPort.Place(ctx, req)
	if err != nil {
		e.logger.Error("leg-1 entry failed", zap.Error(err), zap.String("side", string(side)))
		return
	}
	trade.Side = side
	trade.TokenID = tokenID
	trade.Ts = now
	trade = e.commitEntryLocked(trade, "entry")

	e.logger.Info("leg-1 entry",
		zap.String("market_slug", e.market.Slug),
		zap.String("side", string(side)),
		zap.Float64("price", trade.Price),
		zap.Float64("shares", trade.Shares),
		zap.Float64("cost", trade.Cost),
	)
}

func (e *Engine) hedgeLocked(side Side, price float64, now time.Time) {
	pos := e.position
	tokenID := e.market.UpTokenID
	if side == SideDown {
		tokenID = e.market.DownTokenID
	}
	req := PlaceRequest{
		MarketSlug: e.market.Slug,
		Side:       side,
		TokenID:    tokenID,
		Shares:     pos.Shares,
		Price:      price,
		Leg:        2,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trade, err := e.execPort.Place(ctx, req)
	if err != nil {
		e.logger.Error("leg-2 hedge failed", zap.Error(err), zap.String("side", string(side)))
		return
	}
	trade.Side = side
	trade.TokenID = tokenID
	trade.Ts = now
	trade = e.commitHedgeLocked(trade, "hedge")

	e.logger.Info("leg-2 hedge — cycle complete",
		zap.String("market_slug", e.market.Slug),
		zap.String("side", string(side)),
		zap.Float64("price", trade.Price),
		zap.Float64("profit", trade.PnL),
	)
}

// commitEntryLocked folds an already-filled leg-1 trade — whether from the
// Execution Port or an external source — into position, cash, and history.
// Called with mu held; trade.Side/TokenID/Ts must already be set.
func (e *Engine) commitEntryLocked(trade Trade, idPrefix string) Trade {
	trade.ID = nonEmptyOr(trade.ID, e.nextTradeID(idPrefix))
	trade.MarketSlug = e.market.Slug
	trade.Leg = 1
	if trade.Cost == 0 {
		trade.Cost = trade.Shares * trade.Price
	}
	trade.BookSnapshotJSON = e.snapshotBooksLocked()

	e.position = &Position{
		MarketSlug: e.market.Slug,
		Side:       trade.Side,
		Shares:     trade.Shares,
		AvgCost:    trade.Price,
		TotalCost:  trade.Cost,
		Trades:     []Trade{trade},
	}
	e.cash -= trade.Cost
	e.appendHistoryLocked(trade)
	e.writer.Enqueue(trade)
	return trade
}

// commitHedgeLocked folds an already-filled leg-2 trade into realized PnL,
// cash, history, and closes out the cycle. Called with mu held and
// e.position != nil; trade.Side/TokenID/Ts must already be set.
func (e *Engine) commitHedgeLocked(trade Trade, idPrefix string) Trade {
	pos := e.position
	trade.ID = nonEmptyOr(trade.ID, e.nextTradeID(idPrefix))
	trade.MarketSlug = e.market.Slug
	trade.Leg = 2
	if trade.Cost == 0 {
		trade.Cost = trade.Shares * trade.Price
	}
	trade.BookSnapshotJSON = e.snapshotBooksLocked()

	profit := (1.0 - pos.AvgCost - trade.Price) * pos.Shares
	trade.PnL = profit
	e.realizedPnL += profit
	e.cash -= trade.Cost
	e.cash += pos.Shares

	e.appendHistoryLocked(trade)
	e.writer.Enqueue(trade)

	started := pos.Trades[0].Ts
	ended := trade.Ts
	e.lastCompletedCycle = &CycleRecord{
		ID:             e.nextCycleID(),
		MarketSlug:     e.market.Slug,
		StartedAt:      started,
		EndedAt:        &ended,
		Leg1Side:       pos.Side,
		Leg1Price:      pos.AvgCost,
		Leg2Price:      trade.Price,
		LockedInProfit: profit,
		Status:         CycleStatusComplete,
	}
	e.lastCycleCompleteTime = trade.Ts
	e.position = nil
	return trade
}

// ExternalTradeRequest describes a fill that happened outside the Execution
// Port — e.g. a manually placed order an operator wants folded into the
// engine's own accounting — via the place_external_trade command.
type ExternalTradeRequest struct {
	Side    Side
	TokenID string
	Shares  float64
	Price   float64
	IsLive  bool
}

// PlaceExternalTrade records a fill that did not go through the Execution
// Port: a leg-1 entry if no position is open, or a leg-2 hedge if one is
// open and req.Side is its complement. It never calls the Execution Port.
func (e *Engine) PlaceExternalTrade(req ExternalTradeRequest) (Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market == nil {
		return Trade{}, ErrNoActiveMarket
	}
	trade := Trade{
		Side:    req.Side,
		TokenID: req.TokenID,
		Shares:  req.Shares,
		Price:   req.Price,
		Cost:    req.Shares * req.Price,
		IsLive:  req.IsLive,
		Ts:      e.nowFunc(),
	}

	if e.position == nil {
		trade = e.commitEntryLocked(trade, "external_entry")
		e.logger.Info("external leg-1 entry",
			zap.String("market_slug", e.market.Slug),
			zap.String("side", string(req.Side)),
			zap.Float64("price", trade.Price),
		)
		return trade, nil
	}

	if req.Side != e.position.Side.Opposite() {
		return Trade{}, ErrExternalTradeSideMismatch
	}
	trade = e.commitHedgeLocked(trade, "external_hedge")
	e.logger.Info("external leg-2 hedge — cycle complete",
		zap.String("market_slug", e.market.Slug),
		zap.String("side", string(req.Side)),
		zap.Float64("price", trade.Price),
		zap.Float64("profit", trade.PnL),
	)
	return trade, nil
}

func (e *Engine) appendHistoryLocked(t Trade) {
	e.tradeHistory = append(e.tradeHistory, t)
}

// snapshotBooksLocked captures both sides of the current market's book as
// JSON, for archival alongside the fill that was just priced off them. A
// marshal failure is logged and treated as no snapshot rather than aborting
// the fill.
func (e *Engine) snapshotBooksLocked() []byte {
	if e.market == nil {
		return nil
	}
	snapshot := struct {
		Up   OrderBookSnapshot `json:"up"`
		Down OrderBookSnapshot `json:"down"`
	}{
		Up:   e.market.UpBook,
		Down: e.market.DownBook,
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		e.logger.Warn("failed to snapshot order book", zap.Error(err))
		return nil
	}
	return raw
}

func (e *Engine) nextTradeID(kind string) string {
	e.tradeSeq++
	prefix := "paper"
	if e.mode == ModeLive {
		prefix = "live"
	}
	return prefix + "_" + kind + "_" + strconv.FormatUint(e.tradeSeq, 10)
}

func (e *Engine) nextCycleID() string {
	e.cycleSeq++
	return "cycle_" + strconv.FormatUint(e.cycleSeq, 10)
}

func nonEmptyOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// SetMode switches between Simulated and Live. Switching to Live requires
// configured credentials and a successful balance probe, whose result seeds
// engine cash. Switching to Simulated is unconditional. Position state is
// never cleared by a mode switch.
func (e *Engine) SetMode(ctx context.Context, mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mode == ModeSimulated {
		e.mode = ModeSimulated
		return nil
	}

	if !e.execPort.CredentialsConfigured() {
		return ErrLiveUnavailable
	}
	balance, err := e.execPort.Balance(ctx)
	if err != nil {
		return ErrBalanceRefreshFailed
	}
	e.cash = balance
	e.mode = ModeLive
	return nil
}

// Reset restores Simulated-mode starting state. Forbidden in Live mode.
func (e *Engine) Reset(startingCash float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeLive {
		return ErrResetInLive
	}
	e.cash = startingCash
	e.realizedPnL = 0
	e.position = nil
	e.tradeHistory = nil
	e.lastCompletedCycle = nil
	e.lastCycleCompleteTime = time.Time{}
	e.mode = ModeSimulated
	return nil
}

// Start / Stop toggle the running flag surfaced through the status port.
// They do not themselves manage goroutines, and nothing but Status reads
// the flag: evaluate() trades regardless of it, and the worker goroutines
// stop on context cancellation instead.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
}

// SetConfigField mutates a single tunable config field by name. Mutations
// take effect on the next evaluate() call; an in-flight one already read
// its values.
func (e *Engine) SetConfigField(field string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch field {
	case "entry_threshold", "move":
		e.cfg.EntryThreshold = value
	case "shares":
		e.cfg.Shares = value
	case "sum_target":
		e.cfg.SumTarget = value
	case "dump_window_sec":
		e.cfg.DumpWindowSeconds = int(value)
	case "dca_multiplier":
		e.cfg.DCAMultiplier = value
	default:
		return ErrUnknownConfigField
	}
	return nil
}

func (e *Engine) SetDCAEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.DCAEnabled = enabled
}
