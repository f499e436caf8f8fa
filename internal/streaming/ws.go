// Package streaming holds the Price-Stream Adapter: a single durable
// WebSocket subscription that normalizes heterogeneous upstream book
// payloads into engine.OrderBookSnapshot and forwards them to the engine.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"nhooyr.io/websocket"
	"go.uber.org/zap"
)

// errReconnectRequested signals that consume() returned because Reconnect()
// was called, not because of a read/dial error — Run must not apply backoff.
var errReconnectRequested = errors.New("streaming: reconnect requested")

// Envelope is one decoded top-level message off the wire, before payload parsing.
type Envelope struct {
	EventType string
	AssetID   string
	Timestamp string
}

type subscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

type updateSubscriptionRequest struct {
	AssetsIDs []string `json:"assets_ids"`
	Operation string   `json:"operation"`
}

// Client owns one WebSocket connection and its subscribe/read/close operations.
type Client struct {
	url  string
	conn *websocket.Conn
}

func NewClient(url string) *Client {
	return &Client{url: url}
}

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("streaming: dial: %w", err)
	}
	conn.SetReadLimit(2 << 20)
	c.conn = conn
	return nil
}

func (c *Client) Close(reason string) {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, reason)
	}
}

func (c *Client) Subscribe(ctx context.Context, assetIDs []string) error {
	req := subscribeRequest{Type: "market", AssetsIDs: assetIDs}
	return wsjson_write(ctx, c.conn, req)
}

func (c *Client) UpdateSubscription(ctx context.Context, assetIDs []string, operation string) error {
	if operation != "subscribe" && operation != "unsubscribe" {
		return fmt.Errorf("streaming: invalid operation %q", operation)
	}
	req := updateSubscriptionRequest{AssetsIDs: assetIDs, Operation: operation}
	return wsjson_write(ctx, c.conn, req)
}

func (c *Client) Read(ctx context.Context) (Envelope, []byte, error) {
	_, raw, err := c.conn.Read(ctx)
	if err != nil {
		return Envelope{}, nil, err
	}
	var probe struct {
		EventType string `json:"event_type"`
		AssetID   string `json:"asset_id"`
		Timestamp string `json:"timestamp"`
	}
	_ = json.Unmarshal(raw, &probe)
	return Envelope{EventType: probe.EventType, AssetID: probe.AssetID, Timestamp: probe.Timestamp}, raw, nil
}

func wsjson_write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, raw)
}

// AssetIDProvider resolves the current set of token IDs to subscribe to.
// The Adapter calls it once per connection attempt and again on every tick
// of RefreshInterval, diffing against the previous set to send incremental
// subscribe/unsubscribe deltas rather than tearing down the connection.
type AssetIDProvider func(ctx context.Context) ([]string, error)

// Options configures the Adapter's connection/retry/refresh behavior.
type Options struct {
	URL               string
	AssetIDProvider   AssetIDProvider
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

func (o *Options) setDefaults() {
	if o.RefreshInterval == 0 {
		o.RefreshInterval = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 20 * time.Second
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = 5 * time.Second
	}
	if o.BackoffMin == 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// OnBook is the callback the Adapter invokes for every normalized book event.
type OnBook func(tokenID string, snap BookSnapshot)

// Adapter runs the single durable subscription loop: connect, subscribe,
// consume until error, back off, reconnect. It never exits on its own except
// via context cancellation, matching the reference wsClient/MarketStream
// supervisor loop's shape.
type Adapter struct {
	opts        Options
	reconnectCh chan struct{}
}

func NewAdapter(opts Options) *Adapter {
	opts.setDefaults()
	return &Adapter{opts: opts, reconnectCh: make(chan struct{}, 1)}
}

// Reconnect requests that the current connection, if any, be torn down and
// re-established immediately, bypassing backoff. Safe to call concurrently;
// non-blocking, and a no-op if a reconnect is already pending.
func (a *Adapter) Reconnect() {
	select {
	case a.reconnectCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled, reconnecting with jittered exponential
// backoff on any read/dial/subscribe error.
func (a *Adapter) Run(ctx context.Context, onBook OnBook) error {
	backoff := a.opts.BackoffMin
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		client := NewClient(a.opts.URL)
		if err := client.Connect(ctx); err != nil {
			a.opts.Logger.Warn("stream connect failed", zap.Error(err))
			if !a.sleepWithJitter(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, a.opts.BackoffMax)
			continue
		}

		ids, err := a.opts.AssetIDProvider(ctx)
		if err != nil {
			a.opts.Logger.Warn("asset id resolution failed", zap.Error(err))
			client.Close("resubscribe")
			if !a.sleepWithJitter(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, a.opts.BackoffMax)
			continue
		}
		if err := client.Subscribe(ctx, ids); err != nil {
			a.opts.Logger.Warn("subscribe failed", zap.Error(err))
			client.Close("resubscribe")
			if !a.sleepWithJitter(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, a.opts.BackoffMax)
			continue
		}

		backoff = a.opts.BackoffMin
		current := setFromSlice(ids)
		err = a.consume(ctx, client, onBook, current)
		client.Close("reconnect")
		if err == context.Canceled || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errReconnectRequested) {
			a.opts.Logger.Info("stream reconnect requested")
			continue
		}
		a.opts.Logger.Warn("stream consume ended, reconnecting", zap.Error(err))
		if !a.sleepWithJitter(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, a.opts.BackoffMax)
	}
}

func (a *Adapter) consume(ctx context.Context, client *Client, onBook OnBook, current map[string]struct{}) error {
	heartbeatErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(a.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, a.opts.PingTimeout)
				err := client.conn.Ping(pingCtx)
				cancel()
				if err != nil {
					select {
					case heartbeatErr <- err:
					default:
					}
					return
				}
			}
		}
	}()

	refreshErr := make(chan error, 1)
	if a.opts.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(a.opts.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					next, err := a.opts.AssetIDProvider(ctx)
					if err != nil {
						select {
						case refreshErr <- err:
						default:
						}
						continue
					}
					nextSet := setFromSlice(next)
					added, removed := diffSets(current, nextSet)
					if len(added) > 0 {
						if err := client.UpdateSubscription(ctx, added, "subscribe"); err != nil {
							select {
							case refreshErr <- err:
							default:
							}
							continue
						}
					}
					if len(removed) > 0 {
						if err := client.UpdateSubscription(ctx, removed, "unsubscribe"); err != nil {
							select {
							case refreshErr <- err:
							default:
							}
							continue
						}
					}
					current = nextSet
				}
			}
		}()
	}

	for {
		select {
		case err := <-heartbeatErr:
			return err
		case err := <-refreshErr:
			return err
		case <-a.reconnectCh:
			return errReconnectRequested
		default:
		}

		env, raw, err := client.Read(ctx)
		if err != nil {
			return err
		}
		if isPingPayload(env, raw) {
			continue
		}
		a.handleMessage(env, raw, onBook)
	}
}

// handleMessage is the discriminated-union dispatcher over the three
// upstream shapes (§4.3): a price_changes batch (shape 2), a bare array of
// book objects (shape 3), else a single full book snapshot (shape 1).
func (a *Adapter) handleMessage(env Envelope, raw []byte, onBook OnBook) {
	if changes, ok := parsePriceChanges(raw); ok {
		for tokenID, book := range changes {
			a.emitBook(tokenID, book, env, onBook)
		}
		return
	}

	if isBareArray(raw) {
		if books, ok := parseBookArray(raw); ok {
			for tokenID, book := range books {
				a.emitBook(tokenID, book, env, onBook)
			}
		}
		return
	}

	if normalizeEventType(env.EventType, raw) != "book" {
		return
	}
	tokenID := env.AssetID
	if tokenID == "" {
		tokenID = extractTokenID(raw)
	}
	if tokenID == "" {
		return
	}
	book, err := parseBookPayload(raw)
	if err != nil {
		a.opts.Logger.Debug("unparseable book payload", zap.Error(err), zap.String("token_id", tokenID))
		return
	}
	a.emitBook(tokenID, book, env, onBook)
}

func (a *Adapter) emitBook(tokenID string, book bookPayload, env Envelope, onBook OnBook) {
	snap := BookSnapshot{
		Bids: book.Bids,
		Asks: book.Asks,
		Ts:   parseTimestamp(env.Timestamp),
	}
	if snap.Ts.IsZero() {
		snap.Ts = time.Now().UTC()
	}
	onBook(tokenID, snap)
}

// isBareArray reports whether raw's first non-whitespace byte opens a JSON
// array, i.e. upstream shape 3.
func isBareArray(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func isPingPayload(env Envelope, raw []byte) bool {
	if normalizeEventType(env.EventType, raw) == "ping" {
		return true
	}
	trimmed := trimSpaceQuotes(raw)
	return trimmed == "ping"
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (a *Adapter) sleepWithJitter(ctx context.Context, base time.Duration) bool {
	jitter := time.Duration(0)
	if base > 1 {
		jitter = time.Duration(rand.Int63n(int64(base) / 2))
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(base + jitter):
		return true
	}
}

func setFromSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		out[item] = struct{}{}
	}
	return out
}

func diffSets(current, next map[string]struct{}) (added, removed []string) {
	for id := range next {
		if _, ok := current[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range current {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func trimSpaceQuotes(raw []byte) string {
	s := string(raw)
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '"') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '"') {
		end--
	}
	return s[start:end]
}
