package streaming

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/miramaps/updown-engine/internal/engine"
)

// BookSnapshot mirrors engine.OrderBookSnapshot but without a token ID field,
// since the adapter already knows which token a payload belongs to by the
// time it builds one.
type BookSnapshot struct {
	Bids []engine.PriceLevel
	Asks []engine.PriceLevel
	Ts   time.Time
}

// ToEngine attaches a token ID, producing the snapshot Engine.ApplyBook expects.
func (b BookSnapshot) ToEngine(tokenID string) engine.OrderBookSnapshot {
	return engine.OrderBookSnapshot{
		TokenID: tokenID,
		Bids:    b.Bids,
		Asks:    b.Asks,
		Ts:      b.Ts,
	}
}

type bookPayload struct {
	Bids []engine.PriceLevel
	Asks []engine.PriceLevel
}

// priceChange is one entry of an upstream price_changes batch: a best-of-book
// nudge rather than a full depth snapshot.
type priceChange struct {
	AssetID string          `json:"asset_id"`
	Price   json.RawMessage `json:"price"`
	BestBid json.RawMessage `json:"best_bid"`
	BestAsk json.RawMessage `json:"best_ask"`
}

// parseBookPayload accepts any of the three upstream book shapes seen in
// practice: a top-level {bids,asks}, a {book:{...}} wrapper, or a
// {data:{...}} wrapper — and within each, levels as either [price,size]
// pairs or {price,size} objects.
func parseBookPayload(raw []byte) (bookPayload, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return bookPayload{}, err
	}
	payload := root["book"]
	if len(payload) == 0 {
		payload = root["data"]
	}
	if len(payload) == 0 {
		payload = raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return bookPayload{}, err
	}
	return bookPayload{
		Bids: parseLevels(obj["bids"]),
		Asks: parseLevels(obj["asks"]),
	}, nil
}

// parsePriceChanges accepts the price_changes batch shape: an object with a
// price_changes array, each entry carrying asset_id plus a best_bid/best_ask
// (or a bare price used for both). Depth is synthesized at a placeholder
// size since the engine only ever consults best-of-book.
func parsePriceChanges(raw []byte) (map[string]bookPayload, bool) {
	var envelope struct {
		PriceChanges []priceChange `json:"price_changes"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.PriceChanges) == 0 {
		return nil, false
	}
	out := make(map[string]bookPayload, len(envelope.PriceChanges))
	for _, change := range envelope.PriceChanges {
		if change.AssetID == "" {
			continue
		}
		bestBid := parseFloat(change.BestBid)
		bestAsk := parseFloat(change.BestAsk)
		if bestBid == 0 && bestAsk == 0 {
			price := parseFloat(change.Price)
			bestBid, bestAsk = price, price
		}
		var payload bookPayload
		if bestAsk > 0 {
			payload.Asks = []engine.PriceLevel{{Price: bestAsk, Size: 100}}
		}
		if bestBid > 0 {
			payload.Bids = []engine.PriceLevel{{Price: bestBid, Size: 100}}
		}
		out[change.AssetID] = payload
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// parseBookArray accepts a bare top-level JSON array of shape-1 book
// objects, each carrying its own asset_id.
func parseBookArray(raw []byte) (map[string]bookPayload, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	out := make(map[string]bookPayload, len(items))
	for _, item := range items {
		tokenID := extractTokenID(item)
		if tokenID == "" {
			continue
		}
		book, err := parseBookPayload(item)
		if err != nil {
			continue
		}
		out[tokenID] = book
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func parseLevels(raw json.RawMessage) []engine.PriceLevel {
	if len(raw) == 0 {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		out := make([]engine.PriceLevel, 0, len(arr))
		for _, item := range arr {
			if level, ok := parseLevel(item); ok {
				out = append(out, level)
			}
		}
		return out
	}
	return nil
}

func parseLevel(raw json.RawMessage) (engine.PriceLevel, bool) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) >= 2 {
		return engine.PriceLevel{Price: parseFloat(pair[0]), Size: parseFloat(pair[1])}, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		level := engine.PriceLevel{
			Price: parseFloat(obj["price"]),
			Size:  parseFloat(firstRaw(obj, "size", "qty", "amount")),
		}
		if level.Price > 0 {
			return level, true
		}
	}
	return engine.PriceLevel{}, false
}

func parseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if val, err := strconv.ParseFloat(s, 64); err == nil {
			return val
		}
	}
	return 0
}

func firstRaw(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(v, 0).UTC()
	}
	return time.Time{}
}

func normalizeEventType(eventType string, raw []byte) string {
	val := strings.ToLower(strings.TrimSpace(eventType))
	if val != "" {
		return val
	}
	var probe struct {
		EventType string `json:"event_type"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if probe.EventType != "" {
			return strings.ToLower(strings.TrimSpace(probe.EventType))
		}
		if probe.Type != "" {
			return strings.ToLower(strings.TrimSpace(probe.Type))
		}
	}
	return "unknown"
}

func extractTokenID(raw []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	rawID := firstRaw(obj, "asset_id", "token_id", "tokenId")
	if len(rawID) == 0 {
		return ""
	}
	return strings.Trim(string(rawID), "\"")
}
