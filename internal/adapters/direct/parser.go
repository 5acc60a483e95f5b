package direct

import (
	"encoding/json"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

type wsMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type orderbookSnapshotMsg struct {
	MarketTicker string     `json:"market_ticker"`
	Entity       string     `json:"entity"`
	Yes          [][2]int   `json:"yes"` // [price_cents, size]
	No           [][2]int   `json:"no"`
	Sequence     int64      `json:"seq"`
}

type orderbookDeltaMsg struct {
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"` // "yes" or "no"
	PriceCents   int    `json:"price"`
	Delta        int    `json:"delta"` // signed size change; resulting size of 0 removes the level
	Sequence     int64  `json:"seq"`
}

// handleMessage converts one raw WebSocket frame into bus events, applying
// any order book mutation to the venue-local book first (spec §4.A).
func (c *wsClient) handleMessage(data []byte) []events.Event {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("direct_ws: parse error: %v", err)
		return nil
	}

	switch msg.Type {
	case "orderbook_snapshot":
		return c.applySnapshot(msg.Msg)
	case "orderbook_delta":
		return c.applyDelta(msg.Msg)
	case "subscribed", "unsubscribed", "ok":
		return nil
	case "error":
		telemetry.Warnf("direct_ws: server error: %s", string(msg.Msg))
		return nil
	default:
		return nil
	}
}

func (c *wsClient) applySnapshot(raw json.RawMessage) []events.Event {
	var snap orderbookSnapshotMsg
	if err := json.Unmarshal(raw, &snap); err != nil || snap.MarketTicker == "" {
		return nil
	}

	yesBids := make(map[int]int, len(snap.Yes))
	for _, lvl := range snap.Yes {
		if lvl[1] > 0 {
			yesBids[lvl[0]] = lvl[1]
		}
	}
	noBids := make(map[int]int, len(snap.No))
	for _, lvl := range snap.No {
		if lvl[1] > 0 {
			noBids[lvl[0]] = lvl[1]
		}
	}

	book := c.bookFor(snap.MarketTicker)
	now := time.Now().UTC()
	book.ApplySnapshot(yesBids, domain.DeriveAsksFromNoBids(noBids), snap.Sequence, now)

	return c.priceEvent(snap.MarketTicker, snap.Entity, book, now)
}

func (c *wsClient) applyDelta(raw json.RawMessage) []events.Event {
	var delta orderbookDeltaMsg
	if err := json.Unmarshal(raw, &delta); err != nil || delta.MarketTicker == "" {
		return nil
	}

	book := c.bookFor(delta.MarketTicker)
	now := time.Now().UTC()

	side := "bid"
	priceCents := delta.PriceCents
	if delta.Side == "no" {
		// A NO-side level at price p is a YES-ask at 100-p (spec §3).
		side = "ask"
		priceCents = 100 - delta.PriceCents
	}

	resultingSize := delta.Delta
	if side == "bid" {
		resultingSize = book.Bids[priceCents] + delta.Delta
	} else {
		resultingSize = book.Asks[priceCents] + delta.Delta
	}
	if resultingSize < 0 {
		resultingSize = 0
	}

	if !book.ApplyDelta(side, priceCents, resultingSize, delta.Sequence, now) {
		c.requestResnapshot(delta.MarketTicker)
		return nil
	}

	return c.priceEvent(delta.MarketTicker, "", book, now)
}

// priceEvent builds the normalised MarketPrice bus event for a book's
// current top of book. entity is threaded through from the snapshot
// message when known; later deltas leave it blank and rely on the
// orchestrator's market binding index to fill in EventID/ContractEntity
// downstream context.
func (c *wsClient) priceEvent(marketID, entity string, book *domain.OrderBook, now time.Time) []events.Event {
	bid, _ := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if !hasAsk {
		ask = 100
	}
	mid, _ := book.Mid()

	price := domain.MarketPrice{
		Venue:          domain.VenueDirect,
		MarketID:       marketID,
		ContractEntity: entity,
		YesBidCents:    bid,
		YesAskCents:    ask,
		YesBidSize:     book.Bids[bid],
		YesAskSize:     book.Asks[ask],
		MidCents:       mid,
		Liquidity:      book.TopOfBookLiquidity(),
		UpdatedUTC:     now,
		Sequence:       book.Sequence,
	}
	if !price.Valid() {
		return nil
	}

	telemetry.Metrics.PricesReceived.Inc()
	return []events.Event{{
		Type:      events.TypeMarketPrice,
		Timestamp: now,
		Payload:   events.MarketPricePayload{Venue: domain.VenueDirect, Price: price},
	}}
}
