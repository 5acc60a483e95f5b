package proxied

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// envelope peeks at a message's type to route it, mirroring the teacher
// pack's event_type discriminator pattern.
type envelope struct {
	EventType string `json:"event_type"`
}

type bookLevel struct {
	Price string `json:"price"` // decimal string, e.g. "0.45"
	Size  string `json:"size"`
}

// bookMsg is a full order book snapshot for one outcome token. AssetID
// carries the YES/NO token suffix convention this adapter uses to merge
// both outcome books into one domain.OrderBook per market (spec §4.A:
// "YES/NO tokens mapped per condition").
type bookMsg struct {
	AssetID string      `json:"asset_id"`
	Market  string      `json:"market"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

type priceChangeMsg struct {
	AssetID string `json:"asset_id"`
	Market  string `json:"market"`
	Price   string `json:"price"`
	Side    string `json:"side"` // "BUY" or "SELL"
	Size    string `json:"size"`
}

// handleMessage converts one raw WebSocket frame into bus events.
func (c *wsClient) handleMessage(data []byte) []events.Event {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Non-JSON frames are the venue's PONG reply to our keepalive.
		return nil
	}

	switch env.EventType {
	case "book":
		return c.applyBook(data)
	case "price_change":
		return c.applyPriceChange(data)
	case "last_trade_price", "tick_size_change", "best_bid_ask", "new_market", "market_resolved":
		return nil
	default:
		return nil
	}
}

// isNoToken reports whether assetID refers to a market's NO outcome token,
// by this adapter's ":NO" suffix convention, and returns the bare market ID.
func isNoToken(assetID string) (marketID string, isNo bool) {
	if rest, ok := strings.CutSuffix(assetID, ":NO"); ok {
		return rest, true
	}
	return assetID, false
}

func toCents(s string) (int, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(v*100 + 0.5), true
}

func (c *wsClient) applyBook(raw []byte) []events.Event {
	var msg bookMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.AssetID == "" {
		return nil
	}

	marketID, isNo := isNoToken(msg.AssetID)
	book := c.bookFor(marketID)
	now := time.Now().UTC()

	if !isNo {
		bids := levelsToMap(msg.Bids)
		asks := levelsToMap(msg.Asks)
		book.ApplySnapshot(bids, asks, book.Sequence+1, now)
	} else {
		// A NO-side book's bids are YES asks at the complementary price.
		noBids := levelsToMap(msg.Bids)
		book.ApplySnapshot(book.Bids, domain.DeriveAsksFromNoBids(noBids), book.Sequence+1, now)
	}

	return c.priceEvent(marketID, book, now)
}

func levelsToMap(levels []bookLevel) map[int]int {
	out := make(map[int]int, len(levels))
	for _, lvl := range levels {
		priceCents, ok := toCents(lvl.Price)
		if !ok {
			continue
		}
		size, err := strconv.Atoi(lvl.Size)
		if err != nil || size <= 0 {
			continue
		}
		out[priceCents] = size
	}
	return out
}

func (c *wsClient) applyPriceChange(raw []byte) []events.Event {
	var msg priceChangeMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.AssetID == "" {
		return nil
	}

	priceCents, ok := toCents(msg.Price)
	if !ok {
		return nil
	}
	size, err := strconv.Atoi(msg.Size)
	if err != nil {
		size = 0
	}

	marketID, isNo := isNoToken(msg.AssetID)
	book := c.bookFor(marketID)
	now := time.Now().UTC()

	side := "bid"
	if msg.Side == "SELL" {
		side = "ask"
	}
	if isNo {
		// Flip: a NO bid/ask at p is a YES ask/bid at 100-p.
		priceCents = 100 - priceCents
		if side == "bid" {
			side = "ask"
		} else {
			side = "bid"
		}
	}

	// Price-change deltas on this venue are not sequence-numbered the way
	// the Direct venue's are; apply the level directly rather than through
	// OrderBook.ApplyDelta's sequence check, since there is no gap to
	// detect. A missed price_change is neither detected nor corrected here.
	if side == "bid" {
		if size <= 0 {
			delete(book.Bids, priceCents)
		} else {
			book.Bids[priceCents] = size
		}
	} else {
		if size <= 0 {
			delete(book.Asks, priceCents)
		} else {
			book.Asks[priceCents] = size
		}
	}
	book.LastUpdateUTC = now
	book.Sequence++

	return c.priceEvent(marketID, book, now)
}

func (c *wsClient) priceEvent(marketID string, book *domain.OrderBook, now time.Time) []events.Event {
	bid, _ := book.BestBid()
	ask, hasAsk := book.BestAsk()
	if !hasAsk {
		ask = 100
	}
	mid, _ := book.Mid()

	price := domain.MarketPrice{
		Venue:       domain.VenueProxied,
		MarketID:    marketID,
		YesBidCents: bid,
		YesAskCents: ask,
		YesBidSize:  book.Bids[bid],
		YesAskSize:  book.Asks[ask],
		MidCents:    mid,
		Liquidity:   book.TopOfBookLiquidity(),
		UpdatedUTC:  now,
		Sequence:    book.Sequence,
	}
	if !price.Valid() {
		return nil
	}

	telemetry.Metrics.PricesReceived.Inc()
	return []events.Event{{
		Type:      events.TypeMarketPrice,
		Timestamp: now,
		Payload:   events.MarketPricePayload{Venue: domain.VenueProxied, Price: price},
	}}
}
