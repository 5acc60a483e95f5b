// Package direct implements the Direct venue adapter: a signed REST client
// for order placement and account queries, and a persistent WebSocket feed
// with snapshot/delta order book reconciliation. Modeled directly on the
// teacher's kalshi_http/kalshi_ws/kalshi_auth trio, generalized from one
// sport vertical to the engine's venue-agnostic domain.MarketPrice/
// execution.VenueClient contracts (spec §4.A).
package direct

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/predikt-markets/engine/internal/events"
)

// Client is the Direct venue adapter: it implements both
// execution.VenueClient (order placement) and venue.Feed (price
// streaming), since the teacher's kalshi_http and kalshi_ws share one
// signer and one base configuration.
type Client struct {
	http *HTTPClient
	ws   *wsClient
}

// Config configures a Direct venue Client.
type Config struct {
	BaseURL string
	WSURL   string
	KeyID   string
	KeyFile string
}

// New constructs a Client. A missing KeyID/KeyFile yields an unauthenticated
// client usable for public market data but not order placement.
func New(cfg Config, bus *events.Bus) (*Client, error) {
	signer, err := NewSignerFromFile(cfg.KeyID, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("direct: load signer: %w", err)
	}

	return &Client{
		http: NewHTTPClient(cfg.BaseURL, signer),
		ws:   newWSClient(cfg.WSURL, signer, bus),
	}, nil
}

// Connect implements venue.Feed.
func (c *Client) Connect(ctx context.Context) error {
	return c.ws.Connect(ctx)
}

// SubscribeMarkets implements venue.Feed.
func (c *Client) SubscribeMarkets(marketIDs []string) error {
	return c.ws.SubscribeMarkets(marketIDs)
}

// Close implements venue.Feed.
func (c *Client) Close() error {
	return c.ws.Close()
}

// GetBalance returns the account's bankroll balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int, error) {
	body, status, err := c.http.Get(ctx, "/trade-api/v2/portfolio/balance")
	if err != nil {
		return 0, err
	}
	if status != 200 {
		return 0, fmt.Errorf("direct: get balance: status=%d", status)
	}
	var resp struct {
		BalanceCents int `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("direct: unmarshal balance: %w", err)
	}
	return resp.BalanceCents, nil
}

// GetMarkets lists open markets for a series, paging through the venue's
// cursor-based listing.
func (c *Client) GetMarkets(ctx context.Context, series string) ([]MarketListing, error) {
	var all []MarketListing
	cursor := ""
	for {
		path := fmt.Sprintf("/trade-api/v2/markets?status=open&series_ticker=%s&limit=1000", series)
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		body, status, err := c.http.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if status != 200 {
			return nil, fmt.Errorf("direct: get markets: status=%d", status)
		}
		var resp struct {
			Markets []MarketListing `json:"markets"`
			Cursor  string          `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("direct: unmarshal markets: %w", err)
		}
		all = append(all, resp.Markets...)
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

// MarketListing is one open market returned by GetMarkets.
type MarketListing struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"`
}
