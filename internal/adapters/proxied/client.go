// Package proxied implements the Proxied venue adapter: a resty-based REST
// client plus a WebSocket price feed, modeled on
// 0xtitan6-polymarket-mm's internal/exchange (resty REST client, token-
// bucket rate limiting, gorilla/websocket streaming leg), generalized from
// Polymarket's on-chain signed-order CLOB to this engine's
// execution.VenueClient/venue.Feed contracts and percentage fee schedule
// (spec §4.A).
package proxied

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/predikt-markets/engine/internal/events"
)

// Client is the Proxied venue adapter.
type Client struct {
	http   *resty.Client
	apiKey string
	rl     *rateLimiter
	ws     *wsClient
}

// Config configures a Proxied venue Client.
type Config struct {
	BaseURL        string
	WSURL          string
	APIKey         string
	APISecret      string
	EgressCheckURL string
	AllowedRegions []string
}

// New constructs a Client. If cfg.EgressCheckURL is set, callers should run
// VerifyEgress before Connect — New itself does not block on network
// calls, matching the teacher's constructor shape.
func New(cfg Config, bus *events.Bus) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("PROXIED-API-KEY", cfg.APIKey)

	return &Client{
		http:   httpClient,
		apiKey: cfg.APIKey,
		rl:     newRateLimiter(),
		ws:     newWSClient(cfg.WSURL, bus),
	}
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

// bookResponse is the REST shape for a full order book read.
type bookResponse struct {
	MarketID string     `json:"market_id"`
	Bids     [][2]string `json:"bids"` // [price, size] as decimal strings
	Asks     [][2]string `json:"asks"`
}

// GetOrderBook fetches a single market's book over REST, on demand. No
// periodic poll calls it; the WS feed is the only continuous source of
// book updates.
func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*bookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result bookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("market_id", marketID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("proxied: get book: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("proxied: get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}
