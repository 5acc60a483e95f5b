package proxied

import (
	"context"
	"fmt"
)

// MarketListing is one open market returned by SearchMarkets, generalising
// 0xtitan6-polymarket-mm's GammaMarket shape down to the fields the
// discovery adapter needs to fuzzy-match a market to an event.
type MarketListing struct {
	MarketID string `json:"market_id"`
	Question string `json:"question"`
	Active   bool   `json:"active"`
	EndDate  string `json:"end_date"`
}

// SearchMarkets queries the venue's market listing for open markets whose
// question text contains tag — the free-text discovery shape the Gamma
// API scanner uses, in place of Direct's series-ticker enumeration.
func (c *Client) SearchMarkets(ctx context.Context, tag string) ([]MarketListing, error) {
	var result struct {
		Markets []MarketListing `json:"markets"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetQueryParam("tag", tag).
		SetResult(&result).
		Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("proxied: search markets: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("proxied: search markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Markets, nil
}
