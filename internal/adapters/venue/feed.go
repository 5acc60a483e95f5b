// Package venue defines the contract both venue price feed adapters
// (internal/adapters/direct, internal/adapters/proxied) implement, so
// cmd/engine can wire either one behind the same orchestration code (spec
// §4.A).
package venue

import "context"

// Feed streams order book state for a venue onto the shared events.Bus as
// domain.MarketPrice updates. Implementations own their own reconnect and
// backoff policy; Connect blocks until the first connection succeeds (or
// ctx is cancelled) and returns, leaving the feed running in the
// background.
type Feed interface {
	// Connect establishes the feed's transport and starts its background
	// read loop.
	Connect(ctx context.Context) error
	// SubscribeMarkets adds market IDs to the live subscription set. Safe
	// to call before or after Connect.
	SubscribeMarkets(marketIDs []string) error
	// Close tears down the feed's transport.
	Close() error
}
