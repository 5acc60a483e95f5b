// Package domain holds the core data model shared by every component of the
// trading pipeline: markets, events, orderbooks, prices, probabilities,
// signals, execution requests/results, positions and the bankroll.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketKind discriminates the MarketType tagged union.
type MarketKind string

const (
	MarketSport   MarketKind = "sport"
	MarketCrypto  MarketKind = "crypto"
)

// Direction is the side of a crypto strike/expiry market.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MarketType is the tagged-variant discriminant used to look up a
// probability model and an entity matcher in their respective registries.
// Adding a new market kind means implementing a new MarketType plus a
// probability model and registering both — no downstream code changes.
type MarketType interface {
	Kind() MarketKind
	// Key is the registry lookup key: stable, comparable, cheap to hash.
	Key() string
}

// SportMarket identifies a sport/league win-probability market.
type SportMarket struct {
	Sport  string // "hockey", "soccer", "football", ...
	League string // "NHL", "EPL", "NFL", ...
}

func (m SportMarket) Kind() MarketKind { return MarketSport }
func (m SportMarket) Key() string      { return "sport:" + m.Sport + ":" + m.League }

// CryptoMarket identifies a strike/expiry binary market on an asset.
type CryptoMarket struct {
	Asset      string // "BTC", "ETH", ...
	Strike     decimal.Decimal
	HasStrike  bool
	ExpiryUTC  time.Time
	Direction  Direction
}

func (m CryptoMarket) Kind() MarketKind { return MarketCrypto }
func (m CryptoMarket) Key() string      { return "crypto:" + m.Asset }

// ResolutionStatus is the lifecycle state of an Event.
type ResolutionStatus string

const (
	StatusScheduled ResolutionStatus = "scheduled"
	StatusLive      ResolutionStatus = "live"
	StatusFinal     ResolutionStatus = "final"
)

// Event is the immutable identity of a tradeable real-world outcome.
type Event struct {
	EventID           string
	MarketType        MarketType
	EntityA           string
	EntityB           string // empty for single-entity markets (crypto)
	ScheduledStartUTC time.Time
}

// HasEntityB reports whether this is a two-entity (head-to-head) market.
func (e Event) HasEntityB() bool { return e.EntityB != "" }
