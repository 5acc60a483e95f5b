package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Possession identifies which sport entity currently holds possession,
// where applicable (football, basketball).
type Possession string

const (
	PossessionNone Possession = ""
	PossessionHome Possession = "home"
	PossessionAway Possession = "away"
)

// EventState is the mutable, one-per-event snapshot joined from the Event
// Provider (sport/asset state) with the latest venue prices downstream.
//
// Invariant: FetchTimestamp is monotonically non-decreasing per event; a
// caller that receives a state older than the last stored one must drop it
// (see domain.IsNewer).
type EventState struct {
	EventID string

	// Sport fields.
	HomeScore      int
	AwayScore      int
	Period         string
	SecondsRemain  float64
	Possession     Possession
	// Football-only situational fields (spec §4.D's possession-value
	// lookup keyed by (yard_line, down, distance)); zero elsewhere.
	// YardLine is distance from the possessing team's own goal line, 0-100.
	YardLine int
	Down     int
	Distance int

	// Crypto fields.
	Spot          decimal.Decimal
	Reference     decimal.Decimal
	TimeToExpiry  time.Duration

	Status         ResolutionStatus
	FetchTimestamp time.Time
	FetchLatency   time.Duration
}

// IsNewer reports whether candidate should replace current per the
// monotonic fetch_timestamp guard in spec §3.
func IsNewer(current, candidate EventState) bool {
	return candidate.FetchTimestamp.After(current.FetchTimestamp)
}

// PlayKind enumerates the discrete play types the Event Provider can emit.
type PlayKind string

const (
	PlayScore     PlayKind = "score"
	PlayTurnover  PlayKind = "turnover"
	PlayPeriodEnd PlayKind = "period_end"
	PlayOther     PlayKind = "other"
)

// Play is a discrete, append-only occurrence within a live game.
// Replaying the last-known PlayID is idempotent — the Event Provider's
// parser drops repeated PlayIDs and the repository store dedupes on
// (event_id, play_id).
type Play struct {
	EventID  string
	PlayID   string
	Kind     PlayKind
	Scoring  bool
	TimeUTC  time.Time
	// Delta is an opaque description of the EventState mutation this play
	// produces; sport-specific code interprets it.
	Delta EventState
}
