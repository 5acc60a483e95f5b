package eventprovider

import (
	"strings"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
)

func statusFromWire(s string) domain.ResolutionStatus {
	switch strings.ToLower(s) {
	case "live", "in_progress", "in-progress":
		return domain.StatusLive
	case "final", "finished", "ended":
		return domain.StatusFinal
	default:
		return domain.StatusScheduled
	}
}

func possessionFromWire(s string) domain.Possession {
	switch strings.ToLower(s) {
	case "home":
		return domain.PossessionHome
	case "away":
		return domain.PossessionAway
	default:
		return domain.PossessionNone
	}
}

func playKindFromWire(s string) domain.PlayKind {
	switch strings.ToLower(s) {
	case "score":
		return domain.PlayScore
	case "turnover":
		return domain.PlayTurnover
	case "period_end":
		return domain.PlayPeriodEnd
	default:
		return domain.PlayOther
	}
}

// toEvent builds the immutable event identity, used once on first sighting.
func toEvent(sport string, ev scoreboardEvent) domain.Event {
	return domain.Event{
		EventID:           ev.EventID,
		MarketType:        domain.SportMarket{Sport: sport, League: ev.League},
		EntityA:           ev.HomeTeam,
		EntityB:           ev.AwayTeam,
		ScheduledStartUTC: ev.ScheduledStart,
	}
}

// toState builds the current EventState snapshot. fetchedAt is stamped by
// the caller so every event in one poll batch shares a consistent
// fetch_timestamp per spec §3's monotonic-non-decreasing invariant.
func toState(ev scoreboardEvent, fetchedAt time.Time, latency time.Duration) domain.EventState {
	return domain.EventState{
		EventID:        ev.EventID,
		HomeScore:      ev.HomeScore,
		AwayScore:      ev.AwayScore,
		Period:         ev.Period,
		SecondsRemain:  ev.SecondsRemain,
		Possession:     possessionFromWire(ev.Possession),
		Status:         statusFromWire(ev.Status),
		FetchTimestamp: fetchedAt,
		FetchLatency:   latency,
	}
}

// diffPlays returns the plays not already present in seen, in wire order,
// and adds their IDs to seen (spec §4.B: "any new Play entries, diff by
// play_id").
func diffPlays(ev scoreboardEvent, seen map[string]bool, state domain.EventState) []domain.Play {
	var fresh []domain.Play
	for _, p := range ev.Plays {
		if p.PlayID == "" || seen[p.PlayID] {
			continue
		}
		seen[p.PlayID] = true
		fresh = append(fresh, domain.Play{
			EventID: ev.EventID,
			PlayID:  p.PlayID,
			Kind:    playKindFromWire(p.Kind),
			Scoring: p.Scoring,
			TimeUTC: p.Time,
			Delta:   state,
		})
	}
	return fresh
}
