package main

import (
	"context"
	"sync"

	"github.com/predikt-markets/engine/internal/core/position"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
)

// bankrollSource implements signal.BankrollSource over the repository and
// the live position registry: the processor only ever reads bankroll state,
// the Position Tracker owns every write (spec §4.H).
type bankrollSource struct {
	repo    domain.Repository
	tracker *position.Tracker

	mu        sync.Mutex
	day       string
	lossCents int64
}

func newBankrollSource(repo domain.Repository, tracker *position.Tracker, bus *events.Bus) *bankrollSource {
	b := &bankrollSource{repo: repo, tracker: tracker}
	bus.Subscribe(events.TypePositionClosed, b.onPositionClosed)
	return b
}

func (b *bankrollSource) Bankroll(account string) (domain.Bankroll, error) {
	return b.repo.GetBankroll(context.Background(), account)
}

func (b *bankrollSource) DailyRealizedLossCents(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lossCents
}

func (b *bankrollSource) OpenPositionCount(eventID string) int {
	n := 0
	for _, p := range b.tracker.OpenPositions() {
		if p.EventID == eventID {
			n++
		}
	}
	return n
}

// onPositionClosed accumulates same-day realized losses; a UTC day
// rollover resets the counter rather than rolling a window, matching the
// risk limit's "daily" framing in spec §4.F.
func (b *bankrollSource) onPositionClosed(e events.Event) error {
	payload, ok := e.Payload.(events.PositionPayload)
	if !ok || payload.Position.Exit == nil {
		return nil
	}
	pnl := payload.Position.Exit.RealizedPnLCents
	if pnl >= 0 {
		return nil
	}

	day := payload.Position.Exit.ClosedUTC.UTC().Format("2006-01-02")
	b.mu.Lock()
	defer b.mu.Unlock()
	if day != b.day {
		b.day = day
		b.lossCents = 0
	}
	b.lossCents += int64(-pnl)
	return nil
}
