package shard

import (
	"testing"
	"time"

	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
)

// fakeModel returns a scripted probability per call, in order, repeating
// the last value once exhausted.
type fakeModel struct {
	ps    []float64
	calls int
}

func (m *fakeModel) Estimate(ev domain.Event, state domain.EventState, entity string, pregame domain.Probability) domain.Probability {
	i := m.calls
	m.calls++
	if i >= len(m.ps) {
		i = len(m.ps) - 1
	}
	return domain.Probability{EventID: ev.EventID, ForEntity: entity, P: m.ps[i], ComputedUTC: time.Now()}
}

func testEvent(id string) domain.Event {
	return domain.Event{
		EventID:    id,
		MarketType: domain.SportMarket{Sport: "hockey", League: "NHL"},
		EntityA:    "home",
	}
}

func waitForInbox(f *fiber) {
	// synchronize with the fiber's goroutine by round-tripping a no-op
	done := make(chan struct{})
	f.send(func() { close(done) })
	<-done
}

func newTestShard(t *testing.T, model probability.Model) (*Shard, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	registry := probability.NewRegistry()
	registry.Register(domain.SportMarket{Sport: "hockey", League: "NHL"}.Key(), model)
	cfg := DefaultConfig()
	cfg.Capacity = 2
	return New(1, cfg, bus, registry, nil), bus
}

func TestAddEventFailsAtCapacity(t *testing.T) {
	s, _ := newTestShard(t, &fakeModel{ps: []float64{0.5}})

	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEvent(testEvent("e2")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEvent(testEvent("e3")); err != ErrAtCapacity {
		t.Errorf("err = %v, want ErrAtCapacity", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStaleStateIsDiscardedByMonotonicGuard(t *testing.T) {
	s, bus := newTestShard(t, &fakeModel{ps: []float64{0.5, 0.9}})
	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}

	var probs []float64
	bus.Subscribe(events.TypeProbability, func(e events.Event) error {
		probs = append(probs, e.Payload.(events.ProbabilityPayload).Probability.P)
		return nil
	})

	now := time.Now()
	s.HandleEventState("e1", domain.EventState{EventID: "e1", FetchTimestamp: now})
	s.HandleEventState("e1", domain.EventState{EventID: "e1", FetchTimestamp: now.Add(-time.Second)}) // older, must be dropped
	waitForInbox(s.fibers["e1"])

	if len(probs) != 1 {
		t.Fatalf("probabilities published = %d, want 1 (stale state must not recompute)", len(probs))
	}
	if probs[0] != 0.5 {
		t.Errorf("p = %v, want 0.5", probs[0])
	}
}

func TestPriceChangeReEvaluatesUsingCachedProbability(t *testing.T) {
	s, bus := newTestShard(t, &fakeModel{ps: []float64{0.80}})
	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}

	var signals []domain.Signal
	bus.Subscribe(events.TypeSignal, func(e events.Event) error {
		signals = append(signals, e.Payload.(events.SignalPayload).Signal)
		return nil
	})

	now := time.Now()
	s.HandleEventState("e1", domain.EventState{EventID: "e1", FetchTimestamp: now})
	waitForInbox(s.fibers["e1"])
	if len(signals) != 0 {
		t.Fatalf("signals before any price = %d, want 0 (no quotes cached yet)", len(signals))
	}

	// model says 80% to win; market only asks 50c for YES -> a model-edge
	// candidate should fire once a fresh quote arrives.
	s.HandlePrice("e1", domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M1", EventID: "e1", ContractEntity: "home",
		YesBidCents: 48, YesAskCents: 50, YesAskSize: 500, UpdatedUTC: now,
	})
	waitForInbox(s.fibers["e1"])

	if len(signals) == 0 {
		t.Fatal("expected a model-edge signal once a fresh quote priced below the model's probability arrived")
	}
}

func TestStalePriceIsIgnored(t *testing.T) {
	s, bus := newTestShard(t, &fakeModel{ps: []float64{0.80}})
	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}

	var signals []domain.Signal
	bus.Subscribe(events.TypeSignal, func(e events.Event) error {
		signals = append(signals, e.Payload.(events.SignalPayload).Signal)
		return nil
	})

	now := time.Now()
	s.HandleEventState("e1", domain.EventState{EventID: "e1", FetchTimestamp: now})
	waitForInbox(s.fibers["e1"])

	s.HandlePrice("e1", domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M1", EventID: "e1", ContractEntity: "home",
		YesBidCents: 48, YesAskCents: 50, YesAskSize: 500,
		UpdatedUTC: now.Add(-time.Hour), // older than the staleness TTL
	})
	waitForInbox(s.fibers["e1"])

	if len(signals) != 0 {
		t.Errorf("signals = %d, want 0 (stale price must be discarded)", len(signals))
	}
}

func TestRemoveEventStopsRoutingAndDecrementsCapacity(t *testing.T) {
	s, _ := newTestShard(t, &fakeModel{ps: []float64{0.5}})
	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}
	s.RemoveEvent("e1")
	if s.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", s.Len())
	}
	// Routing to a removed event must be a silent no-op, not a panic.
	s.HandleEventState("e1", domain.EventState{EventID: "e1", FetchTimestamp: time.Now()})
}

func TestFinalStateTriggersSelfRemoval(t *testing.T) {
	s, _ := newTestShard(t, &fakeModel{ps: []float64{0.5}})
	if err := s.AddEvent(testEvent("e1")); err != nil {
		t.Fatal(err)
	}

	s.HandleEventState("e1", domain.EventState{EventID: "e1", Status: domain.StatusFinal, FetchTimestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Len() != 0 {
		t.Error("expected the shard to self-remove the event after it went Final")
	}
}
