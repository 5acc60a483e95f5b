// Package eventprovider polls an HTTPS JSON sports scoreboard on a dynamic
// interval and publishes EventState/Play/EventDiscovered updates onto the
// event bus, modeled on the teacher's goalserve_http/goalserve_webhook pair
// generalized from push (webhook) to pull (poll) ingestion (spec §4.B).
package eventprovider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// Config tunes the provider (spec §4.B/§7).
type Config struct {
	BaseURL string
	APIKey  string
	// Sports lists the scoreboard feeds to poll, one request each per tick.
	Sports []string
	// GameSeconds overrides defaultGameSeconds for specific sports.
	GameSeconds map[string]float64
	// FailureThreshold is consecutive non-rate-limited failures before the
	// breaker trips (spec §7 default 5).
	FailureThreshold int
	// BreakerOpenDuration is how long the breaker stays open before a
	// half-open probe (spec §7 default 30s).
	BreakerOpenDuration time.Duration
}

// DefaultConfig returns spec §4.B/§7's defaults.
func DefaultConfig(baseURL, apiKey string, sports []string) Config {
	return Config{
		BaseURL:             baseURL,
		APIKey:              apiKey,
		Sports:              sports,
		FailureThreshold:    5,
		BreakerOpenDuration: 30 * time.Second,
	}
}

// trackedEvent is the provider's own memory of one event, used to diff
// state changes and plays, and to feed the dynamic interval scheduler.
type trackedEvent struct {
	event     domain.Event
	state     domain.EventState
	seenPlays map[string]bool
}

// Provider polls every configured sport's scoreboard and republishes state
// onto the bus.
type Provider struct {
	cfg    Config
	bus    *events.Bus
	http   *httpClient
	sched  *scheduler
	breaker map[string]*breaker // one breaker per sport

	mu      sync.Mutex
	tracked map[string]trackedEvent // event_id -> tracked state
}

func New(cfg Config, bus *events.Bus) *Provider {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerOpenDuration <= 0 {
		cfg.BreakerOpenDuration = 30 * time.Second
	}

	breakers := make(map[string]*breaker, len(cfg.Sports))
	for _, sport := range cfg.Sports {
		breakers[sport] = newBreaker(cfg.FailureThreshold, cfg.BreakerOpenDuration)
	}

	return &Provider{
		cfg:     cfg,
		bus:     bus,
		http:    newHTTPClient(cfg.BaseURL, cfg.APIKey),
		sched:   newScheduler(cfg.GameSeconds),
		breaker: breakers,
		tracked: make(map[string]trackedEvent),
	}
}

// Run polls every sport on its own dynamic-interval ticker until ctx is
// cancelled. Each sport runs independently so one sport's crunch window
// doesn't speed up another sport's idle polling (spec §4.B).
func (p *Provider) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sport := range p.cfg.Sports {
		wg.Add(1)
		go func(sport string) {
			defer wg.Done()
			p.runSport(ctx, sport)
		}(sport)
	}
	wg.Wait()
}

func (p *Provider) runSport(ctx context.Context, sport string) {
	interval := IntervalIdle
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.poll(ctx, sport)

		interval = p.sched.nextInterval(p.sportSnapshot(sport))
		timer.Reset(interval)
	}
}

// sportSnapshot returns this provider's tracked state filtered to one
// sport, for the scheduler's interval decision.
func (p *Provider) sportSnapshot(sport string) map[string]trackedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]trackedEvent)
	for id, t := range p.tracked {
		if sm, ok := t.event.MarketType.(domain.SportMarket); ok && sm.Sport == sport {
			out[id] = t
		}
	}
	return out
}

// poll runs one scoreboard fetch for sport, honoring the circuit breaker,
// and publishes discovered/state/play events for every event in the
// response.
func (p *Provider) poll(ctx context.Context, sport string) {
	br := p.breaker[sport]
	if !br.Allow() {
		telemetry.Warnf("eventprovider: %s circuit open, skipping poll", sport)
		return
	}

	start := time.Now()
	resp, err := p.http.fetch(ctx, sport)
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			// Rate limiting never counts against the breaker (spec §7).
			telemetry.Warnf("eventprovider: %s rate limited: %v", sport, err)
			return
		}
		br.RecordFailure()
		telemetry.Errorf("eventprovider: %s poll failed: %v", sport, err)
		if !br.Healthy() {
			p.publishHeartbeat(sport, false)
		}
		return
	}
	br.RecordSuccess()
	p.publishHeartbeat(sport, true)

	now := time.Now()
	for _, ev := range resp.Events {
		p.handleEvent(sport, ev, now, latency)
	}
}

func (p *Provider) handleEvent(sport string, ev scoreboardEvent, fetchedAt time.Time, latency time.Duration) {
	state := toState(ev, fetchedAt, latency)

	p.mu.Lock()
	prior, known := p.tracked[ev.EventID]
	if !known {
		prior = trackedEvent{event: toEvent(sport, ev), seenPlays: make(map[string]bool)}
	} else if !domain.IsNewer(prior.state, state) {
		// Stale fetch: keep the newer state, still check for new plays.
		state = prior.state
	}
	plays := diffPlays(ev, prior.seenPlays, state)
	prior.state = state
	p.tracked[ev.EventID] = prior
	p.mu.Unlock()

	if !known {
		p.bus.Publish(events.Event{
			Type:      events.TypeEventDiscovered,
			EventID:   ev.EventID,
			Timestamp: fetchedAt,
			Payload:   events.EventDiscoveredPayload{Event: prior.event},
		})
	}

	telemetry.Metrics.EventStatesReceived.Inc()
	p.bus.Publish(events.Event{
		Type:      events.TypeEventState,
		EventID:   ev.EventID,
		Timestamp: fetchedAt,
		Payload:   events.EventStatePayload{EventID: ev.EventID, State: state},
	})

	for _, play := range plays {
		telemetry.Metrics.PlaysObserved.Inc()
		p.bus.Publish(events.Event{
			Type:      events.TypePlay,
			EventID:   ev.EventID,
			Timestamp: fetchedAt,
			Payload:   events.PlayPayload{EventID: ev.EventID, Play: play},
		})
	}
}

func (p *Provider) publishHeartbeat(sport string, healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	p.bus.Publish(events.Event{
		Type:      events.TypeHeartbeat,
		Timestamp: time.Now(),
		Payload:   events.HeartbeatPayload{Component: "eventprovider:" + sport + ":" + status, At: time.Now()},
	})
}
