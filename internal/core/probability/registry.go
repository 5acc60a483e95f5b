// Package probability dispatches a live Event to the probability model for
// its MarketType, generalising the teacher's strategy.Registry (sport ->
// Strategy) into MarketType.Key() -> Model so a crypto market and a sport
// market share one lookup path (spec §4.D, §9 "dynamic dispatch").
package probability

import (
	"github.com/predikt-markets/engine/internal/domain"
)

// Model computes a live probability estimate for one entity of an event.
type Model interface {
	// Estimate returns the model's win/outcome probability given the
	// event's current state and, where applicable, a pregame prior.
	Estimate(ev domain.Event, state domain.EventState, entity string, pregame domain.Probability) domain.Probability
}

// Registry maps a MarketType's registry key to its Model.
type Registry struct {
	models map[string]Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register binds a model to every market type that shares the given key,
// e.g. "sport:hockey:nhl" or "crypto:BTC".
func (r *Registry) Register(key string, m Model) {
	r.models[key] = m
}

// RegisterDefault binds a fallback model used when no exact key matches —
// the teacher's Registry.CreateGameState defaults to hockey for an unknown
// sport; here the caller chooses what "default" means per market kind.
func (r *Registry) RegisterDefault(kind domain.MarketKind, m Model) {
	r.models[string(kind)+":default"] = m
}

// Get resolves a MarketType to its Model, falling back to the kind-level
// default if no more specific key is registered.
func (r *Registry) Get(mt domain.MarketType) (Model, bool) {
	if m, ok := r.models[mt.Key()]; ok {
		return m, true
	}
	if m, ok := r.models[string(mt.Kind())+":default"]; ok {
		return m, true
	}
	return nil, false
}

// Unknown is returned by Estimate implementations that cannot compute a
// probability (missing pregame data, zero time remaining inputs) so the
// caller can short-circuit signal generation for this tick.
var Unknown = domain.Unknown
