package shard

import (
	"errors"
	"sync"

	"github.com/predikt-markets/engine/internal/domain"
)

// ErrNoCapacity is returned by Pool.Place when every shard is full.
var ErrNoCapacity = errors.New("shard: no shard in the pool has spare capacity")

// Pool is a fixed set of Shards the orchestrator places events onto by
// load-weighted round-robin: the shard with the fewest assigned events
// among those with spare capacity wins a tie by lowest ID, so placement is
// deterministic and reproducible in tests (spec §4.C/§4.I).
type Pool struct {
	mu     sync.Mutex
	shards []*Shard
}

func NewPool(shards ...*Shard) *Pool {
	return &Pool{shards: shards}
}

// Add registers an additional shard with the pool, e.g. when scaling out.
func (p *Pool) Add(s *Shard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shards = append(p.shards, s)
}

// Place picks the least-loaded shard with spare capacity and adds ev to it,
// returning that shard's ID.
func (p *Pool) Place(ev domain.Event) (int, error) {
	s := p.Least()
	if s == nil {
		return 0, ErrNoCapacity
	}
	if err := s.AddEvent(ev); err != nil {
		return 0, err
	}
	return s.ID(), nil
}

// Get returns the shard with the given ID, if the pool has one.
func (p *Pool) Get(id int) (*Shard, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.shards {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Shards returns a snapshot of the pool's members.
func (p *Pool) Shards() []*Shard {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Shard, len(p.shards))
	copy(out, p.shards)
	return out
}

// Least returns the shard with spare capacity and the fewest assigned
// events, or nil if every shard is full.
func (p *Pool) Least() *Shard {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Shard
	bestLen := -1
	for _, s := range p.shards {
		if !s.HasCapacity() {
			continue
		}
		n := s.Len()
		if best == nil || n < bestLen || (n == bestLen && s.ID() < best.ID()) {
			best = s
			bestLen = n
		}
	}
	return best
}
