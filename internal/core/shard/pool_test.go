package shard

import (
	"testing"

	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/events"
)

func newPlacementShard(t *testing.T, id, cap int) *Shard {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Capacity = cap
	return New(id, cfg, events.NewBus(), probability.NewRegistry(), nil)
}

func TestPoolPlacesOnLeastLoadedShard(t *testing.T) {
	a := newPlacementShard(t, 1, 10)
	b := newPlacementShard(t, 2, 10)
	pool := NewPool(a, b)

	if err := a.AddEvent(testEvent("pre-loaded")); err != nil {
		t.Fatal(err)
	}

	id, err := pool.Place(testEvent("e1"))
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("placed on shard %d, want 2 (the less-loaded shard)", id)
	}
}

func TestPoolSkipsFullShards(t *testing.T) {
	a := newPlacementShard(t, 1, 1)
	b := newPlacementShard(t, 2, 1)
	pool := NewPool(a, b)

	if err := a.AddEvent(testEvent("e0")); err != nil {
		t.Fatal(err)
	}

	id, err := pool.Place(testEvent("e1"))
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Errorf("placed on shard %d, want 2 (shard 1 is full)", id)
	}
}

func TestPoolReturnsErrNoCapacityWhenAllFull(t *testing.T) {
	a := newPlacementShard(t, 1, 1)
	pool := NewPool(a)

	if err := a.AddEvent(testEvent("e0")); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Place(testEvent("e1")); err != ErrNoCapacity {
		t.Errorf("err = %v, want ErrNoCapacity", err)
	}
}
