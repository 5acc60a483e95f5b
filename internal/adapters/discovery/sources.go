package discovery

import (
	"context"

	"github.com/predikt-markets/engine/internal/adapters/direct"
	"github.com/predikt-markets/engine/internal/adapters/proxied"
	"github.com/predikt-markets/engine/internal/domain"
)

// defaultSeriesTickers maps a sport to the Direct venue's series tickers
// covering it, generalizing the teacher's per-sport defaultSeriesTickers
// table from a single Kalshi sport vertical to hockey, football and
// soccer. Basketball has no entry, and no operator override of this
// table exists.
var defaultSeriesTickers = map[string][]string{
	"hockey":   {"KXNHLGAME"},
	"football": {"KXNFLGAME"},
	"soccer":   {"KXEPLGAME", "KXUCLGAME"},
}

// DirectSource adapts internal/adapters/direct.Client's series-ticker
// listing to the discovery.Source shape.
type DirectSource struct {
	client *direct.Client
}

func NewDirectSource(client *direct.Client) *DirectSource {
	return &DirectSource{client: client}
}

func (s *DirectSource) Venue() domain.Venue { return domain.VenueDirect }

// Markets fans out over every series ticker configured for the sport named
// by key and merges the pages, since Direct has no single "all sports"
// listing endpoint.
func (s *DirectSource) Markets(ctx context.Context, key string) ([]Candidate, error) {
	series, ok := defaultSeriesTickers[key]
	if !ok {
		return nil, nil
	}
	var out []Candidate
	for _, ticker := range series {
		listings, err := s.client.GetMarkets(ctx, ticker)
		if err != nil {
			return nil, err
		}
		for _, l := range listings {
			out = append(out, Candidate{MarketID: l.Ticker, Title: l.Title})
		}
	}
	return out, nil
}

// ProxiedSource adapts internal/adapters/proxied.Client's free-text tag
// search to the discovery.Source shape.
type ProxiedSource struct {
	client *proxied.Client
}

func NewProxiedSource(client *proxied.Client) *ProxiedSource {
	return &ProxiedSource{client: client}
}

func (s *ProxiedSource) Venue() domain.Venue { return domain.VenueProxied }

func (s *ProxiedSource) Markets(ctx context.Context, key string) ([]Candidate, error) {
	listings, err := s.client.SearchMarkets(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(listings))
	for _, l := range listings {
		if !l.Active {
			continue
		}
		out = append(out, Candidate{MarketID: l.MarketID, Title: l.Question})
	}
	return out, nil
}
