package eventprovider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/predikt-markets/engine/internal/domain"
)

func TestToEventBuildsSportMarketIdentity(t *testing.T) {
	ev := scoreboardEvent{EventID: "NHL1", League: "NHL", HomeTeam: "BOS", AwayTeam: "TOR"}
	out := toEvent("hockey", ev)

	require.Equal(t, "NHL1", out.EventID)
	require.Equal(t, domain.SportMarket{Sport: "hockey", League: "NHL"}, out.MarketType)
	require.Equal(t, "BOS", out.EntityA)
	require.Equal(t, "TOR", out.EntityB)
}

func TestToStateMapsStatusAndPossession(t *testing.T) {
	ev := scoreboardEvent{
		EventID: "NHL1", HomeScore: 2, AwayScore: 1, Period: "2nd",
		SecondsRemain: 612, Possession: "home", Status: "live",
	}
	now := time.Now()
	state := toState(ev, now, 50*time.Millisecond)

	require.Equal(t, domain.StatusLive, state.Status)
	require.Equal(t, domain.PossessionHome, state.Possession)
	require.Equal(t, 2, state.HomeScore)
	require.Equal(t, now, state.FetchTimestamp)
}

func TestDiffPlaysOnlyReturnsUnseen(t *testing.T) {
	seen := map[string]bool{"p1": true}
	ev := scoreboardEvent{
		EventID: "NHL1",
		Plays: []scoreboardPlay{
			{PlayID: "p1", Kind: "score"},
			{PlayID: "p2", Kind: "turnover"},
		},
	}
	fresh := diffPlays(ev, seen, domain.EventState{})
	require.Len(t, fresh, 1)
	require.Equal(t, "p2", fresh[0].PlayID)
	require.Equal(t, domain.PlayTurnover, fresh[0].Kind)
	require.True(t, seen["p2"])
}
