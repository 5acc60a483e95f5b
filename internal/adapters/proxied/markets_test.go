package proxied

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchMarketsParsesListing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		require.Equal(t, "nhl", r.URL.Query().Get("tag"))
		json.NewEncoder(w).Encode(map[string]any{
			"markets": []MarketListing{
				{MarketID: "m1", Question: "Will the Bruins beat the Leafs?", Active: true},
			},
		})
	})

	out, err := c.SearchMarkets(context.Background(), "nhl")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "m1", out[0].MarketID)
}

func TestSearchMarketsNonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.SearchMarkets(context.Background(), "nhl")
	require.Error(t, err)
}
