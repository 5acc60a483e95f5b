package proxied

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"

	"github.com/predikt-markets/engine/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		http: resty.New().SetBaseURL(srv.URL),
		rl:   newRateLimiter(),
	}
}

func TestPlaceOrderFilled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		var body placeOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "buy", body.Side)
		require.Equal(t, "fill_or_kill", body.TimeInForce)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(placeOrderResponse{
			OrderID: "p1", Status: "filled", FilledQty: 10, AvgPriceCents: 55,
		})
	})

	req := domain.ExecutionRequest{IdempotencyKey: "idem-1", MarketID: "M1", Side: domain.SideBuy, Quantity: 10, LimitPriceCents: 55}
	res, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, res.Status)
	require.Equal(t, 10, res.FilledQty)
	require.Equal(t, "p1", res.VenueOrderID)
	require.Greater(t, res.FeesCents, 0)
}

func TestPlaceOrderNoOutcomeWiresNoOutcomeField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body placeOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "buy", body.Side)
		require.Equal(t, "no", body.Outcome, "a model-edge-no signal must target the no outcome, never yes")

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(placeOrderResponse{
			OrderID: "p2", Status: "filled", FilledQty: 10, AvgPriceCents: 45,
		})
	})

	req := domain.ExecutionRequest{
		IdempotencyKey: "idem-no", MarketID: "M1",
		Side: domain.SideBuy, Outcome: domain.OutcomeNo,
		Quantity: 10, LimitPriceCents: 45,
	}
	res, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, res.Status)
}

func TestPlaceOrderRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	req := domain.ExecutionRequest{IdempotencyKey: "idem-2", MarketID: "M1", Side: domain.SideBuy, Quantity: 1}
	_, err := c.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPlaceOrderRejectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient balance"}`))
	})

	req := domain.ExecutionRequest{IdempotencyKey: "idem-3", MarketID: "M1", Side: domain.SideSell, Quantity: 1}
	res, err := c.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.OrderRejected, res.Status)
	require.Contains(t, res.Reason, "status=400")
}

func TestPlaceOrderUnexpectedStatusIsProtocolViolation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(placeOrderResponse{OrderID: "p2", Status: "resting"})
	})

	req := domain.ExecutionRequest{IdempotencyKey: "idem-4", MarketID: "M1", Side: domain.SideBuy, Quantity: 1}
	_, err := c.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrProtocolViolation)
}
