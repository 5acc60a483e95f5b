package proxied

import (
	"context"
	"fmt"
	"net/http"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/telemetry"
)

type placeOrderRequest struct {
	MarketID    string `json:"market_id"`
	Side        string `json:"side"`    // "buy" or "sell"
	Outcome     string `json:"outcome"` // "yes" or "no"
	Quantity    int    `json:"quantity"`
	PriceCents  int    `json:"price_cents"`
	ClientID    string `json:"client_order_id"`
	TimeInForce string `json:"time_in_force"`
}

type placeOrderResponse struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	FilledQty     int    `json:"filled_quantity"`
	AvgPriceCents int    `json:"avg_price_cents"`
}

// PlaceOrder implements execution.VenueClient for the Proxied venue. The
// order response carries no fee field, so the fee is always computed from
// domain.ProxiedFeeSchedule's flat 2% taker rate.
func (c *Client) PlaceOrder(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("proxied: rate limit wait: %w", err)
	}

	side := "buy"
	if req.Side == domain.SideSell {
		side = "sell"
	}
	outcome := "yes"
	if req.Outcome == domain.OutcomeNo {
		outcome = "no"
	}

	body := placeOrderRequest{
		MarketID:    req.MarketID,
		Side:        side,
		Outcome:     outcome,
		Quantity:    req.Quantity,
		PriceCents:  req.LimitPriceCents,
		ClientID:    req.IdempotencyKey,
		TimeInForce: "fill_or_kill",
	}

	var result placeOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return domain.ExecutionResult{}, fmt.Errorf("proxied: place order: %w", err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return domain.ExecutionResult{}, fmt.Errorf("proxied: order rate limited: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode() != http.StatusOK {
		telemetry.Metrics.OrderErrors.Inc()
		return domain.ExecutionResult{
			Status: domain.OrderRejected,
			Reason: fmt.Sprintf("status=%d body=%s", resp.StatusCode(), resp.String()),
		}, nil
	}

	out := domain.ExecutionResult{
		ClientOrderID: req.IdempotencyKey,
		VenueOrderID:  result.OrderID,
		FilledQty:     result.FilledQty,
		AvgPriceCents: result.AvgPriceCents,
		FeesCents:     domain.ProxiedFeeSchedule{}.FeeCents(result.AvgPriceCents, result.FilledQty),
	}

	switch result.Status {
	case "filled", "executed":
		out.Status = domain.OrderFilled
	case "canceled", "cancelled":
		out.Status = domain.OrderCancelled
	default:
		return domain.ExecutionResult{}, fmt.Errorf("proxied: unexpected order status %q: %w", result.Status, domain.ErrProtocolViolation)
	}

	if out.FilledQty > 0 {
		telemetry.Metrics.OrderFills.Inc()
	}
	telemetry.Metrics.OrdersSent.Inc()
	return out, nil
}
