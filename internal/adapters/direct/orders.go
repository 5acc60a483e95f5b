package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// createOrderRequest is the wire payload for a Direct venue order. Every
// order is immediate-or-cancel; the engine's paired-leg/idempotency
// handling lives one layer up, so ClientOrderID here is just the
// request's idempotency key carried through verbatim.
type createOrderRequest struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"` // "buy" or "sell"
	Side        string `json:"side"`   // "yes" or "no"
	Count       int    `json:"count"`
	PriceCents  int    `json:"price_cents"`
	ClientID    string `json:"client_order_id"`
	TimeInForce string `json:"time_in_force"`
}

type createOrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Status         string `json:"status"`
		FillCount      int    `json:"fill_count"`
		AvgFillCents   int    `json:"avg_fill_price_cents"`
		TakerFeesCents int    `json:"taker_fees_cents"`
	} `json:"order"`
}

// PlaceOrder implements execution.VenueClient for the Direct venue.
func (c *Client) PlaceOrder(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	action := "buy"
	if req.Side == domain.SideSell {
		action = "sell"
	}
	side := "yes"
	if req.Outcome == domain.OutcomeNo {
		side = "no"
	}

	body := createOrderRequest{
		Ticker:      req.MarketID,
		Action:      action,
		Side:        side,
		Count:       req.Quantity,
		PriceCents:  req.LimitPriceCents,
		ClientID:    req.IdempotencyKey,
		TimeInForce: "immediate_or_cancel",
	}

	respBody, status, err := c.http.Post(ctx, "/trade-api/v2/portfolio/orders", body)
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return domain.ExecutionResult{}, fmt.Errorf("direct: place order: %w", err)
	}

	if status == http.StatusTooManyRequests {
		return domain.ExecutionResult{}, fmt.Errorf("direct: order rate limited: %w", domain.ErrRateLimited)
	}
	if status < 200 || status >= 300 {
		telemetry.Metrics.OrderErrors.Inc()
		return domain.ExecutionResult{
			Status: domain.OrderRejected,
			Reason: fmt.Sprintf("status=%d body=%s", status, string(respBody)),
		}, nil
	}

	var resp createOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("direct: unmarshal order response: %w", err)
	}

	result := domain.ExecutionResult{
		ClientOrderID: req.IdempotencyKey,
		VenueOrderID:  resp.Order.OrderID,
		FilledQty:     resp.Order.FillCount,
		AvgPriceCents: resp.Order.AvgFillCents,
		FeesCents:     resp.Order.TakerFeesCents,
	}

	switch resp.Order.Status {
	case "executed", "filled":
		result.Status = domain.OrderFilled
	case "canceled", "cancelled":
		result.Status = domain.OrderCancelled
	default:
		// The venue contract promises IOC orders never rest; anything else
		// reported here is the venue misbehaving, not a result we can trust.
		return domain.ExecutionResult{}, fmt.Errorf("direct: unexpected order status %q: %w", resp.Order.Status, domain.ErrProtocolViolation)
	}

	if result.FilledQty > 0 {
		telemetry.Metrics.OrderFills.Inc()
	}
	telemetry.Metrics.OrdersSent.Inc()
	return result, nil
}
