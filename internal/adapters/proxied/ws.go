package proxied

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// wsClient is the Proxied venue's streaming leg: subscribe by market/token
// ID, receive "book"/"price_change" messages, a 5-second ping keepalive
// (spec §4.A), and exponential backoff reconnect capped at 60s (spec §4.A
// resilience). Modeled on 0xtitan6-polymarket-mm's exchange.WSFeed,
// generalized from Polymarket's asset-ID market channel to this engine's
// domain.MarketPrice publication.
type wsClient struct {
	url  string
	bus  *events.Bus
	done chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	markets map[string]bool
	books   map[string]*domain.OrderBook
}

func newWSClient(wsURL string, bus *events.Bus) *wsClient {
	return &wsClient{
		url:     wsURL,
		bus:     bus,
		done:    make(chan struct{}),
		markets: make(map[string]bool),
		books:   make(map[string]*domain.OrderBook),
	}
}

func (c *wsClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.runLoop(ctx)
	return nil
}

func (c *wsClient) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// SubscribeMarkets implements venue.Feed.
func (c *wsClient) SubscribeMarkets(marketIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, m := range marketIDs {
		if !c.markets[m] {
			c.markets[m] = true
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 || c.conn == nil {
		return nil
	}
	return c.sendSubscribe(fresh)
}

func (c *wsClient) sendSubscribe(marketIDs []string) error {
	msg := subscribeMsg{Type: "market", Channel: "market", Markets: marketIDs}
	telemetry.Debugf("proxied_ws: subscribing to %d markets", len(marketIDs))
	return c.conn.WriteJSON(msg)
}

type subscribeMsg struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets"`
}

func (c *wsClient) runLoop(ctx context.Context) {
	defer close(c.done)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()

	first := true
	for {
		if first {
			telemetry.Infof("proxied_ws: connected to %s", c.url)
			first = false
		} else {
			telemetry.Infof("proxied_ws: reconnected")
		}

		c.resubscribeAll()

		readCtx, readCancel := context.WithCancel(ctx)
		go c.pingLoop(readCtx)
		c.readLoop(ctx)
		readCancel()

		select {
		case <-ctx.Done():
			return
		default:
		}

		telemetry.Metrics.WSReconnects.WithLabelValues(string(domain.VenueProxied)).Inc()
		backoff := 1 * time.Second
		const maxBackoff = 60 * time.Second
		for attempt := 1; ; attempt++ {
			telemetry.Warnf("proxied_ws: reconnecting (attempt %d) in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("proxied_ws: dial failed: %v", err)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			break
		}
	}
}

func (c *wsClient) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.markets) == 0 {
		return
	}
	all := make([]string, 0, len(c.markets))
	for m := range c.markets {
		all = append(all, m)
	}
	if err := c.sendSubscribe(all); err != nil {
		telemetry.Warnf("proxied_ws: resubscribe failed: %v", err)
	}
}

func (c *wsClient) pingLoop(ctx context.Context) {
	const pingInterval = 5 * time.Second
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				telemetry.Warnf("proxied_ws: ping failed: %v", err)
				return
			}
		}
	}
}

func (c *wsClient) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	// Idle timeout 30s triggers a fresh connection if the server goes quiet.
	const idleTimeout = 30 * time.Second
	conn.SetReadDeadline(time.Now().Add(idleTimeout))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("proxied_ws: read error: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		for _, evt := range c.handleMessage(msg) {
			c.bus.Publish(evt)
		}
	}
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *wsClient) Done() <-chan struct{} {
	return c.done
}

func (c *wsClient) bookFor(marketID string) *domain.OrderBook {
	book, ok := c.books[marketID]
	if !ok {
		book = domain.NewOrderBook(domain.VenueProxied, marketID)
		c.books[marketID] = book
	}
	return book
}
