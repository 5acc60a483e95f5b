package direct

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// wsClient is the Direct venue's streaming leg: one persistent WebSocket
// connection, resubscribed on every reconnect, applying snapshot/delta
// order book updates and resnapshotting on a sequence gap. Modeled on the
// teacher's kalshi_ws.Client — gorilla/websocket supports one concurrent
// reader and one concurrent writer, so all writes are serialized through
// mu.
type wsClient struct {
	url    string
	signer *Signer
	bus    *events.Bus
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	markets map[string]bool
	subID   int
	books   map[string]*domain.OrderBook
}

func newWSClient(wsURL string, signer *Signer, bus *events.Bus) *wsClient {
	return &wsClient{
		url:     wsURL,
		signer:  signer,
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
	parsed, _ := url.Parse(c.url)
	wsPath := parsed.Path
	if wsPath == "" {
		wsPath = "/trade-api/ws/v2"
	}
	header := c.signer.Headers("GET", wsPath)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// SubscribeMarkets implements venue.Feed. Safe to call before or after
// Connect; unsubscribed markets are remembered and subscribed on connect.
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

func (c *wsClient) runLoop(ctx context.Context) {
	defer close(c.done)

	first := true
	for {
		if first {
			telemetry.Infof("direct_ws: connected to %s", c.url)
			first = false
		} else {
			telemetry.Infof("direct_ws: reconnected")
		}

		c.resubscribeAll()
		c.readLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		telemetry.Metrics.WSReconnects.WithLabelValues(string(domain.VenueDirect)).Inc()
		backoff := 1 * time.Second
		const maxBackoff = 30 * time.Second
		for attempt := 1; ; attempt++ {
			telemetry.Warnf("direct_ws: reconnecting (attempt %d) in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("direct_ws: dial failed: %v", err)
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
		telemetry.Warnf("direct_ws: resubscribe failed: %v", err)
	}
}

// sendSubscribe writes a subscribe command. Caller must hold mu.
func (c *wsClient) sendSubscribe(marketIDs []string) error {
	c.subID++
	cmd := subscribeCmd{
		ID:  c.subID,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:            []string{"orderbook_delta"},
			MarketTickers:       marketIDs,
			SendInitialSnapshot: true,
		},
	}
	telemetry.Debugf("direct_ws: subscribing to %d markets (sid=%d)", len(marketIDs), c.subID)
	return c.conn.WriteJSON(cmd)
}

type subscribeCmd struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels            []string `json:"channels"`
	MarketTickers       []string `json:"market_tickers,omitempty"`
	SendInitialSnapshot bool     `json:"send_initial_snapshot,omitempty"`
}

func (c *wsClient) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	// The venue pings every 10s; 30s tolerates 3 missed pings.
	const pingWait = 30 * time.Second
	conn.SetReadDeadline(time.Now().Add(pingWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pingWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("direct_ws: read error: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pingWait))

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
		book = domain.NewOrderBook(domain.VenueDirect, marketID)
		c.books[marketID] = book
	}
	return book
}

// requestResnapshot asks the venue to resend a full snapshot for a market
// whose delta sequence gapped, mirroring spec §4.A's resnapshot-on-gap
// requirement. It does this the same way an initial subscribe does: the
// venue always answers a subscribe with a fresh snapshot first.
func (c *wsClient) requestResnapshot(marketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	telemetry.Warnf("direct_ws: sequence gap on %s, requesting resnapshot", marketID)
	if err := c.sendSubscribe([]string{marketID}); err != nil {
		telemetry.Warnf("direct_ws: resnapshot request for %s failed: %v", marketID, err)
	}
}
