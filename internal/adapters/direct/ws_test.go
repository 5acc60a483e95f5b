package direct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/predikt-markets/engine/internal/events"
)

func newTestWSServer(t *testing.T, onSubscribe func(cmd subscribeCmd)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd subscribeCmd
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if onSubscribe != nil {
				onSubscribe(cmd)
			}
			snapshot := `{"type":"orderbook_snapshot","msg":{"market_ticker":"M1","seq":1,"yes":[[45,100]],"no":[]}}`
			conn.WriteMessage(websocket.TextMessage, []byte(snapshot))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectSubscribesAndReceivesSnapshot(t *testing.T) {
	var gotMarkets []string
	srv := newTestWSServer(t, func(cmd subscribeCmd) {
		gotMarkets = cmd.Params.MarketTickers
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	bus := events.NewBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.TypeMarketPrice, func(e events.Event) error {
		select {
		case received <- e:
		default:
		}
		return nil
	})

	c := newWSClient(wsURL, nil, bus)
	require.NoError(t, c.SubscribeMarkets([]string{"M1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	select {
	case e := <-received:
		payload := e.Payload.(events.MarketPricePayload)
		require.Equal(t, "M1", payload.Price.MarketID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for market price event")
	}

	require.Equal(t, []string{"M1"}, gotMarkets)
}
