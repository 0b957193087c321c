package push

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market-feed/internal/domain"
	"market-feed/internal/publish"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestGateway_ForwardsSubscribedTopics(t *testing.T) {
	g := NewGateway(zap.NewNop())
	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: "TRADE"}))
	require.Eventually(t, func() bool {
		return g.Subscribers(publish.TopicTrade) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	venue := domain.VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}
	bar, err := publish.BarMessage(domain.Bar{Venue: venue, Resolution: domain.Res1m, Time: 60_000})
	require.NoError(t, err)
	trade, err := publish.TradeMessage(domain.Trade{Venue: venue, Sequence: 2, Price: 5, Quantity: 1, Value: 5, Time: 61_000})
	require.NoError(t, err)

	require.NoError(t, g.Deliver(ctx, bar))
	require.NoError(t, g.Deliver(ctx, trade))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got publish.Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, publish.TopicTrade, got.Topic)
	assert.Equal(t, trade.ID, got.ID)
}

func TestGateway_UnsubscribeAndDisconnect(t *testing.T) {
	g := NewGateway(nil)
	srv := httptest.NewServer(g)
	defer srv.Close()

	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: "BAR"}))
	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: "ORDERBOOK"}))
	require.NoError(t, conn.WriteJSON(Request{Action: "subscribe", Topic: "NOPE"}))
	require.Eventually(t, func() bool {
		return g.Subscribers(publish.TopicBar) == 1 && g.Subscribers(publish.TopicOrderBook) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Request{Action: "unsubscribe", Topic: "BAR"}))
	require.Eventually(t, func() bool {
		return g.Subscribers(publish.TopicBar) == 0
	}, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return g.Subscribers(publish.TopicOrderBook) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGateway_DeliverWithoutClients(t *testing.T) {
	g := NewGateway(nil)
	assert.NoError(t, g.Deliver(context.Background(), publish.Message{Topic: publish.TopicSwap}))
}
