package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basis-trader-go/infrastructure/monitor"
	"basis-trader-go/internal/engine"
	"basis-trader-go/order"
)

func TestParseFeedMessage(t *testing.T) {
	ev, err := ParseFeedMessage([]byte(`{
		"type":"book","exchange_id":"bybit","instrument_id":"BTC/USDT","ts":1700000000000,
		"bids":[[100.1,1.2],[100.0,2]],"asks":[[100.2,1.1]],"funding_rate":0.0006}`))
	require.NoError(t, err)
	tick, ok := ev.(engine.BookTick)
	require.True(t, ok)
	assert.Equal(t, "bybit", tick.ExchangeID)
	assert.Equal(t, int64(1700000000000), tick.Book.TimestampMs)
	require.Len(t, tick.Book.Bids, 2)
	assert.Equal(t, 100.1, tick.Book.Bids[0].Price)
	assert.Equal(t, 1.1, tick.Book.Asks[0].Size)
	require.NotNil(t, tick.Book.FundingRate)
	assert.Equal(t, 0.0006, *tick.Book.FundingRate)

	ev, err = ParseFeedMessage([]byte(`{"type":"trade","exchange_id":"bybit","instrument_id":"BTC/USDT","price":101,"qty":0.5,"ts":1700000000000}`))
	require.NoError(t, err)
	fill := ev.(engine.MarketFill)
	assert.Equal(t, 101.0, fill.Price)
	assert.Equal(t, time.UnixMilli(1700000000000), fill.Ts)

	ev, err = ParseFeedMessage([]byte(`{"type":"funding","exchange_id":"bybit","instrument_id":"BTC/USDT","rate":-0.0002}`))
	require.NoError(t, err)
	assert.Equal(t, -0.0002, ev.(engine.FundingUpdate).Rate)

	ev, err = ParseFeedMessage([]byte(`{"type":"position","position":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, engine.PositionUpdate{NewPosition: 1.5}, ev)

	_, err = ParseFeedMessage([]byte(`{"type":"heartbeat"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = ParseFeedMessage([]byte(`{"type":"book","bids":[]}`))
	assert.Error(t, err)
	_, err = ParseFeedMessage([]byte(`not json`))
	assert.Error(t, err)
}

// feedServer 每个连接依次推送 scripts 中的一组消息，然后断开；
// 最后一组推完后保持连接并记录收到的指令。
type feedServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	scripts  [][]string

	mu       sync.Mutex
	conns    int
	commands []orderCommand
}

func (s *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.mu.Lock()
	idx := s.conns
	s.conns++
	s.mu.Unlock()

	script := s.scripts[min(idx, len(s.scripts)-1)]
	for _, msg := range script {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}
	if idx < len(s.scripts)-1 {
		return
	}
	for {
		var cmd orderCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()
	}
}

func (s *feedServer) received() []orderCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orderCommand(nil), s.commands...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, ch <-chan engine.Event) engine.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return nil
	}
}

func TestFeedDeliversEventsAndReconnects(t *testing.T) {
	fs := &feedServer{t: t, scripts: [][]string{
		{
			`{"type":"book","exchange_id":"binance","instrument_id":"BTC/USDT","bids":[[99.9,1]],"asks":[[100.1,1]]}`,
			`{"type":"heartbeat"}`,
		},
		{
			`{"type":"position","position":2}`,
		},
	}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	mon := monitor.New(monitor.DefaultConfig())
	feed := NewFeed(FeedConfig{URL: wsURL(srv), ReconnectMin: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond}, mon, nil)
	require.NoError(t, feed.Start(context.Background()))

	ev := nextEvent(t, feed.Events())
	tick, ok := ev.(engine.BookTick)
	require.True(t, ok, "first event should be book, got %T", ev)
	assert.Equal(t, "binance", tick.ExchangeID)

	// 第一条连接断开后重连，继续收到第二组消息
	ev = nextEvent(t, feed.Events())
	assert.Equal(t, engine.PositionUpdate{NewPosition: 2}, ev)
	assert.Eventually(t, func() bool { return feed.Health() == nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, feed.Stop())
	_, open := <-feed.Events()
	assert.False(t, open, "events channel closed after stop")
	assert.ErrorIs(t, feed.Health(), ErrNotConnected)

	expected := `
# HELP bt_trader_ws_connections_total 行情连接建立次数
# TYPE bt_trader_ws_connections_total counter
bt_trader_ws_connections_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(mon.Registry(), strings.NewReader(expected), "bt_trader_ws_connections_total"))
}

func TestFeedSendsOrderCommands(t *testing.T) {
	fs := &feedServer{t: t, scripts: [][]string{{}}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	feed := NewFeed(FeedConfig{URL: wsURL(srv), OrderRate: 1000, OrderBurst: 1}, nil, nil)
	require.NotNil(t, feed.limiter)
	o := order.Order{ID: "o-1", AccountID: "perp", InstrumentID: "BTC/USDT", Type: order.TypeLimit, Side: order.SideSell, Price: 100.5, Quantity: 0.01, TimeInForce: order.GTC, PostOnly: true}
	assert.ErrorIs(t, feed.Place(context.Background(), o), ErrNotConnected)

	require.NoError(t, feed.Start(context.Background()))
	defer feed.Stop()
	require.Eventually(t, func() bool { return feed.Health() == nil }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, feed.Place(context.Background(), o))
	require.NoError(t, feed.Cancel(context.Background(), o))
	require.Eventually(t, func() bool { return len(fs.received()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cmds := fs.received()
	assert.Equal(t, "place", cmds[0].Type)
	assert.Equal(t, "o-1", cmds[0].OrderID)
	assert.Equal(t, "Sell", cmds[0].Side)
	assert.True(t, cmds[0].PostOnly)
	assert.Equal(t, "cancel", cmds[1].Type)
}

func TestFeedFillHandler(t *testing.T) {
	fs := &feedServer{t: t, scripts: [][]string{{
		`{"type":"fill","order_id":"o-9","qty":0.2,"price":101}`,
		`{"type":"funding","exchange_id":"bybit","instrument_id":"BTC/USDT","rate":0.0001}`,
	}}}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	type fill struct {
		id         string
		qty, price float64
	}
	fills := make(chan fill, 1)
	feed := NewFeed(FeedConfig{URL: wsURL(srv)}, nil, nil)
	feed.SetFillHandler(func(id string, qty, price float64) { fills <- fill{id, qty, price} })
	require.NoError(t, feed.Start(context.Background()))
	defer feed.Stop()

	select {
	case f := <-fills:
		assert.Equal(t, fill{"o-9", 0.2, 101}, f)
	case <-time.After(3 * time.Second):
		t.Fatal("fill not delivered")
	}
	_, ok := nextEvent(t, feed.Events()).(engine.FundingUpdate)
	assert.True(t, ok, "fill is not forwarded as an engine event")
}

func TestFeedStartRequiresURL(t *testing.T) {
	feed := NewFeed(FeedConfig{}, nil, nil)
	assert.Error(t, feed.Start(context.Background()))
	assert.NoError(t, feed.Stop())
}
