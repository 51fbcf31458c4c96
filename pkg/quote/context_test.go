package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/internal/events"
	"market-gateway/internal/wstest"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/httpclient"
	"market-gateway/pkg/i18n"
	"market-gateway/pkg/market"
	"market-gateway/pkg/protocol"
	"market-gateway/pkg/wire"
)

func otp(context.Context) (string, error) { return "one-time", nil }

func ack(_ *wstest.Conn, req *wire.Packet) *wire.Packet { return wstest.Reply(req, nil) }

func newServer(t *testing.T) *wstest.Server {
	t.Helper()
	srv := wstest.NewServer()
	srv.Handle(protocol.CmdSubscribe, ack)
	srv.Handle(protocol.CmdUnsubscribe, ack)
	srv.Handle(protocol.CmdQuerySecurityQuote, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		return wstest.Reply(req, &protocol.SecurityQuoteResponse{})
	})
	t.Cleanup(srv.Close)
	return srv
}

func newTestContext(t *testing.T, srv *wstest.Server, opts ...func(*Config)) *QuoteContext {
	t.Helper()
	cfg := Config{
		URL:               srv.URL(),
		TokenSource:       otp,
		Language:          i18n.LangEN,
		RequestTimeout:    time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  time.Second,
		BackoffBase:       10 * time.Millisecond,
		BackoffMax:        20 * time.Millisecond,
	}
	for _, o := range opts {
		o(&cfg)
	}
	qc, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = qc.Close() })
	return qc
}

func subTypesOf(t *testing.T, p *wire.Packet) ([]string, []int32) {
	t.Helper()
	var req protocol.SubscribeRequest
	require.NoError(t, protocol.Unmarshal(p.Body, &req))
	return req.Symbol, req.SubType
}

func TestRealtimeQuoteVisibleAfterPush(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	ctx := context.Background()

	_, err := qc.RealtimeQuote([]string{"AAPL.US"})
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)

	require.NoError(t, qc.Subscribe(ctx, []string{"AAPL.US"}, market.SubQuote, true))
	quotes, err := qc.RealtimeQuote([]string{"AAPL.US"})
	require.NoError(t, err)
	assert.True(t, quotes[0].LastDone.IsZero())

	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{
		Symbol: "AAPL.US", Sequence: 1, LastDone: "190.5", Volume: 1000, Timestamp: time.Now().Unix(),
	}))
	require.Eventually(t, func() bool {
		q, err := qc.RealtimeQuote([]string{"AAPL.US"})
		return err == nil && q[0].LastDone.Equal(decimal.RequireFromString("190.5"))
	}, 2*time.Second, 10*time.Millisecond)

	// still not subscribed for depth
	_, err = qc.RealtimeDepth("AAPL.US")
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)

	subs := srv.Received(protocol.CmdSubscribe)
	require.Len(t, subs, 1)
	symbols, types := subTypesOf(t, subs[0])
	assert.Equal(t, []string{"AAPL.US"}, symbols)
	assert.Equal(t, []int32{protocol.SubTypeQuote}, types)
}

// firstPushServer answers subscribe and pushes the current state on the
// same connection, either right after the ack or right before it.
func firstPushServer(t *testing.T, pushFirst bool, push func(c *wstest.Conn) error) *wstest.Server {
	t.Helper()
	srv := newServer(t)
	srv.Handle(protocol.CmdSubscribe, func(c *wstest.Conn, req *wire.Packet) *wire.Packet {
		if pushFirst {
			assert.NoError(t, push(c))
			return wstest.Reply(req, nil)
		}
		assert.NoError(t, c.Send(wstest.Reply(req, nil)))
		assert.NoError(t, push(c))
		return nil
	})
	return srv
}

func TestFirstPushIsCached(t *testing.T) {
	for _, tc := range []struct {
		name      string
		pushFirst bool
	}{
		{"push after ack", false},
		{"push before ack", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Run("quote", func(t *testing.T) {
				srv := firstPushServer(t, tc.pushFirst, func(c *wstest.Conn) error {
					return c.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "AAPL.US", Sequence: 1, LastDone: "190.5"})
				})
				qc := newTestContext(t, srv)
				require.NoError(t, qc.Subscribe(context.Background(), []string{"AAPL.US"}, market.SubQuote, true))
				require.Eventually(t, func() bool {
					q, err := qc.RealtimeQuote([]string{"AAPL.US"})
					return err == nil && q[0].LastDone.Equal(decimal.RequireFromString("190.5"))
				}, 2*time.Second, 10*time.Millisecond)
			})
			t.Run("depth", func(t *testing.T) {
				srv := firstPushServer(t, tc.pushFirst, func(c *wstest.Conn) error {
					return c.Push(protocol.CmdPushDepth, &protocol.PushDepth{
						Symbol: "700.HK", Sequence: 1,
						Ask: []protocol.Depth{{Position: 1, Price: "320.2", Volume: 400, OrderNum: 2}},
					})
				})
				qc := newTestContext(t, srv)
				require.NoError(t, qc.Subscribe(context.Background(), []string{"700.HK"}, market.SubDepth, true))
				require.Eventually(t, func() bool {
					d, err := qc.RealtimeDepth("700.HK")
					return err == nil && len(d.Asks) == 1 && d.Asks[0].Volume == 400
				}, 2*time.Second, 10*time.Millisecond)
			})
			t.Run("trades", func(t *testing.T) {
				srv := firstPushServer(t, tc.pushFirst, func(c *wstest.Conn) error {
					return c.Push(protocol.CmdPushTrade, &protocol.PushTrade{
						Symbol: "700.HK", Sequence: 1,
						Trade: []protocol.Trade{{Price: "320.2", Volume: 300, Timestamp: time.Now().Unix()}},
					})
				})
				qc := newTestContext(t, srv)
				require.NoError(t, qc.Subscribe(context.Background(), []string{"700.HK"}, market.SubTrade, true))
				require.Eventually(t, func() bool {
					tr, err := qc.RealtimeTrades("700.HK", 0)
					return err == nil && len(tr) == 1 && tr[0].Volume == 300
				}, 2*time.Second, 10*time.Millisecond)
			})
		})
	}
}

func TestRejectedSubscribeDropsItsPushes(t *testing.T) {
	srv := newServer(t)
	srv.Handle(protocol.CmdSubscribe, func(c *wstest.Conn, req *wire.Packet) *wire.Packet {
		assert.NoError(t, c.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "BAD.US", Sequence: 1, LastDone: "1"}))
		return wstest.Fail(req, 301600, "invalid symbol")
	})
	qc := newTestContext(t, srv)

	err := qc.Subscribe(context.Background(), []string{"BAD.US"}, market.SubQuote, true)
	require.Error(t, err)
	_, err = qc.RealtimeQuote([]string{"BAD.US"})
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)
	assert.Zero(t, qc.Stats().Cache.Symbols)
}

func TestCallbacksReceivePushesInOrder(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)

	var mu sync.Mutex
	var seqs []int64
	qc.SetOnQuote(func(q Quote) {
		mu.Lock()
		seqs = append(seqs, q.Sequence)
		mu.Unlock()
	})
	depths := make(chan Depth, 1)
	qc.SetOnDepth(func(d Depth) { depths <- d })

	require.NoError(t, qc.Subscribe(context.Background(), []string{"700.HK"}, market.SubQuote|market.SubDepth, false))
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "700.HK", Sequence: i, LastDone: "320"}))
	}
	require.NoError(t, srv.Push(protocol.CmdPushDepth, &protocol.PushDepth{
		Symbol: "700.HK",
		Ask:    []protocol.Depth{{Position: 1, Price: "320.2", Volume: 100, OrderNum: 3}},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) == 20
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	for i, s := range seqs {
		assert.Equal(t, int64(i+1), s)
	}
	mu.Unlock()

	select {
	case d := <-depths:
		require.Len(t, d.Asks, 1)
		assert.Equal(t, int64(3), d.Asks[0].OrderNum)
	case <-time.After(2 * time.Second):
		t.Fatal("no depth callback")
	}
}

func TestPushForUnsubscribedSymbolIgnored(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	got := make(chan Quote, 1)
	qc.SetOnQuote(func(q Quote) { got <- q })

	require.NoError(t, qc.Subscribe(context.Background(), []string{"700.HK"}, market.SubTrade, false))
	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "700.HK", LastDone: "1"}))

	select {
	case <-got:
		t.Fatal("quote delivered without a quote subscription")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, qc.cache.Stats().Symbols)
}

func TestOvernightQuotesNeedOptIn(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	require.NoError(t, qc.Subscribe(context.Background(), []string{"AAPL.US"}, market.SubQuote, false))

	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{
		Symbol: "AAPL.US", LastDone: "188", TradeSession: int32(market.SessionOvernight),
	}))
	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{
		Symbol: "AAPL.US", Sequence: 2, LastDone: "189", TradeSession: int32(market.SessionPost),
	}))
	require.Eventually(t, func() bool {
		q, _ := qc.RealtimeQuote([]string{"AAPL.US"})
		return len(q) == 1 && q[0].PostMarket != nil
	}, 2*time.Second, 10*time.Millisecond)
	q, _ := qc.RealtimeQuote([]string{"AAPL.US"})
	assert.Nil(t, q[0].Overnight)
	assert.True(t, q[0].PostMarket.LastDone.Equal(decimal.RequireFromString("189")))
}

func TestUnsubscribeEvictsSnapshot(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	ctx := context.Background()

	require.NoError(t, qc.Subscribe(ctx, []string{"700.HK"}, market.SubQuote|market.SubTrade, false))
	require.NoError(t, srv.Push(protocol.CmdPushTrade, &protocol.PushTrade{
		Symbol: "700.HK", Trade: []protocol.Trade{{Price: "320", Volume: 100, Timestamp: time.Now().Unix()}},
	}))
	require.Eventually(t, func() bool {
		tr, err := qc.RealtimeTrades("700.HK", 0)
		return err == nil && len(tr) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, qc.Unsubscribe(ctx, []string{"700.HK"}, market.SubTrade))
	_, err := qc.RealtimeTrades("700.HK", 0)
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)
	_, err = qc.RealtimeQuote([]string{"700.HK"})
	assert.NoError(t, err)

	require.NoError(t, qc.Unsubscribe(ctx, []string{"700.HK"}, market.SubQuote))
	assert.Empty(t, qc.Subscriptions())
	assert.Zero(t, qc.cache.Stats().Symbols)
}

func TestSubscribeCandlesticksSeedsAndMerges(t *testing.T) {
	srv := newServer(t)
	base := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC) // 10:00 in Hong Kong
	srv.Handle(protocol.CmdQueryCandlestick, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		var r protocol.SecurityCandlestickRequest
		_ = protocol.Unmarshal(req.Body, &r)
		if r.Count != seedCandlesticks || r.Period != int32(market.Period1Min) {
			return wstest.Fail(req, 400, "unexpected request")
		}
		return wstest.Reply(req, &protocol.SecurityCandlestickResponse{Symbol: r.Symbol, Candlesticks: []protocol.Candlestick{
			{Open: "10", High: "10", Low: "10", Close: "10", Volume: 5, Timestamp: base.Unix()},
			{Open: "10", High: "11", Low: "10", Close: "11", Volume: 7, Timestamp: base.Add(time.Minute).Unix()},
		}})
	})
	qc := newTestContext(t, srv)
	bars := make(chan CandlestickEvent, 8)
	qc.SetOnCandlestick(func(e CandlestickEvent) { bars <- e })

	history, err := qc.SubscribeCandlesticks(context.Background(), "700.HK", market.Period1Min)
	require.NoError(t, err)
	require.Len(t, history, 2)

	subs := srv.Received(protocol.CmdSubscribe)
	require.Len(t, subs, 1)
	_, types := subTypesOf(t, subs[0])
	assert.Equal(t, []int32{protocol.SubTypeTrade}, types)

	// ticks alone do not make the trades realtime view available
	_, err = qc.RealtimeTrades("700.HK", 0)
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)

	require.NoError(t, srv.Push(protocol.CmdPushTrade, &protocol.PushTrade{
		Symbol: "700.HK",
		Trade:  []protocol.Trade{{Price: "12", Volume: 3, Timestamp: base.Add(2*time.Minute + 5*time.Second).Unix()}},
	}))

	var confirmed, open bool
	timeout := time.After(2 * time.Second)
	for !(confirmed && open) {
		select {
		case e := <-bars:
			assert.Equal(t, market.Period1Min, e.Period)
			if e.Confirmed {
				confirmed = true
				assert.True(t, e.Candlestick.Close.Equal(decimal.RequireFromString("11")))
			} else {
				open = true
				assert.True(t, e.Candlestick.Close.Equal(decimal.RequireFromString("12")))
			}
		case <-timeout:
			t.Fatalf("candlestick events missing: confirmed=%v open=%v", confirmed, open)
		}
	}

	cached, err := qc.RealtimeCandlesticks("700.HK", market.Period1Min, 0)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	// a second subscribe does not query again
	again, err := qc.SubscribeCandlesticks(context.Background(), "700.HK", market.Period1Min)
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Len(t, srv.Received(protocol.CmdQueryCandlestick), 1)
}

func TestReplayAfterReconnect(t *testing.T) {
	srv := newServer(t)
	bus := events.NewBus()
	states, unsub := bus.Subscribe(events.EventConnectionState, 32)
	defer unsub()
	qc := newTestContext(t, srv, func(c *Config) { c.Bus = bus })
	ctx := context.Background()

	require.NoError(t, qc.Subscribe(ctx, []string{"700.HK", "9988.HK"}, market.SubQuote, false))
	require.NoError(t, qc.Subscribe(ctx, []string{"AAPL.US"}, market.SubQuote|market.SubDepth, false))
	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "700.HK", LastDone: "320"}))
	require.Eventually(t, func() bool {
		q, _ := qc.RealtimeQuote([]string{"700.HK"})
		return len(q) == 1 && !q[0].LastDone.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	srv.DropConnections()
	require.Eventually(t, func() bool {
		return len(srv.Received(protocol.CmdSubscribe)) == 4
	}, 3*time.Second, 10*time.Millisecond)

	replayed := srv.Received(protocol.CmdSubscribe)[2:]
	groups := map[string][]int32{}
	for _, p := range replayed {
		var req protocol.SubscribeRequest
		require.NoError(t, protocol.Unmarshal(p.Body, &req))
		assert.False(t, req.IsFirstPush)
		for _, s := range req.Symbol {
			groups[s] = req.SubType
		}
	}
	assert.Equal(t, []int32{1}, groups["700.HK"])
	assert.Equal(t, []int32{1}, groups["9988.HK"])
	assert.Equal(t, []int32{1, 2}, groups["AAPL.US"])

	q, err := qc.RealtimeQuote([]string{"700.HK"})
	require.NoError(t, err)
	assert.True(t, q[0].LastDone.Equal(decimal.RequireFromString("320")))

	seen := map[string]bool{}
	for len(states) > 0 {
		seen[(<-states).(events.StateChange).State] = true
	}
	assert.True(t, seen["reconnecting"])
	assert.True(t, seen["ready"])
}

func TestQueryValidationNeverReachesNetwork(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"trades count zero", func() error { _, err := qc.Trades(ctx, "700.HK", 0); return err }},
		{"trades count too big", func() error { _, err := qc.Trades(ctx, "700.HK", 1001); return err }},
		{"bad symbol", func() error { _, err := qc.Depth(ctx, "700"); return err }},
		{"bad period", func() error { _, err := qc.Candlesticks(ctx, "700.HK", 7, 10, market.NoAdjust); return err }},
		{"empty symbols", func() error { _, err := qc.Quote(ctx, nil); return err }},
		{"trading days range", func() error {
			_, err := qc.TradingDays(ctx, market.MarketHK, time.Now(), time.Now().AddDate(0, 2, 0))
			return err
		}},
		{"no calc indexes", func() error { _, err := qc.CalcIndexes(ctx, []string{"700.HK"}, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), apierr.ErrValidation)
		})
	}
	assert.Empty(t, srv.Received(protocol.CmdQueryTrade))
	assert.Empty(t, srv.Received(protocol.CmdQueryDepth))
	assert.Empty(t, srv.Received(protocol.CmdQueryCandlestick))
}

func TestStaticInfoPicksLanguage(t *testing.T) {
	srv := newServer(t)
	srv.Handle(protocol.CmdQuerySecurityStaticInfo, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		return wstest.Reply(req, &protocol.SecurityStaticInfoResponse{SecuStaticInfo: []protocol.StaticInfo{{
			Symbol: "700.HK", NameCN: "腾讯控股", NameEN: "TENCENT", NameHK: "騰訊控股", LotSize: 100, EPS: "1.5",
		}}})
	})
	qc := newTestContext(t, srv, func(c *Config) { c.Language = i18n.LangZHHK })

	info, err := qc.StaticInfo(context.Background(), []string{"700.HK"})
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, "騰訊控股", info[0].Name)
	assert.Equal(t, int32(100), info[0].LotSize)
	assert.True(t, info[0].EPS.Equal(decimal.RequireFromString("1.5")))
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := newServer(t)
	srv.Handle(protocol.CmdQueryTrade, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		return wstest.Fail(req, 301600, "invalid symbol")
	})
	qc := newTestContext(t, srv)

	_, err := qc.Trades(context.Background(), "ZZZ.US", 10)
	var se *apierr.ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, int64(301600), se.Code)
}

func TestClosedContextFails(t *testing.T) {
	srv := newServer(t)
	qc := newTestContext(t, srv)
	require.NoError(t, qc.Close())
	require.NoError(t, qc.Close())

	_, err := qc.Trades(context.Background(), "700.HK", 1)
	assert.ErrorIs(t, err, apierr.ErrConnectionClosed)
}

func TestWatchlist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/watchlist/groups", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"code":0,"message":"","data":{"groups":[{"id":"10","name":"tech","securities":[
				{"symbol":"700.HK","market":"HK","name":"Tencent","watched_price":"320.5","watched_at":"1700000000"},
				{"symbol":"AAPL.US","market":"US","name":"Apple","watched_price":"","watched_at":"0"}]}]}}`))
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"code":0,"data":{"id":"11"}}`))
		case http.MethodDelete:
			assert.Equal(t, "11", r.URL.Query().Get("id"))
			assert.Equal(t, "true", r.URL.Query().Get("purge"))
			_, _ = w.Write([]byte(`{"code":0}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	hs := httptest.NewServer(mux)
	defer hs.Close()

	srv := newServer(t)
	hc := httpclient.New(httpclient.Config{BaseURL: hs.URL, AppKey: "k", AppSecret: "s", AccessToken: "t"}, nil)
	qc := newTestContext(t, srv, func(c *Config) { c.HTTP = hc })
	ctx := context.Background()

	groups, err := qc.Watchlist(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(10), groups[0].ID)
	require.Len(t, groups[0].Securities, 2)
	require.NotNil(t, groups[0].Securities[0].WatchedPrice)
	assert.Equal(t, "320.5", groups[0].Securities[0].WatchedPrice.String())
	assert.Equal(t, int64(1700000000), groups[0].Securities[0].WatchedAt.Unix())
	assert.Nil(t, groups[0].Securities[1].WatchedPrice)

	id, err := qc.CreateWatchlistGroup(ctx, "new", []string{"700.HK"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	require.NoError(t, qc.DeleteWatchlistGroup(ctx, id, true))

	_, err = qc.CreateWatchlistGroup(ctx, "", nil)
	assert.ErrorIs(t, err, apierr.ErrValidation)
	err = qc.UpdateWatchlistGroup(ctx, UpdateWatchlistGroup{ID: 11, Securities: []string{"700.HK"}, Mode: "merge"})
	assert.ErrorIs(t, err, apierr.ErrValidation)
}
