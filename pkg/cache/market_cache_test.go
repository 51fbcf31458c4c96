package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

type coverage struct {
	flags   map[string]market.SubFlags
	periods map[string][]market.Period
}

func (c *coverage) Covers(symbol string, flag market.SubFlags) bool {
	return c.flags[symbol].Has(flag)
}

func (c *coverage) Accepts(symbol string, flag market.SubFlags) bool {
	return c.flags[symbol].Has(flag)
}

func (c *coverage) HasPeriod(symbol string, period market.Period) bool {
	for _, p := range c.periods[symbol] {
		if p == period {
			return true
		}
	}
	return false
}

func newTestCache() (*MarketCache, *coverage) {
	cov := &coverage{flags: map[string]market.SubFlags{}, periods: map[string][]market.Period{}}
	return NewMarketCache(cov, 0), cov
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bucket(min int) time.Time {
	return time.Date(2024, 1, 2, 9, 30+min, 0, 0, time.UTC)
}

func TestQuoteRequiresSubscription(t *testing.T) {
	c, cov := newTestCache()

	_, err := c.Quote("700.HK")
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)

	cov.flags["700.HK"] = market.SubQuote
	q, err := c.Quote("700.HK")
	require.NoError(t, err)
	assert.Equal(t, "700.HK", q.Symbol)
	assert.True(t, q.LastDone.IsZero())

	c.ApplyQuote(market.Quote{Symbol: "700.HK", Sequence: 3, LastDone: dec("320.4")})
	q, err = c.Quote("700.HK")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.Sequence)
	assert.True(t, q.LastDone.Equal(dec("320.4")))

	_, err = c.Depth("700.HK")
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)
}

func TestExtendedSessionQuoteKeepsRegularFields(t *testing.T) {
	c, cov := newTestCache()
	cov.flags["AAPL.US"] = market.SubQuote

	c.ApplyQuote(market.Quote{Symbol: "AAPL.US", LastDone: dec("190"), High: dec("191")})
	c.SetSessionPrevClose("AAPL.US", market.SessionPost, market.SessionQuote{PrevClose: dec("188")})
	c.ApplyQuote(market.Quote{Symbol: "AAPL.US", LastDone: dec("190.5"), TradeSession: market.SessionPost, Sequence: 9})

	q, err := c.Quote("AAPL.US")
	require.NoError(t, err)
	assert.True(t, q.LastDone.Equal(dec("190")))
	assert.True(t, q.High.Equal(dec("191")))
	require.NotNil(t, q.PostMarket)
	assert.True(t, q.PostMarket.LastDone.Equal(dec("190.5")))
	assert.True(t, q.PostMarket.PrevClose.Equal(dec("188")))
	assert.Equal(t, int64(9), q.Sequence)

	// a regular-session push must not wipe the extended view
	c.ApplyQuote(market.Quote{Symbol: "AAPL.US", LastDone: dec("189")})
	q, _ = c.Quote("AAPL.US")
	require.NotNil(t, q.PostMarket)
	assert.True(t, q.LastDone.Equal(dec("189")))
}

func TestDepthIsReplacedWhole(t *testing.T) {
	c, cov := newTestCache()
	cov.flags["700.HK"] = market.SubDepth

	c.ApplyDepth(market.Depth{
		Symbol: "700.HK",
		Asks:   []market.DepthLevel{{Position: 1, Price: dec("1")}, {Position: 2, Price: dec("2")}},
		Bids:   []market.DepthLevel{{Position: 1, Price: dec("0.9")}},
	})
	c.ApplyDepth(market.Depth{
		Symbol: "700.HK",
		Asks:   []market.DepthLevel{{Position: 1, Price: dec("1.1")}},
	})

	d, err := c.Depth("700.HK")
	require.NoError(t, err)
	assert.Len(t, d.Asks, 1)
	assert.Empty(t, d.Bids)

	// returned slices are copies
	d.Asks[0].Price = dec("99")
	again, _ := c.Depth("700.HK")
	assert.True(t, again.Asks[0].Price.Equal(dec("1.1")))
}

func TestBrokersCopy(t *testing.T) {
	c, cov := newTestCache()
	cov.flags["700.HK"] = market.SubBrokers
	c.ApplyBrokers(market.Brokers{
		Symbol:     "700.HK",
		AskBrokers: []market.BrokerLevel{{Position: 1, BrokerIDs: []int32{1, 2}}},
	})

	b, err := c.Brokers("700.HK")
	require.NoError(t, err)
	b.AskBrokers[0].BrokerIDs[0] = 42

	again, _ := c.Brokers("700.HK")
	assert.Equal(t, []int32{1, 2}, again.AskBrokers[0].BrokerIDs)
}

func TestTradesRingKeepsNewest(t *testing.T) {
	c, cov := newTestCache()
	cov.flags["700.HK"] = market.SubTrade

	for i := 0; i < 520; i++ {
		c.ApplyTrades(market.Trades{Symbol: "700.HK", Trades: []market.Trade{{Volume: int64(i)}}})
	}

	all, err := c.Trades("700.HK", 0)
	require.NoError(t, err)
	require.Len(t, all, DefaultTradesCap)
	assert.Equal(t, int64(20), all[0].Volume)
	assert.Equal(t, int64(519), all[len(all)-1].Volume)

	last3, err := c.Trades("700.HK", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{517, 518, 519}, []int64{last3[0].Volume, last3[1].Volume, last3[2].Volume})
}

func TestCandlestickConfirmedIsStable(t *testing.T) {
	c, cov := newTestCache()
	cov.periods["700.HK"] = []market.Period{market.Period1Min}

	assert.True(t, c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(0), Close: dec("1")}, false))
	assert.True(t, c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(0), Close: dec("2")}, true))
	assert.False(t, c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(0), Close: dec("3")}, false))
	assert.True(t, c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(1), Close: dec("4")}, false))
	// bars older than anything held are dropped
	assert.False(t, c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(-5), Close: dec("5")}, true))

	bars, err := c.Candlesticks("700.HK", market.Period1Min, 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Close.Equal(dec("2")))
	assert.True(t, bars[1].Close.Equal(dec("4")))

	last, confirmed, ok := c.LastCandlestick("700.HK", market.Period1Min)
	require.True(t, ok)
	assert.False(t, confirmed)
	assert.True(t, last.Close.Equal(dec("4")))

	_, err = c.Candlesticks("700.HK", market.Period5Min, 0)
	assert.ErrorIs(t, err, apierr.ErrNotSubscribed)
}

func TestCandlestickSeriesTrimmed(t *testing.T) {
	c, cov := newTestCache()
	cov.periods["700.HK"] = []market.Period{market.Period1Min}

	for i := 0; i <= maxSeriesLen; i++ {
		c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(i), Volume: int64(i)}, true)
	}
	bars, err := c.Candlesticks("700.HK", market.Period1Min, 0)
	require.NoError(t, err)
	require.Len(t, bars, trimSeriesLen)
	assert.Equal(t, int64(maxSeriesLen), bars[len(bars)-1].Volume)
}

func TestSeedLeavesNewestOpen(t *testing.T) {
	c, cov := newTestCache()
	cov.periods["700.HK"] = []market.Period{market.PeriodDay}

	c.SeedCandlesticks("700.HK", market.PeriodDay, []market.Candlestick{
		{Timestamp: bucket(0), Close: dec("1")},
		{Timestamp: bucket(1), Close: dec("2")},
	})
	assert.False(t, c.ApplyCandlestick("700.HK", market.PeriodDay, market.Candlestick{Timestamp: bucket(0), Close: dec("9")}, false))
	assert.True(t, c.ApplyCandlestick("700.HK", market.PeriodDay, market.Candlestick{Timestamp: bucket(1), Close: dec("3")}, false))

	bars, _ := c.Candlesticks("700.HK", market.PeriodDay, 1)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(dec("3")))
}

func TestEvict(t *testing.T) {
	c, cov := newTestCache()
	cov.flags["700.HK"] = market.SubQuote | market.SubTrade
	cov.periods["700.HK"] = []market.Period{market.Period1Min}

	c.ApplyQuote(market.Quote{Symbol: "700.HK", LastDone: dec("1")})
	c.ApplyTrades(market.Trades{Symbol: "700.HK", Trades: []market.Trade{{Volume: 1}}})
	c.ApplyCandlestick("700.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(0)}, false)

	c.Evict("700.HK", market.SubTrade, []market.Period{market.Period1Min}, false)
	trades, _ := c.Trades("700.HK", 0)
	assert.Empty(t, trades)
	bars, _ := c.Candlesticks("700.HK", market.Period1Min, 0)
	assert.Empty(t, bars)
	q, _ := c.Quote("700.HK")
	assert.True(t, q.LastDone.Equal(dec("1")))

	c.Evict("700.HK", 0, nil, true)
	assert.Zero(t, c.Stats().Symbols)
}

func TestApplyDropsUncoveredPush(t *testing.T) {
	c, cov := newTestCache()

	assert.False(t, c.ApplyQuote(market.Quote{Symbol: "700.HK", LastDone: dec("1")}))
	assert.False(t, c.ApplyDepth(market.Depth{Symbol: "700.HK"}))
	assert.False(t, c.ApplyTrades(market.Trades{Symbol: "700.HK", Trades: []market.Trade{{Volume: 1}}}))
	assert.Zero(t, c.Stats().Symbols)

	cov.flags["700.HK"] = market.SubQuote
	assert.True(t, c.ApplyQuote(market.Quote{Symbol: "700.HK", LastDone: dec("1")}))
	assert.False(t, c.ApplyDepth(market.Depth{Symbol: "700.HK"}))

	// unsubscribe then a late push: the evicted snapshot stays gone
	delete(cov.flags, "700.HK")
	c.Evict("700.HK", market.SubQuote, nil, true)
	assert.False(t, c.ApplyQuote(market.Quote{Symbol: "700.HK", LastDone: dec("2")}))
	assert.Zero(t, c.Stats().Symbols)
}

func TestStats(t *testing.T) {
	c, cov := newTestCache()
	for i := 0; i < 40; i++ {
		sym := fmt.Sprintf("%d.HK", i)
		cov.flags[sym] = market.SubQuote | market.SubTrade
		c.ApplyQuote(market.Quote{Symbol: sym})
	}
	c.ApplyTrades(market.Trades{Symbol: "1.HK", Trades: []market.Trade{{Volume: 1}, {Volume: 2}}})
	cov.periods["1.HK"] = []market.Period{market.Period1Min}
	c.ApplyCandlestick("1.HK", market.Period1Min, market.Candlestick{Timestamp: bucket(0)}, false)

	stats := c.Stats()
	assert.Equal(t, 40, stats.Symbols)
	assert.Equal(t, 40, stats.Quotes)
	assert.Zero(t, stats.Depths)
	assert.Equal(t, 2, stats.Trades)
	assert.Equal(t, 1, stats.CandleSeries)
	assert.GreaterOrEqual(t, stats.Stalest, time.Duration(0))
}
