// Package cache keeps the latest realtime market state per subscribed
// symbol for snapshot queries.
package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

const (
	numShards        = 16
	DefaultTradesCap = 500
)

// Coverage answers whether a topic is subscribed. The subscription
// registry implements it. Accepts also admits a subscribe still on the wire
// and gates writes; Covers gates reads.
type Coverage interface {
	Covers(symbol string, flag market.SubFlags) bool
	Accepts(symbol string, flag market.SubFlags) bool
	HasPeriod(symbol string, period market.Period) bool
}

type snapshot struct {
	quote     *market.Quote
	depth     *market.Depth
	brokers   *market.Brokers
	trades    *tradeRing
	candles   map[market.Period]*series
	updatedAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*snapshot
}

// MarketCache is sharded by symbol. Writers are the push pipeline; readers
// get copies.
type MarketCache struct {
	shards    [numShards]*shard
	cov       Coverage
	tradesCap int
}

func NewMarketCache(cov Coverage, tradesCap int) *MarketCache {
	if tradesCap <= 0 {
		tradesCap = DefaultTradesCap
	}
	c := &MarketCache{cov: cov, tradesCap: tradesCap}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard{items: make(map[string]*snapshot)}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *MarketCache) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// update runs fn on the symbol's snapshot under the shard lock, creating it
// when missing.
func (c *MarketCache) update(symbol string, fn func(*snapshot)) {
	c.store(symbol, 0, fn)
}

// store is update gated on flag coverage (0 skips the check). The check
// runs under the shard lock, so it is ordered against Evict and never
// recreates an evicted snapshot.
func (c *MarketCache) store(symbol string, flag market.SubFlags, fn func(*snapshot)) bool {
	sh := c.getShard(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if flag != 0 && c.cov != nil && !c.cov.Accepts(symbol, flag) {
		return false
	}
	s, ok := sh.items[symbol]
	if !ok {
		s = &snapshot{trades: newTradeRing(c.tradesCap), candles: make(map[market.Period]*series)}
		sh.items[symbol] = s
	}
	fn(s)
	s.updatedAt = time.Now()
	return true
}

func (c *MarketCache) read(symbol string, fn func(*snapshot)) {
	sh := c.getShard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if s, ok := sh.items[symbol]; ok {
		fn(s)
	}
}

// ApplyQuote stores a quote push and reports whether it was kept.
// Extended-session pushes update only the matching session view.
func (c *MarketCache) ApplyQuote(q market.Quote) bool {
	return c.store(q.Symbol, market.SubQuote, func(s *snapshot) {
		if s.quote == nil {
			s.quote = &market.Quote{Symbol: q.Symbol}
		}
		cur := s.quote
		cur.Sequence = q.Sequence
		cur.TradeStatus = q.TradeStatus
		switch q.TradeSession {
		case market.SessionPre:
			cur.PreMarket = sessionView(cur.PreMarket, q)
		case market.SessionPost:
			cur.PostMarket = sessionView(cur.PostMarket, q)
		case market.SessionOvernight:
			cur.Overnight = sessionView(cur.Overnight, q)
		default:
			pre, post, night := cur.PreMarket, cur.PostMarket, cur.Overnight
			*cur = q
			cur.PreMarket, cur.PostMarket, cur.Overnight = pre, post, night
		}
	})
}

func sessionView(prev *market.SessionQuote, q market.Quote) *market.SessionQuote {
	v := &market.SessionQuote{
		LastDone:  q.LastDone,
		Timestamp: q.Timestamp,
		Volume:    q.Volume,
		Turnover:  q.Turnover,
		High:      q.High,
		Low:       q.Low,
	}
	if prev != nil {
		v.PrevClose = prev.PrevClose
	}
	return v
}

// SetSessionPrevClose records the previous close for an extended session,
// which pushes do not carry. An existing session view keeps its pushed
// fields.
func (c *MarketCache) SetSessionPrevClose(symbol string, session market.TradeSession, prevClose market.SessionQuote) {
	c.store(symbol, market.SubQuote, func(s *snapshot) {
		if s.quote == nil {
			s.quote = &market.Quote{Symbol: symbol}
		}
		var view **market.SessionQuote
		switch session {
		case market.SessionPre:
			view = &s.quote.PreMarket
		case market.SessionPost:
			view = &s.quote.PostMarket
		case market.SessionOvernight:
			view = &s.quote.Overnight
		default:
			return
		}
		if *view != nil {
			(*view).PrevClose = prevClose.PrevClose
			return
		}
		p := prevClose
		*view = &p
	})
}

// ApplyDepth replaces the order book.
func (c *MarketCache) ApplyDepth(d market.Depth) bool {
	return c.store(d.Symbol, market.SubDepth, func(s *snapshot) {
		cp := copyDepth(d)
		s.depth = &cp
	})
}

// ApplyBrokers replaces the broker queue.
func (c *MarketCache) ApplyBrokers(b market.Brokers) bool {
	return c.store(b.Symbol, market.SubBrokers, func(s *snapshot) {
		cp := copyBrokers(b)
		s.brokers = &cp
	})
}

// ApplyTrades appends ticks to the ring.
func (c *MarketCache) ApplyTrades(t market.Trades) bool {
	return c.store(t.Symbol, market.SubTrade, func(s *snapshot) {
		for _, tr := range t.Trades {
			s.trades.push(tr)
		}
	})
}

// ApplyCandlestick merges a realtime bar and reports whether the stored
// series changed.
func (c *MarketCache) ApplyCandlestick(symbol string, period market.Period, bar market.Candlestick, confirmed bool) bool {
	changed := false
	c.update(symbol, func(s *snapshot) {
		ser, ok := s.candles[period]
		if !ok {
			ser = &series{}
			s.candles[period] = ser
		}
		changed = ser.apply(bar, confirmed)
	})
	return changed
}

// SeedCandlesticks replaces a period's series with history bars.
func (c *MarketCache) SeedCandlesticks(symbol string, period market.Period, history []market.Candlestick) {
	c.update(symbol, func(s *snapshot) {
		ser := &series{}
		ser.seed(history)
		s.candles[period] = ser
	})
}

// LastCandlestick returns the newest stored bar for a period.
func (c *MarketCache) LastCandlestick(symbol string, period market.Period) (market.Candlestick, bool, bool) {
	var (
		out       market.Candlestick
		confirmed bool
		ok        bool
	)
	c.read(symbol, func(s *snapshot) {
		if ser, has := s.candles[period]; has && len(ser.bars) > 0 {
			b := ser.bars[len(ser.bars)-1]
			out, confirmed, ok = b.Candlestick, b.confirmed, true
		}
	})
	return out, confirmed, ok
}

func (c *MarketCache) require(symbol string, flag market.SubFlags) error {
	if c.cov != nil && !c.cov.Covers(symbol, flag) {
		return apierr.ErrNotSubscribed
	}
	return nil
}

// Quote returns the latest quote. A subscribed symbol with no push yet
// yields a zero quote.
func (c *MarketCache) Quote(symbol string) (market.Quote, error) {
	if err := c.require(symbol, market.SubQuote); err != nil {
		return market.Quote{}, err
	}
	out := market.Quote{Symbol: symbol}
	c.read(symbol, func(s *snapshot) {
		if s.quote != nil {
			out = copyQuote(*s.quote)
		}
	})
	return out, nil
}

func (c *MarketCache) Depth(symbol string) (market.Depth, error) {
	if err := c.require(symbol, market.SubDepth); err != nil {
		return market.Depth{}, err
	}
	out := market.Depth{Symbol: symbol}
	c.read(symbol, func(s *snapshot) {
		if s.depth != nil {
			out = copyDepth(*s.depth)
		}
	})
	return out, nil
}

func (c *MarketCache) Brokers(symbol string) (market.Brokers, error) {
	if err := c.require(symbol, market.SubBrokers); err != nil {
		return market.Brokers{}, err
	}
	out := market.Brokers{Symbol: symbol}
	c.read(symbol, func(s *snapshot) {
		if s.brokers != nil {
			out = copyBrokers(*s.brokers)
		}
	})
	return out, nil
}

// Trades returns up to count of the newest ticks, oldest first. count <= 0
// returns everything held.
func (c *MarketCache) Trades(symbol string, count int) ([]market.Trade, error) {
	if err := c.require(symbol, market.SubTrade); err != nil {
		return nil, err
	}
	out := []market.Trade{}
	c.read(symbol, func(s *snapshot) {
		out = s.trades.last(count)
	})
	return out, nil
}

// Candlesticks returns up to count of the newest bars, oldest first.
func (c *MarketCache) Candlesticks(symbol string, period market.Period, count int) ([]market.Candlestick, error) {
	if c.cov != nil && !c.cov.HasPeriod(symbol, period) {
		return nil, apierr.ErrNotSubscribed
	}
	out := []market.Candlestick{}
	c.read(symbol, func(s *snapshot) {
		if ser, ok := s.candles[period]; ok {
			out = ser.last(count)
		}
	})
	return out, nil
}

// Evict drops the parts of a snapshot that are no longer subscribed; all
// removes the symbol entirely.
func (c *MarketCache) Evict(symbol string, flags market.SubFlags, periods []market.Period, all bool) {
	sh := c.getShard(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if all {
		delete(sh.items, symbol)
		return
	}
	s, ok := sh.items[symbol]
	if !ok {
		return
	}
	if flags.Has(market.SubQuote) {
		s.quote = nil
	}
	if flags.Has(market.SubDepth) {
		s.depth = nil
	}
	if flags.Has(market.SubBrokers) {
		s.brokers = nil
	}
	if flags.Has(market.SubTrade) {
		s.trades.reset()
	}
	for _, p := range periods {
		delete(s.candles, p)
	}
}

// CacheStats counts the cached symbols and the views they hold.
type CacheStats struct {
	Symbols      int           `json:"symbols"`
	Quotes       int           `json:"quotes"`
	Depths       int           `json:"depths"`
	Brokers      int           `json:"brokers"`
	Trades       int           `json:"trades"`
	CandleSeries int           `json:"candle_series"`
	Stalest      time.Duration `json:"stalest"`
}

// Stats walks every shard. Stalest is the age of the least recently
// updated symbol.
func (c *MarketCache) Stats() CacheStats {
	var st CacheStats
	var oldest time.Time
	for _, sh := range c.shards {
		sh.mu.RLock()
		st.Symbols += len(sh.items)
		for _, s := range sh.items {
			if s.quote != nil {
				st.Quotes++
			}
			if s.depth != nil {
				st.Depths++
			}
			if s.brokers != nil {
				st.Brokers++
			}
			st.Trades += s.trades.n
			st.CandleSeries += len(s.candles)
			if oldest.IsZero() || s.updatedAt.Before(oldest) {
				oldest = s.updatedAt
			}
		}
		sh.mu.RUnlock()
	}
	if !oldest.IsZero() {
		st.Stalest = time.Since(oldest)
	}
	return st
}

func copyQuote(q market.Quote) market.Quote {
	if q.PreMarket != nil {
		v := *q.PreMarket
		q.PreMarket = &v
	}
	if q.PostMarket != nil {
		v := *q.PostMarket
		q.PostMarket = &v
	}
	if q.Overnight != nil {
		v := *q.Overnight
		q.Overnight = &v
	}
	return q
}

func copyDepth(d market.Depth) market.Depth {
	d.Asks = append([]market.DepthLevel(nil), d.Asks...)
	d.Bids = append([]market.DepthLevel(nil), d.Bids...)
	return d
}

func copyBrokers(b market.Brokers) market.Brokers {
	b.AskBrokers = copyBrokerLevels(b.AskBrokers)
	b.BidBrokers = copyBrokerLevels(b.BidBrokers)
	return b
}

func copyBrokerLevels(in []market.BrokerLevel) []market.BrokerLevel {
	if in == nil {
		return nil
	}
	out := make([]market.BrokerLevel, len(in))
	for i, l := range in {
		out[i] = market.BrokerLevel{Position: l.Position, BrokerIDs: append([]int32(nil), l.BrokerIDs...)}
	}
	return out
}
