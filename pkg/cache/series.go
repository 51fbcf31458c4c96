package cache

import (
	"time"

	"market-gateway/pkg/market"
)

const (
	maxSeriesLen  = 1000
	trimSeriesLen = 500
)

type bar struct {
	market.Candlestick
	confirmed bool
}

// series holds bars for one (symbol, period) ordered by bucket time.
type series struct {
	bars []bar
}

func (s *series) find(ts time.Time) int {
	for i := len(s.bars) - 1; i >= 0; i-- {
		switch {
		case s.bars[i].Timestamp.Equal(ts):
			return i
		case s.bars[i].Timestamp.Before(ts):
			return -1
		}
	}
	return -1
}

// apply merges one bar and reports whether the series changed. A confirmed
// bar replaces its bucket; an unconfirmed one cannot overwrite a confirmed
// bucket; a later bucket is appended.
func (s *series) apply(c market.Candlestick, confirmed bool) bool {
	n := len(s.bars)
	if n == 0 || c.Timestamp.After(s.bars[n-1].Timestamp) {
		s.bars = append(s.bars, bar{Candlestick: c, confirmed: confirmed})
		s.trim()
		return true
	}
	i := s.find(c.Timestamp)
	if i < 0 {
		return false
	}
	if s.bars[i].confirmed && !confirmed {
		return false
	}
	s.bars[i] = bar{Candlestick: c, confirmed: confirmed}
	return true
}

func (s *series) trim() {
	if len(s.bars) > maxSeriesLen {
		kept := make([]bar, trimSeriesLen)
		copy(kept, s.bars[len(s.bars)-trimSeriesLen:])
		s.bars = kept
	}
}

// seed replaces the series with history. Every bar but the newest is final;
// the newest bucket may still be trading.
func (s *series) seed(history []market.Candlestick) {
	s.bars = make([]bar, 0, len(history))
	for i, c := range history {
		s.bars = append(s.bars, bar{Candlestick: c, confirmed: i < len(history)-1})
	}
	s.trim()
}

func (s *series) last(count int) []market.Candlestick {
	start := 0
	if count > 0 && count < len(s.bars) {
		start = len(s.bars) - count
	}
	out := make([]market.Candlestick, 0, len(s.bars)-start)
	for _, b := range s.bars[start:] {
		out = append(out, b.Candlestick)
	}
	return out
}

// tradeRing keeps the newest trades up to a fixed capacity.
type tradeRing struct {
	buf   []market.Trade
	start int
	n     int
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{buf: make([]market.Trade, capacity)}
}

func (r *tradeRing) push(t market.Trade) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = t
		r.n++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

func (r *tradeRing) last(count int) []market.Trade {
	if count <= 0 || count > r.n {
		count = r.n
	}
	out := make([]market.Trade, count)
	for i := 0; i < count; i++ {
		out[i] = r.buf[(r.start+r.n-count+i)%len(r.buf)]
	}
	return out
}

func (r *tradeRing) reset() {
	r.start, r.n = 0, 0
}
