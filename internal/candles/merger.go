// Package candles aggregates realtime bars from trade and quote pushes.
//
// Intraday periods are built from regular-session ticks. Day and longer
// periods follow the cumulative session figures carried by quote pushes.
// Buckets are aligned in the market timezone. A bar is confirmed when a
// push for a later bucket arrives.
package candles

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-gateway/internal/calendar"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
)

// Mode selects which bar updates reach the callback.
type Mode int

const (
	// ModeRealtime emits every update, confirmed or not.
	ModeRealtime Mode = iota
	// ModeConfirmed emits only closed bars.
	ModeConfirmed
)

// ParseMode accepts "realtime" and "confirmed".
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime":
		return ModeRealtime, true
	case "confirmed":
		return ModeConfirmed, true
	default:
		return ModeRealtime, false
	}
}

func (m Mode) String() string {
	if m == ModeConfirmed {
		return "confirmed"
	}
	return "realtime"
}

// Store holds the series the merger writes into. The market cache
// implements it.
type Store interface {
	LastCandlestick(symbol string, period market.Period) (market.Candlestick, bool, bool)
	ApplyCandlestick(symbol string, period market.Period, bar market.Candlestick, confirmed bool) bool
}

// dayTotals remembers the cumulative session figures of the last quote so
// week and longer bars can accumulate deltas.
type dayTotals struct {
	day      time.Time
	volume   int64
	turnover decimal.Decimal
}

// Merger turns pushes into candlestick events. It is safe for concurrent
// use, but pushes for one symbol must arrive in order.
type Merger struct {
	store    Store
	mode     Mode
	location func(symbol string) *time.Location
	log      *zap.Logger

	mu     sync.Mutex
	totals map[string]dayTotals
}

func NewMerger(store Store, mode Mode, log *zap.Logger) *Merger {
	return &Merger{
		store: store,
		mode:  mode,
		location: func(symbol string) *time.Location {
			return calendar.ForSymbol(symbol).Location()
		},
		log:    logger.OrNop(log).Named("candles"),
		totals: make(map[string]dayTotals),
	}
}

// SetLocation overrides the timezone lookup.
func (m *Merger) SetLocation(fn func(symbol string) *time.Location) {
	m.location = fn
}

func (m *Merger) Mode() Mode { return m.mode }

// MergeTrades folds regular-session ticks into the intraday periods.
func (m *Merger) MergeTrades(t market.Trades, periods []market.Period) []market.CandlestickEvent {
	var events []market.CandlestickEvent
	loc := m.location(t.Symbol)
	for _, p := range periods {
		if !p.IsMinute() {
			continue
		}
		for _, tr := range t.Trades {
			if tr.TradeSession != market.SessionNormal {
				continue
			}
			events = m.mergeTick(events, t.Symbol, p, loc, tr)
		}
	}
	return events
}

func (m *Merger) mergeTick(events []market.CandlestickEvent, symbol string, p market.Period, loc *time.Location, tr market.Trade) []market.CandlestickEvent {
	bucket := p.BucketStart(tr.Timestamp, loc)
	amount := tr.Price.Mul(decimal.NewFromInt(tr.Volume))
	last, confirmed, ok := m.store.LastCandlestick(symbol, p)

	switch {
	case !ok || bucket.After(last.Timestamp):
		bar := market.Candlestick{
			Open:      tr.Price,
			High:      tr.Price,
			Low:       tr.Price,
			Close:     tr.Price,
			Volume:    tr.Volume,
			Turnover:  amount,
			Timestamp: bucket,
		}
		return m.appendBar(events, symbol, p, last, ok && !confirmed, bar)
	case bucket.Equal(last.Timestamp) && !confirmed:
		last.High = decimal.Max(last.High, tr.Price)
		last.Low = decimal.Min(last.Low, tr.Price)
		last.Close = tr.Price
		last.Volume += tr.Volume
		last.Turnover = last.Turnover.Add(amount)
		return m.update(events, symbol, p, last)
	default:
		m.log.Debug("late tick dropped",
			zap.String("symbol", symbol),
			zap.Stringer("period", p),
			zap.Time("bucket", bucket))
		return events
	}
}

// MergeQuote folds a regular-session quote into day and longer periods.
func (m *Merger) MergeQuote(q market.Quote, periods []market.Period) []market.CandlestickEvent {
	if q.TradeSession != market.SessionNormal || q.LastDone.IsZero() {
		return nil
	}
	loc := m.location(q.Symbol)
	dVolume, dTurnover := m.delta(q, loc)

	var events []market.CandlestickEvent
	for _, p := range periods {
		if p.IsMinute() || !p.Valid() {
			continue
		}
		bucket := p.BucketStart(q.Timestamp, loc)
		last, confirmed, ok := m.store.LastCandlestick(q.Symbol, p)

		switch {
		case !ok || bucket.After(last.Timestamp):
			bar := market.Candlestick{
				Open:      q.Open,
				High:      q.High,
				Low:       q.Low,
				Close:     q.LastDone,
				Volume:    q.Volume,
				Turnover:  q.Turnover,
				Timestamp: bucket,
			}
			if bar.Open.IsZero() {
				bar.Open = q.LastDone
			}
			events = m.appendBar(events, q.Symbol, p, last, ok && !confirmed, bar)
		case bucket.Equal(last.Timestamp) && !confirmed:
			if p == market.PeriodDay {
				last.Open = firstNonZero(last.Open, q.Open)
				last.High = q.High
				last.Low = q.Low
				last.Volume = q.Volume
				last.Turnover = q.Turnover
			} else {
				if !q.High.IsZero() {
					last.High = decimal.Max(last.High, q.High)
				}
				if !q.Low.IsZero() {
					last.Low = decimal.Min(last.Low, q.Low)
				}
				last.Volume += dVolume
				last.Turnover = last.Turnover.Add(dTurnover)
			}
			last.Close = q.LastDone
			events = m.update(events, q.Symbol, p, last)
		}
	}
	return events
}

// delta returns how much volume and turnover this quote adds over the
// previous quote of the same trading day.
func (m *Merger) delta(q market.Quote, loc *time.Location) (int64, decimal.Decimal) {
	day := market.PeriodDay.BucketStart(q.Timestamp, loc)
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.totals[q.Symbol]
	m.totals[q.Symbol] = dayTotals{day: day, volume: q.Volume, turnover: q.Turnover}
	if !ok || !prev.day.Equal(day) {
		return q.Volume, q.Turnover
	}
	if q.Volume < prev.volume {
		return 0, decimal.Zero
	}
	return q.Volume - prev.volume, q.Turnover.Sub(prev.turnover)
}

// Forget drops per-symbol state after the symbol's candlesticks are
// unsubscribed.
func (m *Merger) Forget(symbol string) {
	m.mu.Lock()
	delete(m.totals, symbol)
	m.mu.Unlock()
}

func (m *Merger) appendBar(events []market.CandlestickEvent, symbol string, p market.Period, prev market.Candlestick, closePrev bool, bar market.Candlestick) []market.CandlestickEvent {
	if closePrev && m.store.ApplyCandlestick(symbol, p, prev, true) {
		events = append(events, market.CandlestickEvent{Symbol: symbol, Period: p, Candlestick: prev, Confirmed: true})
	}
	if m.store.ApplyCandlestick(symbol, p, bar, false) && m.mode == ModeRealtime {
		events = append(events, market.CandlestickEvent{Symbol: symbol, Period: p, Candlestick: bar})
	}
	return events
}

func (m *Merger) update(events []market.CandlestickEvent, symbol string, p market.Period, bar market.Candlestick) []market.CandlestickEvent {
	if m.store.ApplyCandlestick(symbol, p, bar, false) && m.mode == ModeRealtime {
		events = append(events, market.CandlestickEvent{Symbol: symbol, Period: p, Candlestick: bar})
	}
	return events
}

func firstNonZero(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() {
		return b
	}
	return a
}
