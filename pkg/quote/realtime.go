package quote

import (
	"fmt"

	"market-gateway/internal/events"
)

// RealtimeQuote returns cached quotes. A symbol without a quote
// subscription fails with apierr.ErrNotSubscribed; there is no network
// fallback.
func (qc *QuoteContext) RealtimeQuote(symbols []string) ([]Quote, error) {
	out := make([]Quote, 0, len(symbols))
	for _, s := range symbols {
		q, err := qc.cache.Quote(s)
		if err != nil {
			return nil, bySymbol(s, err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (qc *QuoteContext) RealtimeDepth(symbol string) (Depth, error) {
	d, err := qc.cache.Depth(symbol)
	return d, bySymbol(symbol, err)
}

func (qc *QuoteContext) RealtimeBrokers(symbol string) (Brokers, error) {
	b, err := qc.cache.Brokers(symbol)
	return b, bySymbol(symbol, err)
}

// RealtimeTrades returns up to count of the newest ticks, oldest first.
// count <= 0 returns everything held.
func (qc *QuoteContext) RealtimeTrades(symbol string, count int) ([]Trade, error) {
	t, err := qc.cache.Trades(symbol, count)
	return t, bySymbol(symbol, err)
}

func (qc *QuoteContext) RealtimeCandlesticks(symbol string, period Period, count int) ([]Candlestick, error) {
	c, err := qc.cache.Candlesticks(symbol, period, count)
	return c, bySymbol(symbol, err)
}

func bySymbol(symbol string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", symbol, err)
}

// SetOnQuote installs the quote callback, replacing any previous one; nil
// removes it. Callbacks run on dispatcher workers and pushes for one symbol
// arrive in order.
func (qc *QuoteContext) SetOnQuote(fn func(Quote)) {
	qc.dispatch.SetHandler(events.KindQuote, handler(fn))
}

func (qc *QuoteContext) SetOnDepth(fn func(Depth)) {
	qc.dispatch.SetHandler(events.KindDepth, handler(fn))
}

func (qc *QuoteContext) SetOnBrokers(fn func(Brokers)) {
	qc.dispatch.SetHandler(events.KindBrokers, handler(fn))
}

func (qc *QuoteContext) SetOnTrades(fn func(Trades)) {
	qc.dispatch.SetHandler(events.KindTrades, handler(fn))
}

func (qc *QuoteContext) SetOnCandlestick(fn func(CandlestickEvent)) {
	qc.dispatch.SetHandler(events.KindCandlestick, handler(fn))
}

func handler[T any](fn func(T)) events.Handler {
	if fn == nil {
		return nil
	}
	return func(p events.Push) { fn(p.Payload.(T)) }
}
