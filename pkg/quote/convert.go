package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/pkg/market"
	"market-gateway/pkg/protocol"
)

// dec parses a wire decimal; empty or malformed values are zero.
func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toSessionQuote(q *protocol.PrePostQuote) *market.SessionQuote {
	if q == nil {
		return nil
	}
	return &market.SessionQuote{
		LastDone:  dec(q.LastDone),
		Timestamp: unix(q.Timestamp),
		Volume:    q.Volume,
		Turnover:  dec(q.Turnover),
		High:      dec(q.High),
		Low:       dec(q.Low),
		PrevClose: dec(q.PrevClose),
	}
}

func pushQuote(p *protocol.PushQuote) market.Quote {
	return market.Quote{
		Symbol:          p.Symbol,
		Sequence:        p.Sequence,
		LastDone:        dec(p.LastDone),
		Open:            dec(p.Open),
		High:            dec(p.High),
		Low:             dec(p.Low),
		Timestamp:       unix(p.Timestamp),
		Volume:          p.Volume,
		Turnover:        dec(p.Turnover),
		TradeStatus:     market.TradeStatus(p.TradeStatus),
		TradeSession:    market.TradeSession(p.TradeSession),
		CurrentVolume:   p.CurrentVolume,
		CurrentTurnover: dec(p.CurrentTurnover),
	}
}

func depthLevels(in []protocol.Depth) []market.DepthLevel {
	out := make([]market.DepthLevel, 0, len(in))
	for _, d := range in {
		out = append(out, market.DepthLevel{
			Position: d.Position,
			Price:    dec(d.Price),
			Volume:   d.Volume,
			OrderNum: d.OrderNum,
		})
	}
	return out
}

func brokerLevels(in []protocol.Brokers) []market.BrokerLevel {
	out := make([]market.BrokerLevel, 0, len(in))
	for _, b := range in {
		out = append(out, market.BrokerLevel{Position: b.Position, BrokerIDs: append([]int32(nil), b.BrokerIDs...)})
	}
	return out
}

func trades(in []protocol.Trade) []market.Trade {
	out := make([]market.Trade, 0, len(in))
	for _, t := range in {
		out = append(out, market.Trade{
			Price:        dec(t.Price),
			Volume:       t.Volume,
			Timestamp:    unix(t.Timestamp),
			TradeType:    t.TradeType,
			Direction:    market.TradeDirection(t.Direction),
			TradeSession: market.TradeSession(t.TradeSession),
		})
	}
	return out
}

func candlesticks(in []protocol.Candlestick) []market.Candlestick {
	out := make([]market.Candlestick, 0, len(in))
	for _, c := range in {
		out = append(out, market.Candlestick{
			Open:      dec(c.Open),
			High:      dec(c.High),
			Low:       dec(c.Low),
			Close:     dec(c.Close),
			Volume:    c.Volume,
			Turnover:  dec(c.Turnover),
			Timestamp: unix(c.Timestamp),
		})
	}
	return out
}

// parseDate reads yyyymmdd or yyyy-mm-dd; bad input is the zero time.
func parseDate(s string) time.Time {
	layout := "20060102"
	if len(s) == 10 {
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) string { return t.Format("20060102") }
