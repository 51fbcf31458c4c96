package quote

import (
	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/pkg/market"
	"market-gateway/pkg/protocol"
)

// handlePush runs on the connection reader. The cache is updated before
// the callback is queued, so realtime getters see a push as soon as it is
// read. The cache drops pushes for flags that are neither subscribed nor
// being subscribed.
func (qc *QuoteContext) handlePush(cmd uint8, body []byte) {
	switch cmd {
	case protocol.CmdPushQuote:
		var p protocol.PushQuote
		if !qc.decode(cmd, body, &p) {
			return
		}
		qc.onQuote(pushQuote(&p))
	case protocol.CmdPushDepth:
		var p protocol.PushDepth
		if !qc.decode(cmd, body, &p) {
			return
		}
		monitor.ObservePush(contextName, events.KindDepth.String())
		d := market.Depth{Symbol: p.Symbol, Sequence: p.Sequence, Asks: depthLevels(p.Ask), Bids: depthLevels(p.Bid)}
		if qc.cache.ApplyDepth(d) {
			qc.dispatch.Dispatch(events.Push{Kind: events.KindDepth, Key: d.Symbol, Payload: d})
		}
	case protocol.CmdPushBrokers:
		var p protocol.PushBrokers
		if !qc.decode(cmd, body, &p) {
			return
		}
		monitor.ObservePush(contextName, events.KindBrokers.String())
		b := market.Brokers{Symbol: p.Symbol, Sequence: p.Sequence, AskBrokers: brokerLevels(p.AskBrokers), BidBrokers: brokerLevels(p.BidBrokers)}
		if qc.cache.ApplyBrokers(b) {
			qc.dispatch.Dispatch(events.Push{Kind: events.KindBrokers, Key: b.Symbol, Payload: b})
		}
	case protocol.CmdPushTrade:
		var p protocol.PushTrade
		if !qc.decode(cmd, body, &p) {
			return
		}
		qc.onTrades(market.Trades{Symbol: p.Symbol, Sequence: p.Sequence, Trades: trades(p.Trade)})
	default:
		qc.log.Debug("unhandled push", zap.Uint8("cmd", cmd))
	}
}

func (qc *QuoteContext) decode(cmd uint8, body []byte, msg any) bool {
	if err := protocol.Unmarshal(body, msg); err != nil {
		qc.log.Warn("push decode failed", zap.Uint8("cmd", cmd), zap.Error(err))
		return false
	}
	return true
}

func (qc *QuoteContext) onQuote(q market.Quote) {
	if q.TradeSession == market.SessionOvernight && !qc.cfg.EnableOvernight {
		return
	}
	monitor.ObservePush(contextName, events.KindQuote.String())
	if qc.cache.ApplyQuote(q) {
		qc.dispatch.Dispatch(events.Push{Kind: events.KindQuote, Key: q.Symbol, Payload: q})
	}
	if periods := qc.registry.Periods(q.Symbol); len(periods) > 0 {
		qc.emitCandlesticks(qc.merger.MergeQuote(q, periods))
	}
}

func (qc *QuoteContext) onTrades(t market.Trades) {
	if !qc.cfg.EnableOvernight {
		kept := t.Trades[:0]
		for _, tr := range t.Trades {
			if tr.TradeSession != market.SessionOvernight {
				kept = append(kept, tr)
			}
		}
		t.Trades = kept
	}
	if len(t.Trades) == 0 {
		return
	}
	monitor.ObservePush(contextName, events.KindTrades.String())
	if qc.cache.ApplyTrades(t) {
		qc.dispatch.Dispatch(events.Push{Kind: events.KindTrades, Key: t.Symbol, Payload: t})
	}
	if periods := qc.registry.Periods(t.Symbol); len(periods) > 0 {
		qc.emitCandlesticks(qc.merger.MergeTrades(t, periods))
	}
}

func (qc *QuoteContext) emitCandlesticks(evs []market.CandlestickEvent) {
	for _, ev := range evs {
		monitor.ObservePush(contextName, events.KindCandlestick.String())
		qc.dispatch.Dispatch(events.Push{Kind: events.KindCandlestick, Key: ev.Symbol, Payload: ev})
	}
}
