// Package quote is the market-data facade: subscriptions, realtime
// snapshots fed by pushes, and point-in-time queries over the quote gateway.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/candles"
	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/internal/subscription"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/cache"
	"market-gateway/pkg/httpclient"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
)

const (
	contextName = "quote"

	seedCandlesticks = 1000
	maxQueryCount    = 1000
	prevCloseTimeout = 5 * time.Second
)

// QuoteContext owns one quote gateway connection and everything fed by it.
// It is safe for concurrent use.
type QuoteContext struct {
	cfg      Config
	log      *zap.Logger
	ws       *wsclient.Client
	http     *httpclient.Client
	registry *subscription.Registry
	cache    *cache.MarketCache
	merger   *candles.Merger
	dispatch *events.Dispatcher
	bus      *events.Bus
}

// New connects to the quote gateway. The returned context must be closed.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*QuoteContext, error) {
	qc, err := newContext(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := qc.ws.Connect(ctx); err != nil {
		qc.Close()
		return nil, fmt.Errorf("connect quote gateway: %w", err)
	}
	return qc, nil
}

func newContext(cfg Config, log *zap.Logger) (*QuoteContext, error) {
	if cfg.URL == "" {
		return nil, apierr.Invalid("url", "quote gateway url is empty")
	}
	token := cfg.TokenSource
	if token == nil {
		if cfg.HTTP == nil {
			return nil, apierr.Invalid("http", "an http client or token source is required")
		}
		token = cfg.HTTP.SocketToken
	}
	l := logger.OrNop(log).Named(contextName)

	qc := &QuoteContext{cfg: cfg, log: l, http: cfg.HTTP, bus: cfg.Bus}
	qc.ws = wsclient.New(cfg.wsConfig(), token, l)
	qc.registry = subscription.NewRegistry(wireTransport{ws: qc.ws}, qc.evict, l)
	qc.cache = cache.NewMarketCache(qc.registry, cfg.TradesRingSize)
	qc.merger = candles.NewMerger(qc.cache, cfg.CandlestickMode, l)
	qc.dispatch = events.NewDispatcher(events.DispatcherConfig{
		Shards:    cfg.DispatchShards,
		QueueSize: cfg.DispatchQueueSize,
		OnDrop:    qc.dropped,
	}, l)

	qc.ws.SetPushHandler(qc.handlePush)
	qc.ws.SetReconnectHook(qc.replay)
	qc.ws.SetStateHook(func(s wsclient.State) {
		qc.bus.Publish(events.EventConnectionState, events.StateChange{Context: contextName, State: s.String(), At: time.Now()})
	})
	return qc, nil
}

// evict runs inside registry mutations; the cache exists by then.
func (qc *QuoteContext) evict(symbol string, flags market.SubFlags, periods []market.Period, all bool) {
	qc.cache.Evict(symbol, flags, periods, all)
	if all || len(qc.registry.Periods(symbol)) == 0 {
		qc.merger.Forget(symbol)
	}
}

func (qc *QuoteContext) dropped(p events.Push) {
	monitor.DispatchDropped(p.Kind.String())
	qc.bus.Publish(events.EventDispatchDropped, events.Dropped{Kind: p.Kind, Symbol: p.Key})
}

func (qc *QuoteContext) replay(ctx context.Context) {
	if err := qc.registry.Replay(ctx); err != nil {
		qc.log.Error("subscription replay failed", zap.Error(err))
		qc.bus.Publish(events.EventReplayFailed, events.ReplayFailed{Context: contextName, Err: err})
	}
}

// State reports the connection state.
func (qc *QuoteContext) State() wsclient.State { return qc.ws.State() }

// Stats is a point-in-time view of the context's load.
type Stats struct {
	InFlight  int              `json:"in_flight"`
	Delivered int64            `json:"delivered"`
	Dropped   int64            `json:"dropped"`
	Cache     cache.CacheStats `json:"cache"`
}

func (qc *QuoteContext) Stats() Stats {
	delivered, dropped := qc.dispatch.Stats()
	return Stats{
		InFlight:  qc.ws.InFlight(),
		Delivered: delivered,
		Dropped:   dropped,
		Cache:     qc.cache.Stats(),
	}
}

// Close releases the connection and stops callback delivery. It is safe to
// call more than once.
func (qc *QuoteContext) Close() error {
	err := qc.ws.Close()
	qc.dispatch.Close()
	return err
}

// Subscribe adds sub types for symbols. With firstPush the server sends the
// current state right away. Symbols the server rejected are reported in an
// *apierr.PartialFailure; the others stay subscribed.
func (qc *QuoteContext) Subscribe(ctx context.Context, symbols []string, flags SubFlags, firstPush bool) error {
	if err := qc.registry.Subscribe(ctx, symbols, flags, firstPush); err != nil {
		if failed := apierr.FailedItems(err); failed != nil && flags.Has(market.SubQuote) {
			qc.fetchSessionPrevClose(subtract(symbols, failed))
		}
		return err
	}
	if flags.Has(market.SubQuote) {
		qc.fetchSessionPrevClose(symbols)
	}
	return nil
}

// Unsubscribe removes sub types for symbols.
func (qc *QuoteContext) Unsubscribe(ctx context.Context, symbols []string, flags SubFlags) error {
	return qc.registry.Unsubscribe(ctx, symbols, flags)
}

// SubscribeCandlesticks starts realtime bars for (symbol, period) and
// returns the seeded history. A repeated call returns the cached series.
func (qc *QuoteContext) SubscribeCandlesticks(ctx context.Context, symbol string, period Period) ([]Candlestick, error) {
	added, err := qc.registry.SubscribeCandlesticks(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	if !added {
		return qc.cache.Candlesticks(symbol, period, 0)
	}
	history, err := qc.Candlesticks(ctx, symbol, period, seedCandlesticks, market.NoAdjust)
	if err != nil {
		qc.log.Warn("candlestick seed failed",
			zap.String("symbol", symbol), zap.Stringer("period", period), zap.Error(err))
		if uerr := qc.registry.UnsubscribeCandlesticks(ctx, symbol, period); uerr != nil {
			qc.log.Warn("rollback candlestick subscription", zap.Error(uerr))
		}
		return nil, err
	}
	qc.cache.SeedCandlesticks(symbol, period, history)
	return history, nil
}

func (qc *QuoteContext) UnsubscribeCandlesticks(ctx context.Context, symbol string, period Period) error {
	return qc.registry.UnsubscribeCandlesticks(ctx, symbol, period)
}

// Subscriptions lists the current subscriptions sorted by symbol.
func (qc *QuoteContext) Subscriptions() []Subscription {
	entries := qc.registry.Subscriptions()
	out := make([]Subscription, 0, len(entries))
	for _, e := range entries {
		out = append(out, Subscription{Symbol: e.Symbol, SubTypes: e.Flags, Candlesticks: e.Periods})
	}
	return out
}

// fetchSessionPrevClose loads the extended-session previous close in the
// background so the realtime quote can show it before the first push.
func (qc *QuoteContext) fetchSessionPrevClose(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prevCloseTimeout)
		defer cancel()
		quotes, err := qc.Quote(ctx, symbols)
		if err != nil {
			if !errors.Is(err, apierr.ErrConnectionClosed) {
				qc.log.Debug("session prev close unavailable", zap.Error(err))
			}
			return
		}
		for _, q := range quotes {
			for session, sq := range map[market.TradeSession]*SessionQuote{
				market.SessionPre:       q.PreMarket,
				market.SessionPost:      q.PostMarket,
				market.SessionOvernight: q.Overnight,
			} {
				if sq != nil {
					qc.cache.SetSessionPrevClose(q.Symbol, session, *sq)
				}
			}
		}
	}()
}

func subtract(all, remove []string) []string {
	skip := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		skip[s] = struct{}{}
	}
	var out []string
	for _, s := range all {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func (qc *QuoteContext) request(ctx context.Context, cmd uint8, req, resp any) error {
	if err := qc.ws.Request(ctx, cmd, req, resp); err != nil {
		return fmt.Errorf("quote cmd %d: %w", cmd, err)
	}
	return nil
}
