// Package gateway runs the daemon's quote and trade contexts, restores and
// persists subscriptions, and journals order-changed pushes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/internal/persistence"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/config"
	"market-gateway/pkg/db"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
	"market-gateway/pkg/quote"
	"market-gateway/pkg/trade"
)

// DefaultFlags are subscribed for configured symbols.
const DefaultFlags = market.SubQuote | market.SubDepth | market.SubTrade

var ErrNotStarted = errors.New("gateway not started")

// Manager owns both contexts for the lifetime of the daemon.
type Manager struct {
	cfg     *config.Config
	factory Factory
	journal *persistence.Journal
	bus     *events.Bus
	log     *zap.Logger

	quote *quote.QuoteContext
	trade *trade.TradeContext

	mu        sync.Mutex
	persisted map[string]struct{}
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewManager prepares a manager; journal may be nil to run without
// persistence.
func NewManager(cfg *config.Config, journal *persistence.Journal, factory Factory, log *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		factory:   factory.withDefaults(),
		journal:   journal,
		bus:       events.NewBus(),
		log:       logger.OrNop(log).Named("gateway"),
		persisted: make(map[string]struct{}),
	}
}

func (m *Manager) Bus() *events.Bus { return m.bus }

// Start connects both contexts, subscribes the private order topic and
// restores subscriptions from config and the journal.
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	mon := &monitor.Monitor{Bus: m.bus, Sink: monitor.LogSink{Log: m.log}, Log: m.log}
	mon.Start(runCtx)

	hc := m.factory.HTTP(m.cfg, m.log)
	qcfg := quote.ConfigFrom(m.cfg, hc, m.bus)
	tcfg := trade.ConfigFrom(m.cfg, hc, m.bus)
	if m.factory.Tune != nil {
		m.factory.Tune(&qcfg, &tcfg)
	}

	qc, err := m.factory.Quote(ctx, qcfg, m.log)
	if err != nil {
		cancel()
		return fmt.Errorf("start quote context: %w", err)
	}
	tc, err := m.factory.Trade(ctx, tcfg, m.log)
	if err != nil {
		_ = qc.Close()
		cancel()
		return fmt.Errorf("start trade context: %w", err)
	}

	m.mu.Lock()
	m.quote, m.trade = qc, tc
	m.cancel = cancel
	m.startedAt = time.Now()
	m.mu.Unlock()

	tc.SetOnOrderChanged(m.journalOrder)
	if err := tc.Subscribe(ctx, []string{trade.TopicPrivate}); err != nil {
		m.log.Warn("order topic subscribe failed", zap.Error(err))
	}
	m.restore(ctx)
	return nil
}

// restore subscribes the configured symbols plus whatever the journal saved
// from the previous run. Failures are logged per group.
func (m *Manager) restore(ctx context.Context) {
	want := make(map[string]market.SubFlags)
	periods := make(map[string][]market.Period)
	for _, s := range m.cfg.Symbols {
		want[s] |= DefaultFlags
	}
	if m.journal != nil {
		saved, err := m.journal.Subscriptions(ctx)
		if err != nil {
			m.log.Warn("load saved subscriptions failed", zap.Error(err))
		}
		for _, s := range saved {
			want[s.Symbol] |= s.Flags
			periods[s.Symbol] = s.Periods
		}
	}

	groups := make(map[market.SubFlags][]string)
	for sym, f := range want {
		if !f.Empty() {
			groups[f] = append(groups[f], sym)
		}
	}
	for f, syms := range groups {
		sort.Strings(syms)
		if err := m.quote.Subscribe(ctx, syms, f, false); err != nil {
			m.log.Warn("restore subscription failed",
				zap.Strings("symbols", syms),
				zap.Stringer("flags", f),
				zap.Error(err))
		}
	}
	for sym, ps := range periods {
		for _, p := range ps {
			if _, err := m.quote.SubscribeCandlesticks(ctx, sym, p); err != nil {
				m.log.Warn("restore candlesticks failed",
					zap.String("symbol", sym),
					zap.Stringer("period", p),
					zap.Error(err))
			}
		}
	}
	m.persist(ctx)
}

// persist writes the registry to the journal and deletes rows for symbols
// no longer subscribed.
func (m *Manager) persist(ctx context.Context) {
	if m.journal == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quote == nil {
		return
	}
	current := make(map[string]struct{})
	for _, s := range m.quote.Subscriptions() {
		current[s.Symbol] = struct{}{}
		if err := m.journal.RecordSubscription(ctx, s.Symbol, s.SubTypes, s.Candlesticks); err != nil {
			m.log.Warn("persist subscription failed", zap.String("symbol", s.Symbol), zap.Error(err))
		}
	}
	for sym := range m.persisted {
		if _, ok := current[sym]; ok {
			continue
		}
		if err := m.journal.RecordSubscription(ctx, sym, 0, nil); err != nil {
			m.log.Warn("remove subscription failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	m.persisted = current
}

func (m *Manager) contexts() (*quote.QuoteContext, *trade.TradeContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quote == nil || m.trade == nil {
		return nil, nil, ErrNotStarted
	}
	return m.quote, m.trade, nil
}

func (m *Manager) Quote() *quote.QuoteContext {
	qc, _, _ := m.contexts()
	return qc
}

func (m *Manager) Trade() *trade.TradeContext {
	_, tc, _ := m.contexts()
	return tc
}

func (m *Manager) Subscribe(ctx context.Context, symbols []string, flags market.SubFlags) error {
	qc, _, err := m.contexts()
	if err != nil {
		return err
	}
	if err := qc.Subscribe(ctx, symbols, flags, false); err != nil {
		return err
	}
	m.persist(ctx)
	return nil
}

func (m *Manager) Unsubscribe(ctx context.Context, symbols []string, flags market.SubFlags) error {
	qc, _, err := m.contexts()
	if err != nil {
		return err
	}
	if err := qc.Unsubscribe(ctx, symbols, flags); err != nil {
		return err
	}
	m.persist(ctx)
	return nil
}

func (m *Manager) SubscribeCandlesticks(ctx context.Context, symbol string, period market.Period) ([]market.Candlestick, error) {
	qc, _, err := m.contexts()
	if err != nil {
		return nil, err
	}
	bars, err := qc.SubscribeCandlesticks(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	m.persist(ctx)
	return bars, nil
}

func (m *Manager) Subscriptions() []quote.Subscription {
	qc, _, err := m.contexts()
	if err != nil {
		return nil
	}
	return qc.Subscriptions()
}

func (m *Manager) RealtimeQuote(symbols []string) ([]quote.Quote, error) {
	qc, _, err := m.contexts()
	if err != nil {
		return nil, err
	}
	return qc.RealtimeQuote(symbols)
}

func (m *Manager) RealtimeDepth(symbol string) (quote.Depth, error) {
	qc, _, err := m.contexts()
	if err != nil {
		return quote.Depth{}, err
	}
	return qc.RealtimeDepth(symbol)
}

func (m *Manager) RealtimeBrokers(symbol string) (quote.Brokers, error) {
	qc, _, err := m.contexts()
	if err != nil {
		return quote.Brokers{}, err
	}
	return qc.RealtimeBrokers(symbol)
}

func (m *Manager) RealtimeTrades(symbol string, count int) ([]quote.Trade, error) {
	qc, _, err := m.contexts()
	if err != nil {
		return nil, err
	}
	return qc.RealtimeTrades(symbol, count)
}

func (m *Manager) TodayOrders(ctx context.Context, f trade.OrderFilter) ([]trade.Order, error) {
	_, tc, err := m.contexts()
	if err != nil {
		return nil, err
	}
	return tc.TodayOrders(ctx, f)
}

// OrderEvents returns the journaled pushes of one order, or the newest
// events across orders when orderID is empty.
func (m *Manager) OrderEvents(ctx context.Context, orderID string, limit int) ([]db.OrderEvent, error) {
	if m.journal == nil {
		return nil, nil
	}
	if orderID == "" {
		return m.journal.RecentOrderEvents(ctx, limit)
	}
	return m.journal.OrderEvents(ctx, orderID)
}

func (m *Manager) journalOrder(ev trade.OrderChanged) {
	if m.journal == nil {
		return
	}
	m.journal.RecordOrderEvent(db.OrderEvent{
		OrderID:           ev.OrderID,
		Symbol:            ev.Symbol,
		Side:              string(ev.Side),
		OrderType:         string(ev.OrderType),
		Status:            string(ev.Status),
		SubmittedQuantity: ev.SubmittedQuantity.String(),
		SubmittedPrice:    ev.SubmittedPrice.String(),
		ExecutedQuantity:  ev.ExecutedQuantity.String(),
		ExecutedPrice:     decString(ev.ExecutedPrice),
		Currency:          ev.Currency,
		Msg:               ev.Msg,
		UpdatedAt:         ev.UpdatedAt,
	})
}

func decString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// Status is the admin view of the gateway.
type Status struct {
	Quote         string                          `json:"quote"`
	Trade         string                          `json:"trade"`
	Ready         bool                            `json:"ready"`
	Subscriptions int                             `json:"subscriptions"`
	Topics        []string                        `json:"topics"`
	StartedAt     time.Time                       `json:"started_at"`
	Metrics       monitor.MetricsSnapshot         `json:"metrics"`
	Journal       *persistence.BatchWriterMetrics `json:"journal,omitempty"`
	QuoteStats    *quote.Stats                    `json:"quote_stats,omitempty"`
	TradeStats    *trade.Stats                    `json:"trade_stats,omitempty"`
}

// States returns the connection state per context name.
func (m *Manager) States() map[string]wsclient.State {
	qc, tc, err := m.contexts()
	if err != nil {
		return map[string]wsclient.State{"quote": wsclient.StateDisconnected, "trade": wsclient.StateDisconnected}
	}
	return map[string]wsclient.State{"quote": qc.State(), "trade": tc.State()}
}

func (m *Manager) Status() Status {
	states := m.States()
	st := Status{
		Quote:   states["quote"].String(),
		Trade:   states["trade"].String(),
		Ready:   states["quote"] == wsclient.StateReady && states["trade"] == wsclient.StateReady,
		Metrics: monitor.Default.GetSnapshot(),
	}
	if qc, tc, err := m.contexts(); err == nil {
		st.Subscriptions = len(qc.Subscriptions())
		st.Topics = tc.Topics()
		qs, ts := qc.Stats(), tc.Stats()
		st.QuoteStats, st.TradeStats = &qs, &ts
		m.mu.Lock()
		st.StartedAt = m.startedAt
		m.mu.Unlock()
	}
	if m.journal != nil {
		jm := m.journal.Metrics()
		st.Journal = &jm
	}
	return st
}

// Stop closes both contexts. The journal belongs to the caller.
func (m *Manager) Stop() {
	m.mu.Lock()
	qc, tc, cancel := m.quote, m.trade, m.cancel
	m.quote, m.trade, m.cancel = nil, nil, nil
	m.mu.Unlock()

	if tc != nil {
		if err := tc.Close(); err != nil {
			m.log.Warn("close trade context", zap.Error(err))
		}
	}
	if qc != nil {
		if err := qc.Close(); err != nil {
			m.log.Warn("close quote context", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
}
