// Package trade is the trading facade: order submission and amendment over
// REST, account queries, and the order-changed push pipeline over the trade
// gateway.
package trade

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/monitor"
	"market-gateway/internal/order"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/httpclient"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/protocol"
)

const (
	contextName = "trade"

	pruneInterval = time.Minute
	pruneAge      = time.Hour
)

// TradeContext is safe for concurrent use.
type TradeContext struct {
	cfg      Config
	log      *zap.Logger
	ws       *wsclient.Client
	http     *httpclient.Client
	tracker  *order.Tracker
	pending  *order.Pending[OrderChanged]
	dispatch *events.Dispatcher
	bus      *events.Bus

	mu     sync.Mutex
	topics map[string]struct{}

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New connects to the trade gateway. The returned context must be closed.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*TradeContext, error) {
	if cfg.URL == "" {
		return nil, apierr.Invalid("url", "trade gateway url is empty")
	}
	if cfg.HTTP == nil {
		return nil, apierr.Invalid("http", "an http client is required")
	}
	token := cfg.TokenSource
	if token == nil {
		token = cfg.HTTP.SocketToken
	}
	l := logger.OrNop(log).Named(contextName)

	tc := &TradeContext{
		cfg:    cfg,
		log:    l,
		http:   cfg.HTTP,
		bus:    cfg.Bus,
		topics: make(map[string]struct{}),
	}
	tc.ws = wsclient.New(cfg.wsConfig(), token, l)
	tc.tracker = order.NewTracker(cfg.Bus, l)
	tc.dispatch = events.NewDispatcher(events.DispatcherConfig{
		Shards:    cfg.DispatchShards,
		QueueSize: cfg.DispatchQueueSize,
		OnDrop: func(p events.Push) {
			monitor.DispatchDropped(p.Kind.String())
			tc.bus.Publish(events.EventDispatchDropped, events.Dropped{Kind: p.Kind, Symbol: p.Key})
		},
	}, l)
	tc.pending = order.NewPending(cfg.HoldFor, tc.tracker.Known, tc.release, l)

	tc.ws.SetPushHandler(tc.handlePush)
	tc.ws.SetReconnectHook(tc.resubscribe)
	tc.ws.SetStateHook(func(s wsclient.State) {
		tc.bus.Publish(events.EventConnectionState, events.StateChange{Context: contextName, State: s.String(), At: time.Now()})
	})

	runCtx, cancel := context.WithCancel(context.Background())
	tc.cancel = cancel
	tc.wg.Add(2)
	go func() {
		defer tc.wg.Done()
		tc.pending.Run(runCtx, cfg.SweepInterval)
	}()
	go func() {
		defer tc.wg.Done()
		tc.prune(runCtx)
	}()

	if err := tc.ws.Connect(ctx); err != nil {
		tc.Close()
		return nil, fmt.Errorf("connect trade gateway: %w", err)
	}
	return tc, nil
}

func (tc *TradeContext) prune(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tc.tracker.Prune(pruneAge); n > 0 {
				tc.log.Debug("pruned finished orders", zap.Int("count", n))
			}
		}
	}
}

func (tc *TradeContext) State() wsclient.State { return tc.ws.State() }

// Stats is a point-in-time view of the context's load. HeldPushes are
// order-changed pushes waiting for their submit response.
type Stats struct {
	InFlight      int   `json:"in_flight"`
	Delivered     int64 `json:"delivered"`
	Dropped       int64 `json:"dropped"`
	TrackedOrders int   `json:"tracked_orders"`
	HeldPushes    int   `json:"held_pushes"`
}

func (tc *TradeContext) Stats() Stats {
	delivered, dropped := tc.dispatch.Stats()
	return Stats{
		InFlight:      tc.ws.InFlight(),
		Delivered:     delivered,
		Dropped:       dropped,
		TrackedOrders: tc.tracker.Len(),
		HeldPushes:    tc.pending.Len(),
	}
}

// Close releases the connection, flushes held pushes and stops callback
// delivery. It is safe to call more than once.
func (tc *TradeContext) Close() error {
	var err error
	tc.closeOnce.Do(func() {
		err = tc.ws.Close()
		tc.cancel()
		tc.wg.Wait()
		tc.dispatch.Close()
	})
	return err
}

// Subscribe adds push topics. Topics the server refused are reported in an
// *apierr.PartialFailure.
func (tc *TradeContext) Subscribe(ctx context.Context, topics []string) error {
	if err := validateTopics(topics); err != nil {
		return err
	}
	var resp protocol.SubResponse
	if err := tc.ws.Request(ctx, protocol.CmdTradeSub, &protocol.Sub{Topics: topics}, &resp); err != nil {
		return fmt.Errorf("subscribe topics: %w", err)
	}
	tc.setTopics(resp.Current, resp.Success)

	if len(resp.Fail) == 0 {
		return nil
	}
	failed := make([]string, 0, len(resp.Fail))
	for _, f := range resp.Fail {
		failed = append(failed, f.Topic)
		tc.log.Warn("topic subscribe refused", zap.String("topic", f.Topic), zap.String("reason", f.Reason))
	}
	return &apierr.PartialFailure{
		Failed: failed,
		Cause:  &apierr.ServerError{Message: resp.Fail[0].Reason},
	}
}

func (tc *TradeContext) Unsubscribe(ctx context.Context, topics []string) error {
	if err := validateTopics(topics); err != nil {
		return err
	}
	var resp protocol.UnsubResponse
	if err := tc.ws.Request(ctx, protocol.CmdTradeUnsub, &protocol.Unsub{Topics: topics}, &resp); err != nil {
		return fmt.Errorf("unsubscribe topics: %w", err)
	}
	tc.mu.Lock()
	for _, t := range topics {
		delete(tc.topics, t)
	}
	tc.mu.Unlock()
	return nil
}

// Topics lists the subscribed topics.
func (tc *TradeContext) Topics() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]string, 0, len(tc.topics))
	for t := range tc.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// setTopics records the server's current set, or the accepted topics when
// the server did not send one.
func (tc *TradeContext) setTopics(current, success []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(current) > 0 {
		tc.topics = make(map[string]struct{}, len(current))
		for _, t := range current {
			tc.topics[t] = struct{}{}
		}
		return
	}
	for _, t := range success {
		tc.topics[t] = struct{}{}
	}
}

func (tc *TradeContext) resubscribe(ctx context.Context) {
	topics := tc.Topics()
	if len(topics) == 0 {
		return
	}
	var resp protocol.SubResponse
	if err := tc.ws.Request(ctx, protocol.CmdTradeSub, &protocol.Sub{Topics: topics}, &resp); err != nil {
		tc.log.Error("topic replay failed", zap.Strings("topics", topics), zap.Error(err))
		tc.bus.Publish(events.EventReplayFailed, events.ReplayFailed{Context: contextName, Err: err})
		return
	}
	tc.log.Info("topics replayed", zap.Strings("topics", topics))
}

func validateTopics(topics []string) error {
	if len(topics) == 0 {
		return apierr.Invalid("topics", "empty topic list")
	}
	for _, t := range topics {
		if t == "" {
			return apierr.Invalid("topics", "empty topic")
		}
	}
	return nil
}

// SetOnOrderChanged installs the order-changed callback; nil removes it.
func (tc *TradeContext) SetOnOrderChanged(fn func(OrderChanged)) {
	if fn == nil {
		tc.dispatch.SetHandler(events.KindOrderChanged, nil)
		return
	}
	tc.dispatch.SetHandler(events.KindOrderChanged, func(p events.Push) { fn(p.Payload.(OrderChanged)) })
}

// OrderStatus returns the status last seen for an order by this context.
func (tc *TradeContext) OrderStatus(orderID string) (OrderStatus, bool) {
	return tc.tracker.Status(orderID)
}
