// Package subscription tracks which symbols, data kinds and candlestick
// periods are subscribed, and turns changes into the minimal set of wire
// requests.
package subscription

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
)

// Transport sends subscribe/unsubscribe requests for one flag set.
type Transport interface {
	Subscribe(ctx context.Context, symbols []string, flags market.SubFlags, firstPush bool) error
	Unsubscribe(ctx context.Context, symbols []string, flags market.SubFlags) error
}

// EvictFunc is told which parts of a symbol's snapshot are no longer
// covered. all is set when the symbol's entry was deleted.
type EvictFunc func(symbol string, flags market.SubFlags, periods []market.Period, all bool)

// Entry is a copy of one symbol's subscription.
type Entry struct {
	Symbol  string
	Flags   market.SubFlags
	Periods []market.Period
}

type entry struct {
	flags   market.SubFlags
	periods map[market.Period]struct{}
}

// wireFlags is what the server must be pushing for this entry: the user's
// flags plus whatever the candlestick periods are built from.
func (e *entry) wireFlags() market.SubFlags {
	f := e.flags
	for p := range e.periods {
		f |= p.RequiredFlag()
	}
	return f
}

func (e *entry) empty() bool { return e.flags == 0 && len(e.periods) == 0 }

func (e *entry) sortedPeriods() []market.Period {
	out := make([]market.Period, 0, len(e.periods))
	for p := range e.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry is safe for concurrent use. Mutations are serialized so the
// missing-flag computation and the commit see the same state.
type Registry struct {
	opMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]*entry
	// flags of the subscribe currently on the wire, so its first push is
	// kept before the entry is committed
	inflight map[string]market.SubFlags

	tr    Transport
	evict EvictFunc
	log   *zap.Logger
}

func NewRegistry(tr Transport, evict EvictFunc, log *zap.Logger) *Registry {
	if evict == nil {
		evict = func(string, market.SubFlags, []market.Period, bool) {}
	}
	return &Registry{
		entries:  make(map[string]*entry),
		inflight: make(map[string]market.SubFlags),
		tr:       tr,
		evict:    evict,
		log:      logger.OrNop(log).Named("subscription"),
	}
}

func (r *Registry) wireFlagsOf(symbol string) market.SubFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[symbol]; ok {
		return e.wireFlags()
	}
	return 0
}

// group buckets symbols by a per-symbol flag set, skipping empty sets.
// Groups come out in a stable order.
func group(symbols []string, flagsOf func(string) market.SubFlags) ([]market.SubFlags, map[market.SubFlags][]string) {
	groups := make(map[market.SubFlags][]string)
	var order []market.SubFlags
	for _, s := range symbols {
		f := flagsOf(s)
		if f == 0 {
			continue
		}
		if _, ok := groups[f]; !ok {
			order = append(order, f)
		}
		groups[f] = append(groups[f], s)
	}
	return order, groups
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Subscribe adds flags to every symbol. Only flags not already on the wire
// are requested, one request per distinct missing set. A rejected batch is
// retried per symbol; symbols the server rejected are reported in a
// *apierr.PartialFailure while the rest take effect.
func (r *Registry) Subscribe(ctx context.Context, symbols []string, flags market.SubFlags, firstPush bool) error {
	if err := market.ValidateSymbols(symbols); err != nil {
		return err
	}
	if flags == 0 {
		return apierr.Invalid("flags", "no sub type given")
	}
	symbols = dedupe(symbols)

	r.opMu.Lock()
	defer r.opMu.Unlock()

	order, groups := group(symbols, func(s string) market.SubFlags {
		return flags &^ r.wireFlagsOf(s)
	})
	r.mu.Lock()
	for _, s := range symbols {
		r.inflight[s] |= flags
	}
	r.mu.Unlock()

	rejected := make(map[string]struct{})
	var cause error
	for _, missing := range order {
		failed, err := r.sendSubscribe(ctx, groups[missing], missing, firstPush)
		for _, s := range failed {
			rejected[s] = struct{}{}
		}
		if err != nil {
			cause = err
		}
	}

	var ok, failed []string
	for _, s := range symbols {
		if _, bad := rejected[s]; bad {
			failed = append(failed, s)
		} else {
			ok = append(ok, s)
		}
	}
	type orphan struct {
		symbol string
		flags  market.SubFlags
		all    bool
	}
	var orphans []orphan
	r.mu.Lock()
	for _, s := range symbols {
		delete(r.inflight, s)
	}
	for _, s := range ok {
		e, exists := r.entries[s]
		if !exists {
			e = &entry{periods: make(map[market.Period]struct{})}
			r.entries[s] = e
		}
		e.flags |= flags
	}
	// pushes stored while a rejected subscribe was in flight
	for _, s := range failed {
		var have market.SubFlags
		e, exists := r.entries[s]
		if exists {
			have = e.flags
		}
		if gone := flags &^ have; gone != 0 {
			orphans = append(orphans, orphan{symbol: s, flags: gone, all: !exists})
		}
	}
	r.mu.Unlock()

	for _, o := range orphans {
		r.evict(o.symbol, o.flags, nil, o.all)
	}

	if len(failed) == 0 {
		return nil
	}
	r.log.Warn("subscribe rejected", zap.Strings("symbols", failed), zap.Stringer("flags", flags), zap.Error(cause))
	if len(ok) == 0 && (len(symbols) == 1 || !errors.Is(cause, apierr.ErrServer)) {
		return cause
	}
	return &apierr.PartialFailure{Failed: failed, Cause: cause}
}

// sendSubscribe returns the symbols that were not accepted. A server
// rejection of a multi-symbol batch is split per symbol.
func (r *Registry) sendSubscribe(ctx context.Context, symbols []string, flags market.SubFlags, firstPush bool) ([]string, error) {
	err := r.tr.Subscribe(ctx, symbols, flags, firstPush)
	if err == nil {
		return nil, nil
	}
	if len(symbols) == 1 || !errors.Is(err, apierr.ErrServer) {
		return symbols, err
	}
	r.log.Info("batch subscribe rejected, isolating symbols", zap.Int("count", len(symbols)), zap.Error(err))
	var failed []string
	var cause error
	for _, s := range symbols {
		if err := r.tr.Subscribe(ctx, []string{s}, flags, firstPush); err != nil {
			failed = append(failed, s)
			cause = err
		}
	}
	return failed, cause
}

// Unsubscribe removes flags. Flags still needed by a symbol's candlestick
// periods stay on the wire. Entries left empty are deleted with their
// snapshot.
func (r *Registry) Unsubscribe(ctx context.Context, symbols []string, flags market.SubFlags) error {
	if err := market.ValidateSymbols(symbols); err != nil {
		return err
	}
	if flags == 0 {
		return apierr.Invalid("flags", "no sub type given")
	}
	symbols = dedupe(symbols)

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	removal := make(map[string]market.SubFlags, len(symbols))
	for _, s := range symbols {
		e, ok := r.entries[s]
		if !ok {
			continue
		}
		after := entry{flags: e.flags &^ flags, periods: e.periods}
		removal[s] = e.wireFlags() &^ after.wireFlags()
	}
	r.mu.RUnlock()

	order, groups := group(symbols, func(s string) market.SubFlags { return removal[s] })
	failed := make(map[string]struct{})
	var cause error
	for _, f := range order {
		if err := r.tr.Unsubscribe(ctx, groups[f], f); err != nil {
			cause = err
			for _, s := range groups[f] {
				failed[s] = struct{}{}
			}
		}
	}

	type eviction struct {
		symbol string
		flags  market.SubFlags
		all    bool
	}
	var evictions []eviction
	r.mu.Lock()
	for _, s := range symbols {
		e, ok := r.entries[s]
		if !ok {
			continue
		}
		if _, bad := failed[s]; bad {
			continue
		}
		dropped := e.flags & flags
		e.flags &^= flags
		if e.empty() {
			delete(r.entries, s)
			evictions = append(evictions, eviction{symbol: s, flags: market.SubAll, all: true})
		} else if dropped != 0 {
			evictions = append(evictions, eviction{symbol: s, flags: dropped})
		}
	}
	r.mu.Unlock()

	for _, ev := range evictions {
		r.evict(ev.symbol, ev.flags, nil, ev.all)
	}
	return cause
}

// SubscribeCandlesticks adds a period for symbol, subscribing the data kind
// the bars are built from when it is not on the wire yet. added is false
// when the period was already subscribed.
func (r *Registry) SubscribeCandlesticks(ctx context.Context, symbol string, period market.Period) (added bool, err error) {
	if _, _, err := market.ParseSymbol(symbol); err != nil {
		return false, err
	}
	if !period.Valid() {
		return false, apierr.Invalid("period", "unsupported period %d", period)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	var wire market.SubFlags
	if e, ok := r.entries[symbol]; ok {
		if _, dup := e.periods[period]; dup {
			r.mu.RUnlock()
			return false, nil
		}
		wire = e.wireFlags()
	}
	r.mu.RUnlock()

	if need := period.RequiredFlag() &^ wire; need != 0 {
		if err := r.tr.Subscribe(ctx, []string{symbol}, need, false); err != nil {
			return false, err
		}
	}

	r.mu.Lock()
	e, ok := r.entries[symbol]
	if !ok {
		e = &entry{periods: make(map[market.Period]struct{})}
		r.entries[symbol] = e
	}
	e.periods[period] = struct{}{}
	r.mu.Unlock()
	return true, nil
}

// UnsubscribeCandlesticks removes a period. The underlying data kind is
// unsubscribed only when nothing else needs it.
func (r *Registry) UnsubscribeCandlesticks(ctx context.Context, symbol string, period market.Period) error {
	if _, _, err := market.ParseSymbol(symbol); err != nil {
		return err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	e, ok := r.entries[symbol]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	if _, has := e.periods[period]; !has {
		r.mu.RUnlock()
		return nil
	}
	before := e.wireFlags()
	rest := make(map[market.Period]struct{}, len(e.periods))
	for p := range e.periods {
		if p != period {
			rest[p] = struct{}{}
		}
	}
	after := entry{flags: e.flags, periods: rest}
	removal := before &^ after.wireFlags()
	r.mu.RUnlock()

	if removal != 0 {
		if err := r.tr.Unsubscribe(ctx, []string{symbol}, removal); err != nil {
			return err
		}
	}

	r.mu.Lock()
	all := false
	if e, ok := r.entries[symbol]; ok {
		delete(e.periods, period)
		if e.empty() {
			delete(r.entries, symbol)
			all = true
		}
	}
	r.mu.Unlock()

	if all {
		r.evict(symbol, market.SubAll, nil, true)
	} else {
		r.evict(symbol, 0, []market.Period{period}, false)
	}
	return nil
}

// Replay re-sends every subscription after a reconnect: one request per
// distinct wire flag set, without a first push. Local state is untouched.
func (r *Registry) Replay(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	symbols := make([]string, 0, len(r.entries))
	flags := make(map[string]market.SubFlags, len(r.entries))
	for s, e := range r.entries {
		symbols = append(symbols, s)
		flags[s] = e.wireFlags()
	}
	r.mu.RUnlock()
	sort.Strings(symbols)

	order, groups := group(symbols, func(s string) market.SubFlags { return flags[s] })
	var errs []error
	for _, f := range order {
		if err := r.tr.Subscribe(ctx, groups[f], f, false); err != nil {
			r.log.Error("replay subscribe failed",
				zap.String("symbols", strings.Join(groups[f], ",")), zap.Stringer("flags", f), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(order) > 0 {
		r.log.Info("subscriptions replayed", zap.Int("symbols", len(symbols)), zap.Int("requests", len(order)))
	}
	return errors.Join(errs...)
}

// Subscriptions lists every entry, sorted by symbol.
func (r *Registry) Subscriptions() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for s, e := range r.entries {
		out = append(out, Entry{Symbol: s, Flags: e.flags, Periods: e.sortedPeriods()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Covers reports whether the user subscribed flag for symbol.
func (r *Registry) Covers(symbol string, flag market.SubFlags) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[symbol]
	return ok && e.flags.Has(flag)
}

// Accepts reports whether pushes of flag for symbol are kept: the flag is
// subscribed or a subscribe for it is on the wire.
func (r *Registry) Accepts(symbol string, flag market.SubFlags) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.inflight[symbol].Has(flag) {
		return true
	}
	e, ok := r.entries[symbol]
	return ok && e.flags.Has(flag)
}

// HasPeriod reports whether candlesticks of period are subscribed for symbol.
func (r *Registry) HasPeriod(symbol string, period market.Period) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[symbol]
	if !ok {
		return false
	}
	_, has := e.periods[period]
	return has
}

// Periods returns the candlestick periods subscribed for symbol.
func (r *Registry) Periods(symbol string) []market.Period {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[symbol]; ok {
		return e.sortedPeriods()
	}
	return nil
}
