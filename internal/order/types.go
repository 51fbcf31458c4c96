package order

import (
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Type is the order type code used by the trade API.
type Type string

const (
	TypeLO      Type = "LO"      // limit
	TypeELO     Type = "ELO"     // enhanced limit
	TypeMO      Type = "MO"      // market
	TypeAO      Type = "AO"      // at-auction
	TypeALO     Type = "ALO"     // at-auction limit
	TypeODD     Type = "ODD"     // odd lot
	TypeLIT     Type = "LIT"     // limit if touched
	TypeMIT     Type = "MIT"     // market if touched
	TypeTSLPAMT Type = "TSLPAMT" // trailing limit, amount
	TypeTSLPPCT Type = "TSLPPCT" // trailing limit, percent
	TypeTSMAMT  Type = "TSMAMT"  // trailing market, amount
	TypeTSMPCT  Type = "TSMPCT"  // trailing market, percent
)

type typeRule struct {
	price         bool // submitted_price required
	trigger       bool // trigger_price required
	trailAmount   bool
	trailPercent  bool
	limitOffset   bool
	noConditional bool // trigger, offset and trailing fields forbidden
}

var typeRules = map[Type]typeRule{
	TypeLO:      {price: true, noConditional: true},
	TypeELO:     {price: true, noConditional: true},
	TypeMO:      {},
	TypeAO:      {noConditional: true},
	TypeALO:     {price: true, noConditional: true},
	TypeODD:     {price: true, noConditional: true},
	TypeLIT:     {price: true, trigger: true},
	TypeMIT:     {trigger: true},
	TypeTSLPAMT: {trailAmount: true, limitOffset: true},
	TypeTSLPPCT: {trailPercent: true, limitOffset: true},
	TypeTSMAMT:  {trailAmount: true},
	TypeTSMPCT:  {trailPercent: true},
}

func (t Type) Valid() bool {
	_, ok := typeRules[t]
	return ok
}

type TimeInForce string

const (
	TIFDay TimeInForce = "Day"
	TIFGTC TimeInForce = "GTC"
	TIFGTD TimeInForce = "GTD"
)

// OutsideRTH controls US extended-hours execution.
type OutsideRTH string

const (
	RTHOnly   OutsideRTH = "RTH_ONLY"
	AnyTime   OutsideRTH = "ANY_TIME"
	Overnight OutsideRTH = "OVERNIGHT"
)

// SubmitRequest is a new order. Optional fields are nil when absent.
type SubmitRequest struct {
	Symbol            string
	Type              Type
	Side              Side
	SubmittedQuantity decimal.Decimal
	TimeInForce       TimeInForce
	SubmittedPrice    *decimal.Decimal
	TriggerPrice      *decimal.Decimal
	LimitOffset       *decimal.Decimal
	TrailingAmount    *decimal.Decimal
	TrailingPercent   *decimal.Decimal
	ExpireDate        *time.Time
	OutsideRTH        OutsideRTH
	Remark            string
}

var hundred = decimal.NewFromInt(100)

// Validate checks the request locally; a failing request is never sent.
func (r SubmitRequest) Validate() error {
	if _, _, err := market.ParseSymbol(r.Symbol); err != nil {
		return err
	}
	if !r.SubmittedQuantity.IsPositive() {
		return apierr.Invalid("submitted_quantity", "must be positive")
	}
	switch r.Side {
	case SideBuy, SideSell:
	default:
		return apierr.Invalid("side", "unknown side %q", r.Side)
	}
	rule, ok := typeRules[r.Type]
	if !ok {
		return apierr.Invalid("order_type", "unknown order type %q", r.Type)
	}
	switch r.TimeInForce {
	case TIFDay, TIFGTC:
	case TIFGTD:
		if r.ExpireDate == nil || r.ExpireDate.IsZero() {
			return apierr.Invalid("expire_date", "required for GTD")
		}
	default:
		return apierr.Invalid("time_in_force", "unknown time in force %q", r.TimeInForce)
	}
	switch r.OutsideRTH {
	case "", RTHOnly, AnyTime, Overnight:
	default:
		return apierr.Invalid("outside_rth", "unknown value %q", r.OutsideRTH)
	}

	if rule.noConditional {
		for _, f := range []struct {
			name string
			v    *decimal.Decimal
		}{
			{"trigger_price", r.TriggerPrice},
			{"limit_offset", r.LimitOffset},
			{"trailing_amount", r.TrailingAmount},
			{"trailing_percent", r.TrailingPercent},
		} {
			if f.v != nil {
				return apierr.Invalid(f.name, "not allowed for %s orders", r.Type)
			}
		}
	}
	if rule.price && r.SubmittedPrice == nil {
		return apierr.Invalid("submitted_price", "required for %s orders", r.Type)
	}
	if rule.trigger && r.TriggerPrice == nil {
		return apierr.Invalid("trigger_price", "required for %s orders", r.Type)
	}
	if rule.trailAmount && r.TrailingAmount == nil {
		return apierr.Invalid("trailing_amount", "required for %s orders", r.Type)
	}
	if rule.trailPercent && r.TrailingPercent == nil {
		return apierr.Invalid("trailing_percent", "required for %s orders", r.Type)
	}
	if rule.limitOffset && r.LimitOffset == nil {
		return apierr.Invalid("limit_offset", "required for %s orders", r.Type)
	}
	if p := r.SubmittedPrice; p != nil && !p.IsPositive() {
		return apierr.Invalid("submitted_price", "must be positive")
	}
	if p := r.TrailingPercent; p != nil && (!p.IsPositive() || p.GreaterThanOrEqual(hundred)) {
		return apierr.Invalid("trailing_percent", "must be within (0, 100)")
	}
	return nil
}

// ReplaceRequest amends a live order. Quantity is required.
type ReplaceRequest struct {
	OrderID         string
	Quantity        decimal.Decimal
	Price           *decimal.Decimal
	TriggerPrice    *decimal.Decimal
	LimitOffset     *decimal.Decimal
	TrailingAmount  *decimal.Decimal
	TrailingPercent *decimal.Decimal
	Remark          string
}

func (r ReplaceRequest) Validate() error {
	if r.OrderID == "" {
		return apierr.Invalid("order_id", "required")
	}
	if !r.Quantity.IsPositive() {
		return apierr.Invalid("quantity", "must be positive")
	}
	if p := r.Price; p != nil && !p.IsPositive() {
		return apierr.Invalid("price", "must be positive")
	}
	if p := r.TrailingPercent; p != nil && (!p.IsPositive() || p.GreaterThanOrEqual(hundred)) {
		return apierr.Invalid("trailing_percent", "must be within (0, 100)")
	}
	return nil
}
