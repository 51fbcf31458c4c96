package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/internal/jsonx"
	"market-gateway/internal/order"
)

type (
	OrderStatus  = order.Status
	OrderSide    = order.Side
	OrderType    = order.Type
	TimeInForce  = order.TimeInForce
	OutsideRTH   = order.OutsideRTH
	SubmitOrder  = order.SubmitRequest
	ReplaceOrder = order.ReplaceRequest
)

// TopicPrivate carries the account's order pushes.
const TopicPrivate = "private"

// Order is an order as reported by queries and pushes. Optional prices are
// nil when the server leaves them empty.
type Order struct {
	OrderID          string
	Status           OrderStatus
	StockName        string
	Quantity         decimal.Decimal
	ExecutedQuantity decimal.Decimal
	Price            *decimal.Decimal
	ExecutedPrice    *decimal.Decimal
	SubmittedAt      time.Time
	Side             OrderSide
	Symbol           string
	OrderType        OrderType
	LastDone         *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	Msg              string
	Tag              string
	TimeInForce      TimeInForce
	ExpireDate       time.Time
	UpdatedAt        time.Time
	TriggerAt        time.Time
	TrailingAmount   *decimal.Decimal
	TrailingPercent  *decimal.Decimal
	LimitOffset      *decimal.Decimal
	TriggerStatus    string
	Currency         string
	OutsideRTH       OutsideRTH
	Remark           string
}

type orderJSON struct {
	OrderID          string          `json:"order_id"`
	Status           string          `json:"status"`
	StockName        string          `json:"stock_name"`
	Quantity         jsonx.Decimal   `json:"quantity"`
	ExecutedQuantity jsonx.Decimal   `json:"executed_quantity"`
	Price            jsonx.Decimal   `json:"price"`
	ExecutedPrice    jsonx.Decimal   `json:"executed_price"`
	SubmittedAt      jsonx.Timestamp `json:"submitted_at"`
	Side             string          `json:"side"`
	Symbol           string          `json:"symbol"`
	OrderType        string          `json:"order_type"`
	LastDone         jsonx.Decimal   `json:"last_done"`
	TriggerPrice     jsonx.Decimal   `json:"trigger_price"`
	Msg              string          `json:"msg"`
	Tag              string          `json:"tag"`
	TimeInForce      string          `json:"time_in_force"`
	ExpireDate       jsonx.Date      `json:"expire_date"`
	UpdatedAt        jsonx.Timestamp `json:"updated_at"`
	TriggerAt        jsonx.Timestamp `json:"trigger_at"`
	TrailingAmount   jsonx.Decimal   `json:"trailing_amount"`
	TrailingPercent  jsonx.Decimal   `json:"trailing_percent"`
	LimitOffset      jsonx.Decimal   `json:"limit_offset"`
	TriggerStatus    string          `json:"trigger_status"`
	Currency         string          `json:"currency"`
	OutsideRTH       string          `json:"outside_rth"`
	Remark           string          `json:"remark"`
}

func (o orderJSON) toOrder() Order {
	return Order{
		OrderID:          o.OrderID,
		Status:           OrderStatus(o.Status),
		StockName:        o.StockName,
		Quantity:         o.Quantity.Decimal,
		ExecutedQuantity: o.ExecutedQuantity.Decimal,
		Price:            o.Price.NonZero(),
		ExecutedPrice:    o.ExecutedPrice.NonZero(),
		SubmittedAt:      o.SubmittedAt.Time,
		Side:             OrderSide(o.Side),
		Symbol:           o.Symbol,
		OrderType:        OrderType(o.OrderType),
		LastDone:         o.LastDone.NonZero(),
		TriggerPrice:     o.TriggerPrice.NonZero(),
		Msg:              o.Msg,
		Tag:              o.Tag,
		TimeInForce:      TimeInForce(o.TimeInForce),
		ExpireDate:       o.ExpireDate.Time,
		UpdatedAt:        o.UpdatedAt.Time,
		TriggerAt:        o.TriggerAt.Time,
		TrailingAmount:   o.TrailingAmount.NonZero(),
		TrailingPercent:  o.TrailingPercent.NonZero(),
		LimitOffset:      o.LimitOffset.NonZero(),
		TriggerStatus:    o.TriggerStatus,
		Currency:         o.Currency,
		OutsideRTH:       OutsideRTH(o.OutsideRTH),
		Remark:           o.Remark,
	}
}

// OrderChanged is one order-changed push.
type OrderChanged struct {
	OrderID           string
	Status            OrderStatus
	Side              OrderSide
	StockName         string
	SubmittedQuantity decimal.Decimal
	Symbol            string
	OrderType         OrderType
	SubmittedPrice    decimal.Decimal
	ExecutedQuantity  decimal.Decimal
	ExecutedPrice     *decimal.Decimal
	Currency          string
	SubmittedAt       time.Time
	UpdatedAt         time.Time
	TriggerPrice      *decimal.Decimal
	Msg               string
	Tag               string
	TriggerStatus     string
	TriggerAt         time.Time
	TrailingAmount    *decimal.Decimal
	TrailingPercent   *decimal.Decimal
	LimitOffset       *decimal.Decimal
	AccountNo         string
	LastShare         *decimal.Decimal
	LastPrice         *decimal.Decimal
	Remark            string
}

type orderChangedJSON struct {
	Side              string          `json:"side"`
	StockName         string          `json:"stock_name"`
	SubmittedQuantity jsonx.Decimal   `json:"submitted_quantity"`
	Symbol            string          `json:"symbol"`
	OrderType         string          `json:"order_type"`
	SubmittedPrice    jsonx.Decimal   `json:"submitted_price"`
	ExecutedQuantity  jsonx.Decimal   `json:"executed_quantity"`
	ExecutedPrice     jsonx.Decimal   `json:"executed_price"`
	OrderID           string          `json:"order_id"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	SubmittedAt       jsonx.Timestamp `json:"submitted_at"`
	UpdatedAt         jsonx.Timestamp `json:"updated_at"`
	TriggerPrice      jsonx.Decimal   `json:"trigger_price"`
	Msg               string          `json:"msg"`
	Tag               string          `json:"tag"`
	TriggerStatus     string          `json:"trigger_status"`
	TriggerAt         jsonx.Timestamp `json:"trigger_at"`
	TrailingAmount    jsonx.Decimal   `json:"trailing_amount"`
	TrailingPercent   jsonx.Decimal   `json:"trailing_percent"`
	LimitOffset       jsonx.Decimal   `json:"limit_offset"`
	AccountNo         string          `json:"account_no"`
	LastShare         jsonx.Decimal   `json:"last_share"`
	LastPrice         jsonx.Decimal   `json:"last_price"`
	Remark            string          `json:"remark"`
}

func (o orderChangedJSON) toEvent() OrderChanged {
	return OrderChanged{
		OrderID:           o.OrderID,
		Status:            OrderStatus(o.Status),
		Side:              OrderSide(o.Side),
		StockName:         o.StockName,
		SubmittedQuantity: o.SubmittedQuantity.Decimal,
		Symbol:            o.Symbol,
		OrderType:         OrderType(o.OrderType),
		SubmittedPrice:    o.SubmittedPrice.Decimal,
		ExecutedQuantity:  o.ExecutedQuantity.Decimal,
		ExecutedPrice:     o.ExecutedPrice.NonZero(),
		Currency:          o.Currency,
		SubmittedAt:       o.SubmittedAt.Time,
		UpdatedAt:         o.UpdatedAt.Time,
		TriggerPrice:      o.TriggerPrice.NonZero(),
		Msg:               o.Msg,
		Tag:               o.Tag,
		TriggerStatus:     o.TriggerStatus,
		TriggerAt:         o.TriggerAt.Time,
		TrailingAmount:    o.TrailingAmount.NonZero(),
		TrailingPercent:   o.TrailingPercent.NonZero(),
		LimitOffset:       o.LimitOffset.NonZero(),
		AccountNo:         o.AccountNo,
		LastShare:         o.LastShare.Ptr(),
		LastPrice:         o.LastPrice.Ptr(),
		Remark:            o.Remark,
	}
}

// Execution is one fill.
type Execution struct {
	OrderID     string
	TradeID     string
	Symbol      string
	TradeDoneAt time.Time
	Quantity    decimal.Decimal
	Price       decimal.Decimal
}

type executionJSON struct {
	OrderID     string          `json:"order_id"`
	TradeID     string          `json:"trade_id"`
	Symbol      string          `json:"symbol"`
	TradeDoneAt jsonx.Timestamp `json:"trade_done_at"`
	Quantity    jsonx.Decimal   `json:"quantity"`
	Price       jsonx.Decimal   `json:"price"`
}

type CashInfo struct {
	Currency      string
	WithdrawCash  decimal.Decimal
	AvailableCash decimal.Decimal
	FrozenCash    decimal.Decimal
	SettlingCash  decimal.Decimal
}

type AccountBalance struct {
	Currency               string
	TotalCash              decimal.Decimal
	MaxFinanceAmount       decimal.Decimal
	RemainingFinanceAmount decimal.Decimal
	RiskLevel              int32
	MarginCall             decimal.Decimal
	NetAssets              decimal.Decimal
	InitMargin             decimal.Decimal
	MaintenanceMargin      decimal.Decimal
	BuyPower               decimal.Decimal
	CashInfos              []CashInfo
}

type accountBalanceJSON struct {
	Currency               string        `json:"currency"`
	TotalCash              jsonx.Decimal `json:"total_cash"`
	MaxFinanceAmount       jsonx.Decimal `json:"max_finance_amount"`
	RemainingFinanceAmount jsonx.Decimal `json:"remaining_finance_amount"`
	RiskLevel              jsonx.Int64   `json:"risk_level"`
	MarginCall             jsonx.Decimal `json:"margin_call"`
	NetAssets              jsonx.Decimal `json:"net_assets"`
	InitMargin             jsonx.Decimal `json:"init_margin"`
	MaintenanceMargin      jsonx.Decimal `json:"maintenance_margin"`
	BuyPower               jsonx.Decimal `json:"buy_power"`
	CashInfos              []struct {
		Currency      string        `json:"currency"`
		WithdrawCash  jsonx.Decimal `json:"withdraw_cash"`
		AvailableCash jsonx.Decimal `json:"available_cash"`
		FrozenCash    jsonx.Decimal `json:"frozen_cash"`
		SettlingCash  jsonx.Decimal `json:"settling_cash"`
	} `json:"cash_infos"`
}

// CashFlowDirection is the money direction of a cash flow entry.
type CashFlowDirection int32

const (
	CashFlowUnknown CashFlowDirection = 0
	CashFlowOut     CashFlowDirection = 1
	CashFlowIn      CashFlowDirection = 2
)

type CashFlow struct {
	TransactionFlowName string
	Direction           CashFlowDirection
	BusinessType        int32
	Balance             decimal.Decimal
	Currency            string
	BusinessTime        time.Time
	Symbol              string
	Description         string
}

type cashFlowJSON struct {
	TransactionFlowName string          `json:"transaction_flow_name"`
	Direction           jsonx.Int64     `json:"direction"`
	BusinessType        jsonx.Int64     `json:"business_type"`
	Balance             jsonx.Decimal   `json:"balance"`
	Currency            string          `json:"currency"`
	BusinessTime        jsonx.Timestamp `json:"business_time"`
	Symbol              string          `json:"symbol"`
	Description         string          `json:"description"`
}

type FundPosition struct {
	AccountChannel       string
	Symbol               string
	SymbolName           string
	Currency             string
	CurrentNetAssetValue decimal.Decimal
	NetAssetValueDay     time.Time
	CostNetAssetValue    decimal.Decimal
	HoldingUnits         decimal.Decimal
}

type StockPosition struct {
	AccountChannel    string
	Symbol            string
	SymbolName        string
	Quantity          decimal.Decimal
	AvailableQuantity decimal.Decimal
	Currency          string
	CostPrice         decimal.Decimal
	Market            string
	InitQuantity      *decimal.Decimal
}

type MarginRatio struct {
	IMFactor decimal.Decimal
	MMFactor decimal.Decimal
	FMFactor decimal.Decimal
}

type EstimateMaxPurchaseQuantity struct {
	CashMaxQty   decimal.Decimal
	MarginMaxQty decimal.Decimal
}
