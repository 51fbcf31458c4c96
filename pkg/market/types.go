// Package market holds the realtime market-data types shared by the
// subscription registry, the local cache and the quote context.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSession identifies the trading session a quote or trade belongs to.
type TradeSession int32

const (
	SessionNormal    TradeSession = 0
	SessionPre       TradeSession = 1
	SessionPost      TradeSession = 2
	SessionOvernight TradeSession = 3
)

func (s TradeSession) String() string {
	switch s {
	case SessionNormal:
		return "normal"
	case SessionPre:
		return "pre"
	case SessionPost:
		return "post"
	case SessionOvernight:
		return "overnight"
	default:
		return "unknown"
	}
}

// TradeStatus is the security trading status.
type TradeStatus int32

const (
	StatusNormal             TradeStatus = 0
	StatusHalted             TradeStatus = 1
	StatusDelisted           TradeStatus = 2
	StatusFuse               TradeStatus = 3
	StatusPrepareList        TradeStatus = 4
	StatusCodeMoved          TradeStatus = 5
	StatusToBeOpened         TradeStatus = 6
	StatusSplitStockHalts    TradeStatus = 7
	StatusExpired            TradeStatus = 8
	StatusWarrantPrepareList TradeStatus = 9
	StatusSuspendTrade       TradeStatus = 10
)

// AdjustType selects price adjustment for candlestick queries.
type AdjustType int32

const (
	NoAdjust      AdjustType = 0
	ForwardAdjust AdjustType = 1
)

// SessionQuote is the extended-hours view of a quote.
type SessionQuote struct {
	LastDone  decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	PrevClose decimal.Decimal
}

// Quote is the latest pushed quote for a symbol.
type Quote struct {
	Symbol       string
	Sequence     int64
	LastDone     decimal.Decimal
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Timestamp    time.Time
	Volume       int64
	Turnover     decimal.Decimal
	TradeStatus  TradeStatus
	TradeSession TradeSession

	CurrentVolume   int64           // volume of the trade that produced this push
	CurrentTurnover decimal.Decimal // turnover of the trade that produced this push

	PreMarket  *SessionQuote
	PostMarket *SessionQuote
	Overnight  *SessionQuote
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Position int32
	Price    decimal.Decimal
	Volume   int64
	OrderNum int64
}

// Depth is a full order book snapshot.
type Depth struct {
	Symbol   string
	Sequence int64
	Asks     []DepthLevel
	Bids     []DepthLevel
}

// BrokerLevel lists the broker ids queued at one position.
type BrokerLevel struct {
	Position  int32
	BrokerIDs []int32
}

// Brokers is a full broker queue snapshot.
type Brokers struct {
	Symbol     string
	Sequence   int64
	AskBrokers []BrokerLevel
	BidBrokers []BrokerLevel
}

// TradeDirection is the aggressor side of a tick.
type TradeDirection int32

const (
	DirectionNeutral TradeDirection = 0
	DirectionDown    TradeDirection = 1
	DirectionUp      TradeDirection = 2
)

// Trade is a single tick.
type Trade struct {
	Price        decimal.Decimal
	Volume       int64
	Timestamp    time.Time
	TradeType    string
	Direction    TradeDirection
	TradeSession TradeSession
}

// Trades is one trade push; a push may carry several ticks.
type Trades struct {
	Symbol   string
	Sequence int64
	Trades   []Trade
}

// Candlestick is one bar. Timestamp is the bucket open time.
type Candlestick struct {
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Turnover  decimal.Decimal
	Timestamp time.Time
}

// CandlestickEvent is a realtime bar update for one (symbol, period).
// Confirmed bars are final for their bucket.
type CandlestickEvent struct {
	Symbol      string
	Period      Period
	Candlestick Candlestick
	Confirmed   bool
}
