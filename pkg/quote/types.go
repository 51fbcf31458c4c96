package quote

import (
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/pkg/market"
)

// Realtime data types are shared with the cache.
type (
	Quote            = market.Quote
	SessionQuote     = market.SessionQuote
	Depth            = market.Depth
	DepthLevel       = market.DepthLevel
	Brokers          = market.Brokers
	BrokerLevel      = market.BrokerLevel
	Trade            = market.Trade
	Trades           = market.Trades
	Candlestick      = market.Candlestick
	CandlestickEvent = market.CandlestickEvent
	SubFlags         = market.SubFlags
	Period           = market.Period
	AdjustType       = market.AdjustType
)

// Subscription is one symbol's current subscription.
type Subscription struct {
	Symbol       string
	SubTypes     SubFlags
	Candlesticks []Period
}

// SecurityStaticInfo is basic reference data with the name picked in the
// context language.
type SecurityStaticInfo struct {
	Symbol            string
	Name              string
	Exchange          string
	Currency          string
	LotSize           int32
	TotalShares       int64
	CirculatingShares int64
	HKShares          int64
	EPS               decimal.Decimal
	EPSTTM            decimal.Decimal
	BPS               decimal.Decimal
	DividendYield     decimal.Decimal
	StockDerivatives  []int32
	Board             string
}

// SecurityQuote is a point-in-time quote from the server.
type SecurityQuote struct {
	Symbol      string
	LastDone    decimal.Decimal
	PrevClose   decimal.Decimal
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Timestamp   time.Time
	Volume      int64
	Turnover    decimal.Decimal
	TradeStatus market.TradeStatus
	PreMarket   *SessionQuote
	PostMarket  *SessionQuote
	Overnight   *SessionQuote
}

// OptionQuote carries the option-specific extension.
type OptionQuote struct {
	SecurityQuote
	ImpliedVolatility  decimal.Decimal
	OpenInterest       int64
	ExpiryDate         time.Time
	StrikePrice        decimal.Decimal
	ContractMultiplier decimal.Decimal
	ContractType       string
	Direction          string
	UnderlyingSymbol   string
}

// WarrantQuote carries the warrant-specific extension.
type WarrantQuote struct {
	SecurityQuote
	ImpliedVolatility decimal.Decimal
	ExpiryDate        time.Time
	LastTradeDate     time.Time
	OutstandingRatio  decimal.Decimal
	OutstandingQty    int64
	ConversionRatio   decimal.Decimal
	Category          string
	StrikePrice       decimal.Decimal
	CallPrice         decimal.Decimal
	UnderlyingSymbol  string
}

type ParticipantInfo struct {
	BrokerIDs []int32
	Name      string
}

type IntradayLine struct {
	Price     decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  decimal.Decimal
	AvgPrice  decimal.Decimal
}

type StrikePriceInfo struct {
	Price      decimal.Decimal
	CallSymbol string
	PutSymbol  string
	Standard   bool
}

type IssuerInfo struct {
	ID   int32
	Name string
}

// WarrantFilter narrows WarrantList. Zero values mean no filter.
type WarrantFilter struct {
	SortBy     int32
	SortOrder  int32
	Offset     int32
	Count      int32
	Types      []int32
	Issuers    []int32
	ExpiryDate []int32
	PriceType  []int32
	Status     []int32
}

type WarrantInfo struct {
	Symbol            string
	Name              string
	LastDone          decimal.Decimal
	ChangeRate        decimal.Decimal
	Volume            int64
	Turnover          decimal.Decimal
	ExpiryDate        time.Time
	StrikePrice       decimal.Decimal
	ImpliedVolatility decimal.Decimal
	EffectiveLeverage decimal.Decimal
	State             string
}

// TradingSessionInfo is one session window in market local time (hhmm).
type TradingSessionInfo struct {
	BeginTime    int32
	EndTime      int32
	TradeSession market.TradeSession
}

type MarketTradingSession struct {
	Market   string
	Sessions []TradingSessionInfo
}

type MarketTradingDays struct {
	TradingDays     []time.Time
	HalfTradingDays []time.Time
}

type CapitalFlowLine struct {
	Inflow    decimal.Decimal
	Timestamp time.Time
}

type CapitalDistribution struct {
	Large  decimal.Decimal
	Medium decimal.Decimal
	Small  decimal.Decimal
}

type CapitalDistributionResponse struct {
	Timestamp  time.Time
	CapitalIn  CapitalDistribution
	CapitalOut CapitalDistribution
}

// CalcIndex selects a derived indicator for CalcIndexes.
type CalcIndex int32

const (
	CalcIndexLastDone          CalcIndex = 1
	CalcIndexChangeValue       CalcIndex = 2
	CalcIndexChangeRate        CalcIndex = 3
	CalcIndexVolume            CalcIndex = 4
	CalcIndexTurnover          CalcIndex = 5
	CalcIndexYtdChangeRate     CalcIndex = 6
	CalcIndexTurnoverRate      CalcIndex = 7
	CalcIndexTotalMarketValue  CalcIndex = 8
	CalcIndexCapitalFlow       CalcIndex = 9
	CalcIndexAmplitude         CalcIndex = 10
	CalcIndexVolumeRatio       CalcIndex = 11
	CalcIndexPeTTMRatio        CalcIndex = 12
	CalcIndexPbRatio           CalcIndex = 13
	CalcIndexDividendRatioTTM  CalcIndex = 14
	CalcIndexImpliedVolatility CalcIndex = 26
	CalcIndexDelta             CalcIndex = 36
)

// SecurityCalcIndex holds the requested indexes; unrequested fields are zero.
type SecurityCalcIndex struct {
	Symbol            string
	LastDone          decimal.Decimal
	ChangeValue       decimal.Decimal
	ChangeRate        decimal.Decimal
	Volume            int64
	Turnover          decimal.Decimal
	YtdChangeRate     decimal.Decimal
	TurnoverRate      decimal.Decimal
	TotalMarketValue  decimal.Decimal
	CapitalFlow       decimal.Decimal
	Amplitude         decimal.Decimal
	VolumeRatio       decimal.Decimal
	PeTTMRatio        decimal.Decimal
	PbRatio           decimal.Decimal
	DividendRatioTTM  decimal.Decimal
	ImpliedVolatility decimal.Decimal
	Delta             decimal.Decimal
}

// HistoryDirection picks which side of the anchor an offset query reads.
type HistoryDirection int32

const (
	HistoryBackward HistoryDirection = 0
	HistoryForward  HistoryDirection = 1
)
