package protocol

// Quote gateway command codes.
const (
	CmdSubscription                   uint8 = 5
	CmdSubscribe                      uint8 = 6
	CmdUnsubscribe                    uint8 = 7
	CmdQueryMarketTradePeriod         uint8 = 8
	CmdQueryMarketTradeDay            uint8 = 9
	CmdQuerySecurityStaticInfo        uint8 = 10
	CmdQuerySecurityQuote             uint8 = 11
	CmdQueryOptionQuote               uint8 = 12
	CmdQueryWarrantQuote              uint8 = 13
	CmdQueryDepth                     uint8 = 14
	CmdQueryBrokers                   uint8 = 15
	CmdQueryParticipantBrokerIDs      uint8 = 16
	CmdQueryTrade                     uint8 = 17
	CmdQueryIntraday                  uint8 = 18
	CmdQueryCandlestick               uint8 = 19
	CmdQueryOptionChainDate           uint8 = 20
	CmdQueryOptionChainDateStrikeInfo uint8 = 21
	CmdQueryWarrantIssuerInfo         uint8 = 22
	CmdQueryWarrantFilterList         uint8 = 23
	CmdQueryCapitalFlowIntraday       uint8 = 24
	CmdQueryCapitalFlowDistribution   uint8 = 25
	CmdQuerySecurityCalcIndex         uint8 = 26
	CmdQueryHistoryCandlestick        uint8 = 27

	CmdPushQuote   uint8 = 101
	CmdPushDepth   uint8 = 102
	CmdPushBrokers uint8 = 103
	CmdPushTrade   uint8 = 104
)

// SubType values on the wire; the client side uses market.SubFlags.
const (
	SubTypeQuote   int32 = 1
	SubTypeDepth   int32 = 2
	SubTypeBrokers int32 = 3
	SubTypeTrade   int32 = 4
)

type SecurityRequest struct {
	Symbol string `pb:"1"`
}

type MultiSecurityRequest struct {
	Symbol []string `pb:"1"`
}

type SubscribeRequest struct {
	Symbol      []string `pb:"1"`
	SubType     []int32  `pb:"2"`
	IsFirstPush bool     `pb:"3"`
}

type UnsubscribeRequest struct {
	Symbol   []string `pb:"1"`
	SubType  []int32  `pb:"2"`
	UnsubAll bool     `pb:"3"`
}

type SubscriptionRequest struct{}

type SubscriptionResponse struct {
	SubList []SubTypeList `pb:"1"`
}

type SubTypeList struct {
	Symbol  string  `pb:"1"`
	SubType []int32 `pb:"2"`
}

type SecurityStaticInfoResponse struct {
	SecuStaticInfo []StaticInfo `pb:"1"`
}

type StaticInfo struct {
	Symbol            string  `pb:"1"`
	NameCN            string  `pb:"2"`
	NameEN            string  `pb:"3"`
	NameHK            string  `pb:"4"`
	ListingDate       string  `pb:"5"`
	Exchange          string  `pb:"6"`
	Currency          string  `pb:"7"`
	LotSize           int32   `pb:"8"`
	TotalShares       int64   `pb:"9"`
	CirculatingShares int64   `pb:"10"`
	HKShares          int64   `pb:"11"`
	EPS               string  `pb:"12"`
	EPSTTM            string  `pb:"13"`
	BPS               string  `pb:"14"`
	DividendYield     string  `pb:"15"`
	StockDerivatives  []int32 `pb:"16"`
	Board             string  `pb:"17"`
}

type SecurityQuoteResponse struct {
	SecuQuote []SecurityQuote `pb:"1"`
}

type SecurityQuote struct {
	Symbol          string        `pb:"1"`
	LastDone        string        `pb:"2"`
	PrevClose       string        `pb:"3"`
	Open            string        `pb:"4"`
	High            string        `pb:"5"`
	Low             string        `pb:"6"`
	Timestamp       int64         `pb:"7"`
	Volume          int64         `pb:"8"`
	Turnover        string        `pb:"9"`
	TradeStatus     int32         `pb:"10"`
	PreMarketQuote  *PrePostQuote `pb:"11"`
	PostMarketQuote *PrePostQuote `pb:"12"`
	OverNightQuote  *PrePostQuote `pb:"13"`
}

type PrePostQuote struct {
	LastDone  string `pb:"1"`
	Timestamp int64  `pb:"2"`
	Volume    int64  `pb:"3"`
	Turnover  string `pb:"4"`
	High      string `pb:"5"`
	Low       string `pb:"6"`
	PrevClose string `pb:"7"`
}

type OptionQuoteResponse struct {
	SecuQuote []OptionQuote `pb:"1"`
}

type OptionQuote struct {
	Symbol       string        `pb:"1"`
	LastDone     string        `pb:"2"`
	PrevClose    string        `pb:"3"`
	Open         string        `pb:"4"`
	High         string        `pb:"5"`
	Low          string        `pb:"6"`
	Timestamp    int64         `pb:"7"`
	Volume       int64         `pb:"8"`
	Turnover     string        `pb:"9"`
	TradeStatus  int32         `pb:"10"`
	OptionExtend *OptionExtend `pb:"11"`
}

type OptionExtend struct {
	ImpliedVolatility    string `pb:"1"`
	OpenInterest         int64  `pb:"2"`
	ExpiryDate           string `pb:"3"`
	StrikePrice          string `pb:"4"`
	ContractMultiplier   string `pb:"5"`
	ContractType         string `pb:"6"`
	ContractSize         string `pb:"7"`
	Direction            string `pb:"8"`
	HistoricalVolatility string `pb:"9"`
	UnderlyingSymbol     string `pb:"10"`
}

type WarrantQuoteResponse struct {
	SecuQuote []WarrantQuote `pb:"2"`
}

type WarrantQuote struct {
	Symbol        string         `pb:"1"`
	LastDone      string         `pb:"2"`
	PrevClose     string         `pb:"3"`
	Open          string         `pb:"4"`
	High          string         `pb:"5"`
	Low           string         `pb:"6"`
	Timestamp     int64          `pb:"7"`
	Volume        int64          `pb:"8"`
	Turnover      string         `pb:"9"`
	TradeStatus   int32          `pb:"10"`
	WarrantExtend *WarrantExtend `pb:"11"`
}

type WarrantExtend struct {
	ImpliedVolatility string `pb:"1"`
	ExpiryDate        string `pb:"2"`
	LastTradeDate     string `pb:"3"`
	OutstandingRatio  string `pb:"4"`
	OutstandingQty    int64  `pb:"5"`
	ConversionRatio   string `pb:"6"`
	Category          string `pb:"7"`
	StrikePrice       string `pb:"8"`
	UpperStrikePrice  string `pb:"9"`
	LowerStrikePrice  string `pb:"10"`
	CallPrice         string `pb:"11"`
	UnderlyingSymbol  string `pb:"12"`
}

type SecurityDepthResponse struct {
	Symbol string  `pb:"1"`
	Ask    []Depth `pb:"2"`
	Bid    []Depth `pb:"3"`
}

type Depth struct {
	Position int32  `pb:"1"`
	Price    string `pb:"2"`
	Volume   int64  `pb:"3"`
	OrderNum int64  `pb:"4"`
}

type SecurityBrokersResponse struct {
	Symbol     string    `pb:"1"`
	AskBrokers []Brokers `pb:"2"`
	BidBrokers []Brokers `pb:"3"`
}

type Brokers struct {
	Position  int32   `pb:"1"`
	BrokerIDs []int32 `pb:"2"`
}

type ParticipantBrokerIDsResponse struct {
	ParticipantBrokerNumbers []ParticipantInfo `pb:"1"`
}

type ParticipantInfo struct {
	BrokerIDs         []int32 `pb:"1"`
	ParticipantNameCN string  `pb:"2"`
	ParticipantNameEN string  `pb:"3"`
	ParticipantNameHK string  `pb:"4"`
}

type SecurityTradeRequest struct {
	Symbol string `pb:"1"`
	Count  int32  `pb:"2"`
}

type SecurityTradeResponse struct {
	Symbol string  `pb:"1"`
	Trades []Trade `pb:"2"`
}

type Trade struct {
	Price        string `pb:"1"`
	Volume       int64  `pb:"2"`
	Timestamp    int64  `pb:"3"`
	TradeType    string `pb:"4"`
	Direction    int32  `pb:"5"`
	TradeSession int32  `pb:"6"`
}

type SecurityIntradayResponse struct {
	Symbol string `pb:"1"`
	Lines  []Line `pb:"2"`
}

type Line struct {
	Price     string `pb:"1"`
	Timestamp int64  `pb:"2"`
	Volume    int64  `pb:"3"`
	Turnover  string `pb:"4"`
	AvgPrice  string `pb:"5"`
}

type SecurityCandlestickRequest struct {
	Symbol     string `pb:"1"`
	Period     int32  `pb:"2"`
	Count      int32  `pb:"3"`
	AdjustType int32  `pb:"4"`
}

type SecurityCandlestickResponse struct {
	Symbol       string        `pb:"1"`
	Candlesticks []Candlestick `pb:"2"`
}

type Candlestick struct {
	Close     string `pb:"1"`
	Open      string `pb:"2"`
	Low       string `pb:"3"`
	High      string `pb:"4"`
	Volume    int64  `pb:"5"`
	Turnover  string `pb:"6"`
	Timestamp int64  `pb:"7"`
}

// History candlestick query kinds.
const (
	HistoryQueryByOffset int32 = 1
	HistoryQueryByDate   int32 = 2
)

type SecurityHistoryCandlestickRequest struct {
	Symbol        string              `pb:"1"`
	Period        int32               `pb:"2"`
	AdjustType    int32               `pb:"3"`
	QueryType     int32               `pb:"4"`
	OffsetRequest *HistoryOffsetQuery `pb:"5"`
	DateRequest   *HistoryDateQuery   `pb:"6"`
}

type HistoryOffsetQuery struct {
	Direction int32  `pb:"1"` // 0 backward, 1 forward
	Date      string `pb:"2"` // yyyymmdd
	Minute    string `pb:"3"` // hhmm
	Count     int32  `pb:"4"`
}

type HistoryDateQuery struct {
	StartDate string `pb:"1"`
	EndDate   string `pb:"2"`
}

type OptionChainDateListResponse struct {
	ExpiryDate []string `pb:"1"`
}

type OptionChainDateStrikeInfoRequest struct {
	Symbol     string `pb:"1"`
	ExpiryDate string `pb:"2"`
}

type OptionChainDateStrikeInfoResponse struct {
	StrikePriceInfo []StrikePriceInfo `pb:"1"`
}

type StrikePriceInfo struct {
	Price      string `pb:"1"`
	CallSymbol string `pb:"2"`
	PutSymbol  string `pb:"3"`
	Standard   bool   `pb:"4"`
}

type IssuerInfoResponse struct {
	IssuerInfo []IssuerInfo `pb:"1"`
}

type IssuerInfo struct {
	ID     int32  `pb:"1"`
	NameCN string `pb:"2"`
	NameEN string `pb:"3"`
	NameHK string `pb:"4"`
}

type WarrantFilterListRequest struct {
	Symbol       string        `pb:"1"`
	FilterConfig *FilterConfig `pb:"2"`
	Language     int32         `pb:"3"`
}

type FilterConfig struct {
	SortBy     int32   `pb:"1"`
	SortOrder  int32   `pb:"2"`
	SortOffset int32   `pb:"3"`
	SortCount  int32   `pb:"4"`
	Type       []int32 `pb:"5"`
	Issuer     []int32 `pb:"6"`
	ExpiryDate []int32 `pb:"7"`
	PriceType  []int32 `pb:"8"`
	Status     []int32 `pb:"9"`
}

type WarrantFilterListResponse struct {
	WarrantList []FilterWarrant `pb:"1"`
	TotalCount  int32           `pb:"2"`
}

type FilterWarrant struct {
	Symbol            string `pb:"1"`
	Name              string `pb:"2"`
	LastDone          string `pb:"3"`
	ChangeRate        string `pb:"4"`
	ChangeVal         string `pb:"5"`
	Volume            int64  `pb:"6"`
	Turnover          string `pb:"7"`
	ExpiryDate        string `pb:"8"`
	StrikePrice       string `pb:"9"`
	UpperStrikePrice  string `pb:"10"`
	LowerStrikePrice  string `pb:"11"`
	OutstandingQty    string `pb:"12"`
	OutstandingRatio  string `pb:"13"`
	Premium           string `pb:"14"`
	ItmOtm            string `pb:"15"`
	ImpliedVolatility string `pb:"16"`
	Delta             string `pb:"17"`
	CallPrice         string `pb:"18"`
	ToCallPrice       string `pb:"19"`
	EffectiveLeverage string `pb:"20"`
	LeverageRatio     string `pb:"21"`
	ConversionRatio   string `pb:"22"`
	BalancePoint      string `pb:"23"`
	State             string `pb:"24"`
}

type MarketTradePeriodResponse struct {
	MarketTradeSession []MarketTradePeriod `pb:"1"`
}

type MarketTradePeriod struct {
	Market       string        `pb:"1"`
	TradeSession []TradePeriod `pb:"2"`
}

type TradePeriod struct {
	BegTime      int32 `pb:"1"` // hhmm
	EndTime      int32 `pb:"2"`
	TradeSession int32 `pb:"3"`
}

type MarketTradeDayRequest struct {
	Market string `pb:"1"`
	BegDay string `pb:"2"`
	EndDay string `pb:"3"`
}

type MarketTradeDayResponse struct {
	TradeDay     []string `pb:"1"`
	HalfTradeDay []string `pb:"2"`
}

type CapitalFlowIntradayResponse struct {
	Symbol           string            `pb:"1"`
	CapitalFlowLines []CapitalFlowLine `pb:"2"`
}

type CapitalFlowLine struct {
	Inflow    string `pb:"1"`
	Timestamp int64  `pb:"2"`
}

type CapitalDistributionResponse struct {
	Symbol     string               `pb:"1"`
	Timestamp  int64                `pb:"2"`
	CapitalIn  *CapitalDistribution `pb:"3"`
	CapitalOut *CapitalDistribution `pb:"4"`
}

type CapitalDistribution struct {
	Large  string `pb:"1"`
	Medium string `pb:"2"`
	Small  string `pb:"3"`
}

type SecurityCalcQuoteRequest struct {
	Symbols   []string `pb:"1"`
	CalcIndex []int32  `pb:"2"`
}

type SecurityCalcQuoteResponse struct {
	SecurityCalcIndex []SecurityCalcIndex `pb:"1"`
}

type SecurityCalcIndex struct {
	Symbol                string `pb:"1"`
	LastDone              string `pb:"2"`
	ChangeVal             string `pb:"3"`
	ChangeRate            string `pb:"4"`
	Volume                int64  `pb:"5"`
	Turnover              string `pb:"6"`
	YtdChangeRate         string `pb:"7"`
	TurnoverRate          string `pb:"8"`
	TotalMarketValue      string `pb:"9"`
	CapitalFlow           string `pb:"10"`
	Amplitude             string `pb:"11"`
	VolumeRatio           string `pb:"12"`
	PeTTMRatio            string `pb:"13"`
	PbRatio               string `pb:"14"`
	DividendRatioTTM      string `pb:"15"`
	FiveDayChangeRate     string `pb:"16"`
	TenDayChangeRate      string `pb:"17"`
	HalfYearChangeRate    string `pb:"18"`
	FiveMinutesChangeRate string `pb:"19"`
	ExpiryDate            string `pb:"20"`
	StrikePrice           string `pb:"21"`
	UpperStrikePrice      string `pb:"22"`
	LowerStrikePrice      string `pb:"23"`
	OutstandingQty        int64  `pb:"24"`
	OutstandingRatio      string `pb:"25"`
	Premium               string `pb:"26"`
	ItmOtm                string `pb:"27"`
	ImpliedVolatility     string `pb:"28"`
	WarrantDelta          string `pb:"29"`
	CallPrice             string `pb:"30"`
	ToCallPrice           string `pb:"31"`
	EffectiveLeverage     string `pb:"32"`
	LeverageRatio         string `pb:"33"`
	ConversionRatio       string `pb:"34"`
	BalancePoint          string `pb:"35"`
	OpenInterest          int64  `pb:"36"`
	Delta                 string `pb:"37"`
	Gamma                 string `pb:"38"`
	Theta                 string `pb:"39"`
	Vega                  string `pb:"40"`
	Rho                   string `pb:"41"`
}

type PushQuote struct {
	Symbol          string `pb:"1"`
	Sequence        int64  `pb:"2"`
	LastDone        string `pb:"3"`
	Open            string `pb:"4"`
	High            string `pb:"5"`
	Low             string `pb:"6"`
	Timestamp       int64  `pb:"7"`
	Volume          int64  `pb:"8"`
	Turnover        string `pb:"9"`
	TradeStatus     int32  `pb:"10"`
	TradeSession    int32  `pb:"11"`
	CurrentVolume   int64  `pb:"12"`
	CurrentTurnover string `pb:"13"`
}

type PushDepth struct {
	Symbol   string  `pb:"1"`
	Sequence int64   `pb:"2"`
	Ask      []Depth `pb:"3"`
	Bid      []Depth `pb:"4"`
}

type PushBrokers struct {
	Symbol     string    `pb:"1"`
	Sequence   int64     `pb:"2"`
	AskBrokers []Brokers `pb:"3"`
	BidBrokers []Brokers `pb:"4"`
}

type PushTrade struct {
	Symbol   string  `pb:"1"`
	Sequence int64   `pb:"2"`
	Trade    []Trade `pb:"3"`
}
