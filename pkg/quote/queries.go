package quote

import (
	"context"
	"time"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
	"market-gateway/pkg/protocol"
)

func validateSymbol(symbol string) error {
	_, _, err := market.ParseSymbol(symbol)
	return err
}

func validateCount(count int) error {
	if count < 1 || count > maxQueryCount {
		return apierr.Invalid("count", "must be within 1..%d, got %d", maxQueryCount, count)
	}
	return nil
}

func validatePeriod(p Period) error {
	if !p.Valid() {
		return apierr.Invalid("period", "unsupported period %d", p)
	}
	return nil
}

// StaticInfo returns reference data, with names in the context language.
func (qc *QuoteContext) StaticInfo(ctx context.Context, symbols []string) ([]SecurityStaticInfo, error) {
	if err := market.ValidateSymbols(symbols); err != nil {
		return nil, err
	}
	var resp protocol.SecurityStaticInfoResponse
	if err := qc.request(ctx, protocol.CmdQuerySecurityStaticInfo, &protocol.MultiSecurityRequest{Symbol: symbols}, &resp); err != nil {
		return nil, err
	}
	out := make([]SecurityStaticInfo, 0, len(resp.SecuStaticInfo))
	for _, s := range resp.SecuStaticInfo {
		out = append(out, SecurityStaticInfo{
			Symbol:            s.Symbol,
			Name:              qc.cfg.Language.PickName(s.NameCN, s.NameEN, s.NameHK),
			Exchange:          s.Exchange,
			Currency:          s.Currency,
			LotSize:           s.LotSize,
			TotalShares:       s.TotalShares,
			CirculatingShares: s.CirculatingShares,
			HKShares:          s.HKShares,
			EPS:               dec(s.EPS),
			EPSTTM:            dec(s.EPSTTM),
			BPS:               dec(s.BPS),
			DividendYield:     dec(s.DividendYield),
			StockDerivatives:  s.StockDerivatives,
			Board:             s.Board,
		})
	}
	return out, nil
}

func securityQuote(q protocol.SecurityQuote) SecurityQuote {
	return SecurityQuote{
		Symbol:      q.Symbol,
		LastDone:    dec(q.LastDone),
		PrevClose:   dec(q.PrevClose),
		Open:        dec(q.Open),
		High:        dec(q.High),
		Low:         dec(q.Low),
		Timestamp:   unix(q.Timestamp),
		Volume:      q.Volume,
		Turnover:    dec(q.Turnover),
		TradeStatus: market.TradeStatus(q.TradeStatus),
		PreMarket:   toSessionQuote(q.PreMarketQuote),
		PostMarket:  toSessionQuote(q.PostMarketQuote),
		Overnight:   toSessionQuote(q.OverNightQuote),
	}
}

// Quote fetches point-in-time quotes. It does not touch the realtime cache.
func (qc *QuoteContext) Quote(ctx context.Context, symbols []string) ([]SecurityQuote, error) {
	if err := market.ValidateSymbols(symbols); err != nil {
		return nil, err
	}
	var resp protocol.SecurityQuoteResponse
	if err := qc.request(ctx, protocol.CmdQuerySecurityQuote, &protocol.MultiSecurityRequest{Symbol: symbols}, &resp); err != nil {
		return nil, err
	}
	out := make([]SecurityQuote, 0, len(resp.SecuQuote))
	for _, q := range resp.SecuQuote {
		out = append(out, securityQuote(q))
	}
	return out, nil
}

func (qc *QuoteContext) OptionQuote(ctx context.Context, symbols []string) ([]OptionQuote, error) {
	if err := market.ValidateSymbols(symbols); err != nil {
		return nil, err
	}
	var resp protocol.OptionQuoteResponse
	if err := qc.request(ctx, protocol.CmdQueryOptionQuote, &protocol.MultiSecurityRequest{Symbol: symbols}, &resp); err != nil {
		return nil, err
	}
	out := make([]OptionQuote, 0, len(resp.SecuQuote))
	for _, q := range resp.SecuQuote {
		oq := OptionQuote{SecurityQuote: securityQuote(protocol.SecurityQuote{
			Symbol: q.Symbol, LastDone: q.LastDone, PrevClose: q.PrevClose, Open: q.Open, High: q.High, Low: q.Low,
			Timestamp: q.Timestamp, Volume: q.Volume, Turnover: q.Turnover, TradeStatus: q.TradeStatus,
		})}
		if ext := q.OptionExtend; ext != nil {
			oq.ImpliedVolatility = dec(ext.ImpliedVolatility)
			oq.OpenInterest = ext.OpenInterest
			oq.ExpiryDate = parseDate(ext.ExpiryDate)
			oq.StrikePrice = dec(ext.StrikePrice)
			oq.ContractMultiplier = dec(ext.ContractMultiplier)
			oq.ContractType = ext.ContractType
			oq.Direction = ext.Direction
			oq.UnderlyingSymbol = ext.UnderlyingSymbol
		}
		out = append(out, oq)
	}
	return out, nil
}

func (qc *QuoteContext) WarrantQuote(ctx context.Context, symbols []string) ([]WarrantQuote, error) {
	if err := market.ValidateSymbols(symbols); err != nil {
		return nil, err
	}
	var resp protocol.WarrantQuoteResponse
	if err := qc.request(ctx, protocol.CmdQueryWarrantQuote, &protocol.MultiSecurityRequest{Symbol: symbols}, &resp); err != nil {
		return nil, err
	}
	out := make([]WarrantQuote, 0, len(resp.SecuQuote))
	for _, q := range resp.SecuQuote {
		wq := WarrantQuote{SecurityQuote: securityQuote(protocol.SecurityQuote{
			Symbol: q.Symbol, LastDone: q.LastDone, PrevClose: q.PrevClose, Open: q.Open, High: q.High, Low: q.Low,
			Timestamp: q.Timestamp, Volume: q.Volume, Turnover: q.Turnover, TradeStatus: q.TradeStatus,
		})}
		if ext := q.WarrantExtend; ext != nil {
			wq.ImpliedVolatility = dec(ext.ImpliedVolatility)
			wq.ExpiryDate = parseDate(ext.ExpiryDate)
			wq.LastTradeDate = parseDate(ext.LastTradeDate)
			wq.OutstandingRatio = dec(ext.OutstandingRatio)
			wq.OutstandingQty = ext.OutstandingQty
			wq.ConversionRatio = dec(ext.ConversionRatio)
			wq.Category = ext.Category
			wq.StrikePrice = dec(ext.StrikePrice)
			wq.CallPrice = dec(ext.CallPrice)
			wq.UnderlyingSymbol = ext.UnderlyingSymbol
		}
		out = append(out, wq)
	}
	return out, nil
}

func (qc *QuoteContext) Depth(ctx context.Context, symbol string) (Depth, error) {
	if err := validateSymbol(symbol); err != nil {
		return Depth{}, err
	}
	var resp protocol.SecurityDepthResponse
	if err := qc.request(ctx, protocol.CmdQueryDepth, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return Depth{}, err
	}
	return Depth{Symbol: symbol, Asks: depthLevels(resp.Ask), Bids: depthLevels(resp.Bid)}, nil
}

func (qc *QuoteContext) Brokers(ctx context.Context, symbol string) (Brokers, error) {
	if err := validateSymbol(symbol); err != nil {
		return Brokers{}, err
	}
	var resp protocol.SecurityBrokersResponse
	if err := qc.request(ctx, protocol.CmdQueryBrokers, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return Brokers{}, err
	}
	return Brokers{Symbol: symbol, AskBrokers: brokerLevels(resp.AskBrokers), BidBrokers: brokerLevels(resp.BidBrokers)}, nil
}

// Participants lists broker participants (HK market).
func (qc *QuoteContext) Participants(ctx context.Context) ([]ParticipantInfo, error) {
	var resp protocol.ParticipantBrokerIDsResponse
	if err := qc.request(ctx, protocol.CmdQueryParticipantBrokerIDs, &struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]ParticipantInfo, 0, len(resp.ParticipantBrokerNumbers))
	for _, p := range resp.ParticipantBrokerNumbers {
		out = append(out, ParticipantInfo{
			BrokerIDs: p.BrokerIDs,
			Name:      qc.cfg.Language.PickName(p.ParticipantNameCN, p.ParticipantNameEN, p.ParticipantNameHK),
		})
	}
	return out, nil
}

// Trades returns the newest count ticks; count is 1..1000.
func (qc *QuoteContext) Trades(ctx context.Context, symbol string, count int) ([]Trade, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := validateCount(count); err != nil {
		return nil, err
	}
	var resp protocol.SecurityTradeResponse
	req := &protocol.SecurityTradeRequest{Symbol: symbol, Count: int32(count)}
	if err := qc.request(ctx, protocol.CmdQueryTrade, req, &resp); err != nil {
		return nil, err
	}
	return trades(resp.Trades), nil
}

func (qc *QuoteContext) Intraday(ctx context.Context, symbol string) ([]IntradayLine, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	var resp protocol.SecurityIntradayResponse
	if err := qc.request(ctx, protocol.CmdQueryIntraday, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return nil, err
	}
	out := make([]IntradayLine, 0, len(resp.Lines))
	for _, l := range resp.Lines {
		out = append(out, IntradayLine{
			Price:     dec(l.Price),
			Timestamp: unix(l.Timestamp),
			Volume:    l.Volume,
			Turnover:  dec(l.Turnover),
			AvgPrice:  dec(l.AvgPrice),
		})
	}
	return out, nil
}

// Candlesticks returns the newest count bars; count is 1..1000.
func (qc *QuoteContext) Candlesticks(ctx context.Context, symbol string, period Period, count int, adjust AdjustType) ([]Candlestick, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if err := validateCount(count); err != nil {
		return nil, err
	}
	var resp protocol.SecurityCandlestickResponse
	req := &protocol.SecurityCandlestickRequest{Symbol: symbol, Period: int32(period), Count: int32(count), AdjustType: int32(adjust)}
	if err := qc.request(ctx, protocol.CmdQueryCandlestick, req, &resp); err != nil {
		return nil, err
	}
	return candlesticks(resp.Candlesticks), nil
}

// HistoryCandlesticksByOffset reads count bars on one side of anchor. A
// zero anchor means the latest bar.
func (qc *QuoteContext) HistoryCandlesticksByOffset(ctx context.Context, symbol string, period Period, adjust AdjustType, dir HistoryDirection, anchor time.Time, count int) ([]Candlestick, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if err := validateCount(count); err != nil {
		return nil, err
	}
	q := &protocol.HistoryOffsetQuery{Direction: int32(dir), Count: int32(count)}
	if !anchor.IsZero() {
		q.Date = formatDate(anchor)
		q.Minute = anchor.Format("1504")
	}
	return qc.history(ctx, &protocol.SecurityHistoryCandlestickRequest{
		Symbol:        symbol,
		Period:        int32(period),
		AdjustType:    int32(adjust),
		QueryType:     protocol.HistoryQueryByOffset,
		OffsetRequest: q,
	})
}

// HistoryCandlesticksByDate reads bars between two dates, inclusive. A zero
// bound is open.
func (qc *QuoteContext) HistoryCandlesticksByDate(ctx context.Context, symbol string, period Period, adjust AdjustType, start, end time.Time) ([]Candlestick, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, apierr.Invalid("end", "before start")
	}
	q := &protocol.HistoryDateQuery{}
	if !start.IsZero() {
		q.StartDate = formatDate(start)
	}
	if !end.IsZero() {
		q.EndDate = formatDate(end)
	}
	return qc.history(ctx, &protocol.SecurityHistoryCandlestickRequest{
		Symbol:      symbol,
		Period:      int32(period),
		AdjustType:  int32(adjust),
		QueryType:   protocol.HistoryQueryByDate,
		DateRequest: q,
	})
}

func (qc *QuoteContext) history(ctx context.Context, req *protocol.SecurityHistoryCandlestickRequest) ([]Candlestick, error) {
	var resp protocol.SecurityCandlestickResponse
	if err := qc.request(ctx, protocol.CmdQueryHistoryCandlestick, req, &resp); err != nil {
		return nil, err
	}
	return candlesticks(resp.Candlesticks), nil
}

func (qc *QuoteContext) OptionChainExpiryDateList(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	var resp protocol.OptionChainDateListResponse
	if err := qc.request(ctx, protocol.CmdQueryOptionChainDate, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(resp.ExpiryDate))
	for _, d := range resp.ExpiryDate {
		out = append(out, parseDate(d))
	}
	return out, nil
}

func (qc *QuoteContext) OptionChainInfoByDate(ctx context.Context, symbol string, expiry time.Time) ([]StrikePriceInfo, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if expiry.IsZero() {
		return nil, apierr.Invalid("expiry_date", "required")
	}
	var resp protocol.OptionChainDateStrikeInfoResponse
	req := &protocol.OptionChainDateStrikeInfoRequest{Symbol: symbol, ExpiryDate: formatDate(expiry)}
	if err := qc.request(ctx, protocol.CmdQueryOptionChainDateStrikeInfo, req, &resp); err != nil {
		return nil, err
	}
	out := make([]StrikePriceInfo, 0, len(resp.StrikePriceInfo))
	for _, s := range resp.StrikePriceInfo {
		out = append(out, StrikePriceInfo{Price: dec(s.Price), CallSymbol: s.CallSymbol, PutSymbol: s.PutSymbol, Standard: s.Standard})
	}
	return out, nil
}

func (qc *QuoteContext) WarrantIssuers(ctx context.Context) ([]IssuerInfo, error) {
	var resp protocol.IssuerInfoResponse
	if err := qc.request(ctx, protocol.CmdQueryWarrantIssuerInfo, &struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]IssuerInfo, 0, len(resp.IssuerInfo))
	for _, i := range resp.IssuerInfo {
		out = append(out, IssuerInfo{ID: i.ID, Name: qc.cfg.Language.PickName(i.NameCN, i.NameEN, i.NameHK)})
	}
	return out, nil
}

// WarrantList screens the warrants of an underlying. Total is the number of
// matches before paging.
func (qc *QuoteContext) WarrantList(ctx context.Context, symbol string, f WarrantFilter) (list []WarrantInfo, total int, err error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, 0, err
	}
	if f.Count < 0 || f.Offset < 0 {
		return nil, 0, apierr.Invalid("filter", "negative offset or count")
	}
	req := &protocol.WarrantFilterListRequest{
		Symbol: symbol,
		FilterConfig: &protocol.FilterConfig{
			SortBy:     f.SortBy,
			SortOrder:  f.SortOrder,
			SortOffset: f.Offset,
			SortCount:  f.Count,
			Type:       f.Types,
			Issuer:     f.Issuers,
			ExpiryDate: f.ExpiryDate,
			PriceType:  f.PriceType,
			Status:     f.Status,
		},
		Language: qc.cfg.Language.WireCode(),
	}
	var resp protocol.WarrantFilterListResponse
	if err := qc.request(ctx, protocol.CmdQueryWarrantFilterList, req, &resp); err != nil {
		return nil, 0, err
	}
	list = make([]WarrantInfo, 0, len(resp.WarrantList))
	for _, w := range resp.WarrantList {
		list = append(list, WarrantInfo{
			Symbol:            w.Symbol,
			Name:              w.Name,
			LastDone:          dec(w.LastDone),
			ChangeRate:        dec(w.ChangeRate),
			Volume:            w.Volume,
			Turnover:          dec(w.Turnover),
			ExpiryDate:        parseDate(w.ExpiryDate),
			StrikePrice:       dec(w.StrikePrice),
			ImpliedVolatility: dec(w.ImpliedVolatility),
			EffectiveLeverage: dec(w.EffectiveLeverage),
			State:             w.State,
		})
	}
	return list, int(resp.TotalCount), nil
}

// TradingSession lists the session windows of every market.
func (qc *QuoteContext) TradingSession(ctx context.Context) ([]MarketTradingSession, error) {
	var resp protocol.MarketTradePeriodResponse
	if err := qc.request(ctx, protocol.CmdQueryMarketTradePeriod, &struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]MarketTradingSession, 0, len(resp.MarketTradeSession))
	for _, m := range resp.MarketTradeSession {
		s := MarketTradingSession{Market: m.Market}
		for _, p := range m.TradeSession {
			s.Sessions = append(s.Sessions, TradingSessionInfo{
				BeginTime:    p.BegTime,
				EndTime:      p.EndTime,
				TradeSession: market.TradeSession(p.TradeSession),
			})
		}
		out = append(out, s)
	}
	return out, nil
}

// TradingDays lists trading and half trading days in [begin, end]. The
// range may span at most one month.
func (qc *QuoteContext) TradingDays(ctx context.Context, m market.Market, begin, end time.Time) (MarketTradingDays, error) {
	switch m {
	case market.MarketUS, market.MarketHK, market.MarketCN, market.MarketSG:
	default:
		return MarketTradingDays{}, apierr.Invalid("market", "unknown market %q", m)
	}
	if end.Before(begin) {
		return MarketTradingDays{}, apierr.Invalid("end", "before begin")
	}
	if end.After(begin.AddDate(0, 1, 0)) {
		return MarketTradingDays{}, apierr.Invalid("end", "range exceeds one month")
	}
	var resp protocol.MarketTradeDayResponse
	req := &protocol.MarketTradeDayRequest{Market: string(m), BegDay: formatDate(begin), EndDay: formatDate(end)}
	if err := qc.request(ctx, protocol.CmdQueryMarketTradeDay, req, &resp); err != nil {
		return MarketTradingDays{}, err
	}
	var out MarketTradingDays
	for _, d := range resp.TradeDay {
		out.TradingDays = append(out.TradingDays, parseDate(d))
	}
	for _, d := range resp.HalfTradeDay {
		out.HalfTradingDays = append(out.HalfTradingDays, parseDate(d))
	}
	return out, nil
}

func (qc *QuoteContext) CapitalFlow(ctx context.Context, symbol string) ([]CapitalFlowLine, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	var resp protocol.CapitalFlowIntradayResponse
	if err := qc.request(ctx, protocol.CmdQueryCapitalFlowIntraday, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return nil, err
	}
	out := make([]CapitalFlowLine, 0, len(resp.CapitalFlowLines))
	for _, l := range resp.CapitalFlowLines {
		out = append(out, CapitalFlowLine{Inflow: dec(l.Inflow), Timestamp: unix(l.Timestamp)})
	}
	return out, nil
}

func (qc *QuoteContext) CapitalDistribution(ctx context.Context, symbol string) (CapitalDistributionResponse, error) {
	if err := validateSymbol(symbol); err != nil {
		return CapitalDistributionResponse{}, err
	}
	var resp protocol.CapitalDistributionResponse
	if err := qc.request(ctx, protocol.CmdQueryCapitalFlowDistribution, &protocol.SecurityRequest{Symbol: symbol}, &resp); err != nil {
		return CapitalDistributionResponse{}, err
	}
	conv := func(d *protocol.CapitalDistribution) CapitalDistribution {
		if d == nil {
			return CapitalDistribution{}
		}
		return CapitalDistribution{Large: dec(d.Large), Medium: dec(d.Medium), Small: dec(d.Small)}
	}
	return CapitalDistributionResponse{
		Timestamp:  unix(resp.Timestamp),
		CapitalIn:  conv(resp.CapitalIn),
		CapitalOut: conv(resp.CapitalOut),
	}, nil
}

// CalcIndexes fetches derived indicators; fields not requested stay zero.
func (qc *QuoteContext) CalcIndexes(ctx context.Context, symbols []string, indexes []CalcIndex) ([]SecurityCalcIndex, error) {
	if err := market.ValidateSymbols(symbols); err != nil {
		return nil, err
	}
	if len(indexes) == 0 {
		return nil, apierr.Invalid("indexes", "empty index list")
	}
	wireIdx := make([]int32, 0, len(indexes))
	for _, i := range indexes {
		wireIdx = append(wireIdx, int32(i))
	}
	var resp protocol.SecurityCalcQuoteResponse
	req := &protocol.SecurityCalcQuoteRequest{Symbols: symbols, CalcIndex: wireIdx}
	if err := qc.request(ctx, protocol.CmdQuerySecurityCalcIndex, req, &resp); err != nil {
		return nil, err
	}
	out := make([]SecurityCalcIndex, 0, len(resp.SecurityCalcIndex))
	for _, c := range resp.SecurityCalcIndex {
		out = append(out, SecurityCalcIndex{
			Symbol:            c.Symbol,
			LastDone:          dec(c.LastDone),
			ChangeValue:       dec(c.ChangeVal),
			ChangeRate:        dec(c.ChangeRate),
			Volume:            c.Volume,
			Turnover:          dec(c.Turnover),
			YtdChangeRate:     dec(c.YtdChangeRate),
			TurnoverRate:      dec(c.TurnoverRate),
			TotalMarketValue:  dec(c.TotalMarketValue),
			CapitalFlow:       dec(c.CapitalFlow),
			Amplitude:         dec(c.Amplitude),
			VolumeRatio:       dec(c.VolumeRatio),
			PeTTMRatio:        dec(c.PeTTMRatio),
			PbRatio:           dec(c.PbRatio),
			DividendRatioTTM:  dec(c.DividendRatioTTM),
			ImpliedVolatility: dec(c.ImpliedVolatility),
			Delta:             dec(c.Delta),
		})
	}
	return out, nil
}
