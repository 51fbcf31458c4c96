package trade

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"market-gateway/internal/jsonx"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

const (
	accountPath     = "/v1/asset/account"
	cashFlowPath    = "/v1/asset/cashflow"
	fundPath        = "/v1/asset/fund"
	stockPath       = "/v1/asset/stock"
	marginRatioPath = "/v1/risk/margin-ratio"
)

// AccountBalance returns balances, optionally for one currency.
func (tc *TradeContext) AccountBalance(ctx context.Context, currency string) ([]AccountBalance, error) {
	q := url.Values{}
	if currency != "" {
		q.Set("currency", currency)
	}
	var resp struct {
		List []accountBalanceJSON `json:"list"`
	}
	if err := tc.http.Get(ctx, accountPath, q, &resp); err != nil {
		return nil, fmt.Errorf("account balance: %w", err)
	}
	out := make([]AccountBalance, 0, len(resp.List))
	for _, a := range resp.List {
		b := AccountBalance{
			Currency:               a.Currency,
			TotalCash:              a.TotalCash.Decimal,
			MaxFinanceAmount:       a.MaxFinanceAmount.Decimal,
			RemainingFinanceAmount: a.RemainingFinanceAmount.Decimal,
			RiskLevel:              int32(a.RiskLevel),
			MarginCall:             a.MarginCall.Decimal,
			NetAssets:              a.NetAssets.Decimal,
			InitMargin:             a.InitMargin.Decimal,
			MaintenanceMargin:      a.MaintenanceMargin.Decimal,
			BuyPower:               a.BuyPower.Decimal,
		}
		for _, c := range a.CashInfos {
			b.CashInfos = append(b.CashInfos, CashInfo{
				Currency:      c.Currency,
				WithdrawCash:  c.WithdrawCash.Decimal,
				AvailableCash: c.AvailableCash.Decimal,
				FrozenCash:    c.FrozenCash.Decimal,
				SettlingCash:  c.SettlingCash.Decimal,
			})
		}
		out = append(out, b)
	}
	return out, nil
}

// CashFlowFilter selects cash flow entries; StartAt and EndAt are required.
type CashFlowFilter struct {
	StartAt      time.Time
	EndAt        time.Time
	BusinessType int32
	Symbol       string
	Page         int
	Size         int
}

func (tc *TradeContext) CashFlow(ctx context.Context, f CashFlowFilter) ([]CashFlow, error) {
	q := url.Values{}
	if err := timeRange(q, "start_time", "end_time", f.StartAt, f.EndAt, true); err != nil {
		return nil, err
	}
	if f.BusinessType != 0 {
		q.Set("business_type", strconv.Itoa(int(f.BusinessType)))
	}
	if f.Symbol != "" {
		if _, _, err := market.ParseSymbol(f.Symbol); err != nil {
			return nil, err
		}
		q.Set("symbol", f.Symbol)
	}
	if f.Page < 0 || f.Size < 0 {
		return nil, apierr.Invalid("page", "negative paging")
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}
	var resp struct {
		List []cashFlowJSON `json:"list"`
	}
	if err := tc.http.Get(ctx, cashFlowPath, q, &resp); err != nil {
		return nil, fmt.Errorf("cash flow: %w", err)
	}
	out := make([]CashFlow, 0, len(resp.List))
	for _, c := range resp.List {
		out = append(out, CashFlow{
			TransactionFlowName: c.TransactionFlowName,
			Direction:           CashFlowDirection(c.Direction),
			BusinessType:        int32(c.BusinessType),
			Balance:             c.Balance.Decimal,
			Currency:            c.Currency,
			BusinessTime:        c.BusinessTime.Time,
			Symbol:              c.Symbol,
			Description:         c.Description,
		})
	}
	return out, nil
}

func symbolsQuery(symbols []string) (url.Values, error) {
	q := url.Values{}
	for _, s := range symbols {
		if _, _, err := market.ParseSymbol(s); err != nil {
			return nil, err
		}
		q.Add("symbol", s)
	}
	return q, nil
}

// FundPositions lists fund holdings, optionally only the given symbols.
func (tc *TradeContext) FundPositions(ctx context.Context, symbols []string) ([]FundPosition, error) {
	q, err := symbolsQuery(symbols)
	if err != nil {
		return nil, err
	}
	var resp struct {
		List []struct {
			AccountChannel string `json:"account_channel"`
			FundInfo       []struct {
				Symbol               string        `json:"symbol"`
				SymbolName           string        `json:"symbol_name"`
				Currency             string        `json:"currency"`
				CurrentNetAssetValue jsonx.Decimal `json:"current_net_asset_value"`
				NetAssetValueDay     jsonx.Date    `json:"net_asset_value_day"`
				CostNetAssetValue    jsonx.Decimal `json:"cost_net_asset_value"`
				HoldingUnits         jsonx.Decimal `json:"holding_units"`
			} `json:"fund_info"`
		} `json:"list"`
	}
	if err := tc.http.Get(ctx, fundPath, q, &resp); err != nil {
		return nil, fmt.Errorf("fund positions: %w", err)
	}
	var out []FundPosition
	for _, ch := range resp.List {
		for _, f := range ch.FundInfo {
			out = append(out, FundPosition{
				AccountChannel:       ch.AccountChannel,
				Symbol:               f.Symbol,
				SymbolName:           f.SymbolName,
				Currency:             f.Currency,
				CurrentNetAssetValue: f.CurrentNetAssetValue.Decimal,
				NetAssetValueDay:     f.NetAssetValueDay.Time,
				CostNetAssetValue:    f.CostNetAssetValue.Decimal,
				HoldingUnits:         f.HoldingUnits.Decimal,
			})
		}
	}
	return out, nil
}

// StockPositions lists stock holdings, optionally only the given symbols.
func (tc *TradeContext) StockPositions(ctx context.Context, symbols []string) ([]StockPosition, error) {
	q, err := symbolsQuery(symbols)
	if err != nil {
		return nil, err
	}
	var resp struct {
		List []struct {
			AccountChannel string `json:"account_channel"`
			StockInfo      []struct {
				Symbol            string        `json:"symbol"`
				SymbolName        string        `json:"symbol_name"`
				Quantity          jsonx.Decimal `json:"quantity"`
				AvailableQuantity jsonx.Decimal `json:"available_quantity"`
				Currency          string        `json:"currency"`
				CostPrice         jsonx.Decimal `json:"cost_price"`
				Market            string        `json:"market"`
				InitQuantity      jsonx.Decimal `json:"init_quantity"`
			} `json:"stock_info"`
		} `json:"list"`
	}
	if err := tc.http.Get(ctx, stockPath, q, &resp); err != nil {
		return nil, fmt.Errorf("stock positions: %w", err)
	}
	var out []StockPosition
	for _, ch := range resp.List {
		for _, s := range ch.StockInfo {
			out = append(out, StockPosition{
				AccountChannel:    ch.AccountChannel,
				Symbol:            s.Symbol,
				SymbolName:        s.SymbolName,
				Quantity:          s.Quantity.Decimal,
				AvailableQuantity: s.AvailableQuantity.Decimal,
				Currency:          s.Currency,
				CostPrice:         s.CostPrice.Decimal,
				Market:            s.Market,
				InitQuantity:      s.InitQuantity.Ptr(),
			})
		}
	}
	return out, nil
}

func (tc *TradeContext) MarginRatio(ctx context.Context, symbol string) (MarginRatio, error) {
	if _, _, err := market.ParseSymbol(symbol); err != nil {
		return MarginRatio{}, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	var resp struct {
		IMFactor jsonx.Decimal `json:"im_factor"`
		MMFactor jsonx.Decimal `json:"mm_factor"`
		FMFactor jsonx.Decimal `json:"fm_factor"`
	}
	if err := tc.http.Get(ctx, marginRatioPath, q, &resp); err != nil {
		return MarginRatio{}, fmt.Errorf("margin ratio: %w", err)
	}
	return MarginRatio{IMFactor: resp.IMFactor.Decimal, MMFactor: resp.MMFactor.Decimal, FMFactor: resp.FMFactor.Decimal}, nil
}
