package trade

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"market-gateway/internal/jsonx"
	"market-gateway/internal/order"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
)

const (
	orderPath            = "/v1/trade/order"
	todayOrdersPath      = "/v1/trade/order/today"
	historyOrdersPath    = "/v1/trade/order/history"
	todayExecutionsPath  = "/v1/trade/execution/today"
	historyExecutionPath = "/v1/trade/execution/history"
	estimatePath         = "/v1/trade/estimate/buy_limit"
)

// CodeOrderNotFound is the server code for an unknown order id.
const CodeOrderNotFound int64 = 603001

type submitBody struct {
	Symbol            string           `json:"symbol"`
	OrderType         string           `json:"order_type"`
	Side              string           `json:"side"`
	SubmittedQuantity decimal.Decimal  `json:"submitted_quantity"`
	TimeInForce       string           `json:"time_in_force"`
	SubmittedPrice    *decimal.Decimal `json:"submitted_price,omitempty"`
	TriggerPrice      *decimal.Decimal `json:"trigger_price,omitempty"`
	LimitOffset       *decimal.Decimal `json:"limit_offset,omitempty"`
	TrailingAmount    *decimal.Decimal `json:"trailing_amount,omitempty"`
	TrailingPercent   *decimal.Decimal `json:"trailing_percent,omitempty"`
	ExpireDate        string           `json:"expire_date,omitempty"`
	OutsideRTH        string           `json:"outside_rth,omitempty"`
	Remark            string           `json:"remark,omitempty"`
}

// SubmitOrder validates and places an order, returning its id. Pushes for
// the new order that arrive before this returns are held and delivered
// after it.
func (tc *TradeContext) SubmitOrder(ctx context.Context, req SubmitOrder) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	body := submitBody{
		Symbol:            req.Symbol,
		OrderType:         string(req.Type),
		Side:              string(req.Side),
		SubmittedQuantity: req.SubmittedQuantity,
		TimeInForce:       string(req.TimeInForce),
		SubmittedPrice:    req.SubmittedPrice,
		TriggerPrice:      req.TriggerPrice,
		LimitOffset:       req.LimitOffset,
		TrailingAmount:    req.TrailingAmount,
		TrailingPercent:   req.TrailingPercent,
		OutsideRTH:        string(req.OutsideRTH),
		Remark:            req.Remark,
	}
	if req.ExpireDate != nil {
		body.ExpireDate = req.ExpireDate.Format("2006-01-02")
	}

	done := tc.pending.BeginSubmit()
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := tc.http.Post(ctx, orderPath, body, &resp); err != nil {
		done("")
		return "", fmt.Errorf("submit order: %w", err)
	}
	if resp.OrderID == "" {
		done("")
		return "", fmt.Errorf("submit order: %w: empty order id", apierr.ErrServer)
	}
	tc.tracker.Remember(resp.OrderID, order.StatusNotReported)
	done(resp.OrderID)
	return resp.OrderID, nil
}

type replaceBody struct {
	OrderID         string           `json:"order_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	TriggerPrice    *decimal.Decimal `json:"trigger_price,omitempty"`
	LimitOffset     *decimal.Decimal `json:"limit_offset,omitempty"`
	TrailingAmount  *decimal.Decimal `json:"trailing_amount,omitempty"`
	TrailingPercent *decimal.Decimal `json:"trailing_percent,omitempty"`
	Remark          string           `json:"remark,omitempty"`
}

// ReplaceOrder amends a live order. Unknown orders fail with
// apierr.ErrOrderNotFound and finished ones with apierr.ErrInvalidState.
func (tc *TradeContext) ReplaceOrder(ctx context.Context, req ReplaceOrder) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := tc.checkLive(ctx, req.OrderID); err != nil {
		return err
	}
	body := replaceBody{
		OrderID:         req.OrderID,
		Quantity:        req.Quantity,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		LimitOffset:     req.LimitOffset,
		TrailingAmount:  req.TrailingAmount,
		TrailingPercent: req.TrailingPercent,
		Remark:          req.Remark,
	}
	if err := tc.http.Put(ctx, orderPath, body, nil); err != nil {
		return fmt.Errorf("replace order %s: %w", req.OrderID, err)
	}
	return nil
}

// CancelOrder withdraws a live order, with the same status checks as
// ReplaceOrder.
func (tc *TradeContext) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return apierr.Invalid("order_id", "required")
	}
	if err := tc.checkLive(ctx, orderID); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("order_id", orderID)
	if err := tc.http.Delete(ctx, orderPath, q, nil, nil); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// checkLive looks the status up in the tracker, falling back to the order
// detail query.
func (tc *TradeContext) checkLive(ctx context.Context, orderID string) error {
	status, ok := tc.tracker.Status(orderID)
	if !ok {
		o, err := tc.OrderDetail(ctx, orderID)
		var se *apierr.ServerError
		switch {
		case errors.As(err, &se) && se.Code == CodeOrderNotFound:
			return fmt.Errorf("%w: %s: %w", apierr.ErrOrderNotFound, orderID, err)
		case err != nil:
			return err
		case o.OrderID == "":
			return fmt.Errorf("%w: %s", apierr.ErrOrderNotFound, orderID)
		}
		status = o.Status
		if status.Valid() {
			tc.tracker.Remember(orderID, status)
		}
	}
	if status.IsTerminal() {
		return fmt.Errorf("%w: order %s is %s", apierr.ErrInvalidState, orderID, status)
	}
	return nil
}

// OrderDetail fetches one order.
func (tc *TradeContext) OrderDetail(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, apierr.Invalid("order_id", "required")
	}
	q := url.Values{}
	q.Set("order_id", orderID)
	var resp orderJSON
	if err := tc.http.Get(ctx, orderPath, q, &resp); err != nil {
		return Order{}, fmt.Errorf("order detail %s: %w", orderID, err)
	}
	return resp.toOrder(), nil
}

// OrderFilter narrows order queries. Zero fields are not sent. StartAt and
// EndAt apply to history queries only.
type OrderFilter struct {
	Symbol  string
	Status  []OrderStatus
	Side    OrderSide
	Market  market.Market
	OrderID string
	StartAt time.Time
	EndAt   time.Time
}

func (f OrderFilter) query(history bool) (url.Values, error) {
	q := url.Values{}
	if f.Symbol != "" {
		if _, _, err := market.ParseSymbol(f.Symbol); err != nil {
			return nil, err
		}
		q.Set("symbol", f.Symbol)
	}
	for _, s := range f.Status {
		q.Add("status", string(s))
	}
	if f.Side != "" {
		q.Set("side", string(f.Side))
	}
	if f.Market != "" {
		q.Set("market", string(f.Market))
	}
	if !history && f.OrderID != "" {
		q.Set("order_id", f.OrderID)
	}
	if history {
		if err := timeRange(q, "start_at", "end_at", f.StartAt, f.EndAt, false); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func timeRange(q url.Values, startKey, endKey string, start, end time.Time, required bool) error {
	if required && (start.IsZero() || end.IsZero()) {
		return apierr.Invalid(startKey, "start and end are required")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return apierr.Invalid(endKey, "before %s", startKey)
	}
	if !start.IsZero() {
		q.Set(startKey, strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		q.Set(endKey, strconv.FormatInt(end.Unix(), 10))
	}
	return nil
}

func toOrders(in []orderJSON) []Order {
	out := make([]Order, 0, len(in))
	for _, o := range in {
		out = append(out, o.toOrder())
	}
	return out
}

func (tc *TradeContext) TodayOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	q, err := f.query(false)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Orders []orderJSON `json:"orders"`
	}
	if err := tc.http.Get(ctx, todayOrdersPath, q, &resp); err != nil {
		return nil, fmt.Errorf("today orders: %w", err)
	}
	return toOrders(resp.Orders), nil
}

// HistoryOrders returns orders before today; hasMore reports truncation.
func (tc *TradeContext) HistoryOrders(ctx context.Context, f OrderFilter) (orders []Order, hasMore bool, err error) {
	q, err := f.query(true)
	if err != nil {
		return nil, false, err
	}
	var resp struct {
		Orders  []orderJSON `json:"orders"`
		HasMore bool        `json:"has_more"`
	}
	if err := tc.http.Get(ctx, historyOrdersPath, q, &resp); err != nil {
		return nil, false, fmt.Errorf("history orders: %w", err)
	}
	return toOrders(resp.Orders), resp.HasMore, nil
}

func toExecutions(in []executionJSON) []Execution {
	out := make([]Execution, 0, len(in))
	for _, e := range in {
		out = append(out, Execution{
			OrderID:     e.OrderID,
			TradeID:     e.TradeID,
			Symbol:      e.Symbol,
			TradeDoneAt: e.TradeDoneAt.Time,
			Quantity:    e.Quantity.Decimal,
			Price:       e.Price.Decimal,
		})
	}
	return out
}

func (tc *TradeContext) TodayExecutions(ctx context.Context, symbol, orderID string) ([]Execution, error) {
	q := url.Values{}
	if symbol != "" {
		if _, _, err := market.ParseSymbol(symbol); err != nil {
			return nil, err
		}
		q.Set("symbol", symbol)
	}
	if orderID != "" {
		q.Set("order_id", orderID)
	}
	var resp struct {
		Trades []executionJSON `json:"trades"`
	}
	if err := tc.http.Get(ctx, todayExecutionsPath, q, &resp); err != nil {
		return nil, fmt.Errorf("today executions: %w", err)
	}
	return toExecutions(resp.Trades), nil
}

func (tc *TradeContext) HistoryExecutions(ctx context.Context, symbol string, start, end time.Time) (execs []Execution, hasMore bool, err error) {
	q := url.Values{}
	if symbol != "" {
		if _, _, err := market.ParseSymbol(symbol); err != nil {
			return nil, false, err
		}
		q.Set("symbol", symbol)
	}
	if err := timeRange(q, "start_at", "end_at", start, end, false); err != nil {
		return nil, false, err
	}
	var resp struct {
		Trades  []executionJSON `json:"trades"`
		HasMore bool            `json:"has_more"`
	}
	if err := tc.http.Get(ctx, historyExecutionPath, q, &resp); err != nil {
		return nil, false, fmt.Errorf("history executions: %w", err)
	}
	return toExecutions(resp.Trades), resp.HasMore, nil
}

// EstimateRequest asks how much of a symbol can be bought or sold.
type EstimateRequest struct {
	Symbol    string
	OrderType OrderType
	Side      OrderSide
	Price     *decimal.Decimal
	Currency  string
	OrderID   string
}

func (tc *TradeContext) EstimateMaxPurchaseQuantity(ctx context.Context, req EstimateRequest) (EstimateMaxPurchaseQuantity, error) {
	if _, _, err := market.ParseSymbol(req.Symbol); err != nil {
		return EstimateMaxPurchaseQuantity{}, err
	}
	if !req.OrderType.Valid() {
		return EstimateMaxPurchaseQuantity{}, apierr.Invalid("order_type", "unknown order type %q", req.OrderType)
	}
	switch req.Side {
	case order.SideBuy, order.SideSell:
	default:
		return EstimateMaxPurchaseQuantity{}, apierr.Invalid("side", "unknown side %q", req.Side)
	}
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("order_type", string(req.OrderType))
	q.Set("side", string(req.Side))
	if req.Price != nil {
		q.Set("price", req.Price.String())
	}
	if req.Currency != "" {
		q.Set("currency", req.Currency)
	}
	if req.OrderID != "" {
		q.Set("order_id", req.OrderID)
	}
	var resp struct {
		CashMaxQty   jsonx.Decimal `json:"cash_max_qty"`
		MarginMaxQty jsonx.Decimal `json:"margin_max_qty"`
	}
	if err := tc.http.Get(ctx, estimatePath, q, &resp); err != nil {
		return EstimateMaxPurchaseQuantity{}, fmt.Errorf("estimate max purchase quantity: %w", err)
	}
	return EstimateMaxPurchaseQuantity{CashMaxQty: resp.CashMaxQty.Decimal, MarginMaxQty: resp.MarginMaxQty.Decimal}, nil
}
