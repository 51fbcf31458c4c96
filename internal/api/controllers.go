package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"market-gateway/internal/calendar"
	"market-gateway/internal/gateway"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/market"
	"market-gateway/pkg/trade"
)

const (
	defaultTradesCount = 50
	maxTradesCount     = 1000
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	dateLayout         = "2006-01-02"
)

type subscriptionRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
	Flags   string   `json:"flags"`
}

type subscriptionView struct {
	Symbol       string   `json:"symbol"`
	SubTypes     string   `json:"sub_types"`
	Candlesticks []string `json:"candlesticks,omitempty"`
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": code, "error": msg})
}

// respondError maps gateway errors onto HTTP status codes.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "INTERNAL"
		srvErr *apierr.ServerError
	)
	switch {
	case errors.Is(err, apierr.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, apierr.ErrNotSubscribed):
		status, code = http.StatusNotFound, "NOT_SUBSCRIBED"
	case errors.Is(err, apierr.ErrOrderNotFound):
		status, code = http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, apierr.ErrNotConnected),
		errors.Is(err, apierr.ErrConnectionClosed),
		errors.Is(err, gateway.ErrNotStarted):
		status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, apierr.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.As(err, &srvErr):
		status, code = http.StatusBadGateway, "UPSTREAM"
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"code": code, "error": err.Error()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Backend.Status())
}

func (s *Server) getSubscriptions(c *gin.Context) {
	subs := s.Backend.Subscriptions()
	out := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		v := subscriptionView{Symbol: sub.Symbol, SubTypes: sub.SubTypes.String()}
		for _, p := range sub.Candlesticks {
			v.Candlesticks = append(v.Candlesticks, p.String())
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (s *Server) bindSubscription(c *gin.Context, fallback market.SubFlags) ([]string, market.SubFlags, bool) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return nil, 0, false
	}
	flags := fallback
	if req.Flags != "" {
		parsed, ok := market.ParseSubFlags(req.Flags)
		if !ok || parsed.Empty() {
			badRequest(c, "INVALID_FLAGS", "unknown sub types: "+req.Flags)
			return nil, 0, false
		}
		flags = parsed
	}
	return req.Symbols, flags, true
}

func (s *Server) subscribe(c *gin.Context) {
	symbols, flags, ok := s.bindSubscription(c, gateway.DefaultFlags)
	if !ok {
		return
	}
	if err := s.Backend.Subscribe(c.Request.Context(), symbols, flags); err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("subscribed via api",
		zap.String("subject", CurrentSubject(c)),
		zap.Strings("symbols", symbols),
		zap.Stringer("flags", flags))
	c.JSON(http.StatusOK, gin.H{"symbols": symbols, "sub_types": flags.String()})
}

func (s *Server) unsubscribe(c *gin.Context) {
	symbols, flags, ok := s.bindSubscription(c, market.SubAll)
	if !ok {
		return
	}
	if err := s.Backend.Unsubscribe(c.Request.Context(), symbols, flags); err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("unsubscribed via api",
		zap.String("subject", CurrentSubject(c)),
		zap.Strings("symbols", symbols),
		zap.Stringer("flags", flags))
	c.JSON(http.StatusOK, gin.H{"symbols": symbols, "sub_types": flags.String()})
}

func (s *Server) getRealtimeQuote(c *gin.Context) {
	quotes, err := s.Backend.RealtimeQuote([]string{c.Param("symbol")})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(quotes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_DATA", "error": "no quote cached for " + c.Param("symbol")})
		return
	}
	c.JSON(http.StatusOK, quotes[0])
}

func (s *Server) getRealtimeDepth(c *gin.Context) {
	depth, err := s.Backend.RealtimeDepth(c.Param("symbol"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, depth)
}

func (s *Server) getRealtimeBrokers(c *gin.Context) {
	brokers, err := s.Backend.RealtimeBrokers(c.Param("symbol"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, brokers)
}

func (s *Server) getRealtimeTrades(c *gin.Context) {
	count, ok := intQuery(c, "count", defaultTradesCount, maxTradesCount)
	if !ok {
		return
	}
	trades, err := s.Backend.RealtimeTrades(c.Param("symbol"), count)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Param("symbol"), "trades": trades})
}

func (s *Server) getTodayOrders(c *gin.Context) {
	f := trade.OrderFilter{
		Symbol:  c.Query("symbol"),
		OrderID: c.Query("order_id"),
	}
	if side := c.Query("side"); side != "" {
		f.Side = trade.OrderSide(side)
	}
	if m := c.Query("market"); m != "" {
		f.Market = market.Market(strings.ToUpper(m))
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := trade.OrderStatus(strings.TrimSpace(part))
			if !st.Valid() {
				badRequest(c, "INVALID_STATUS", "unknown order status: "+part)
				return
			}
			f.Status = append(f.Status, st)
		}
	}
	orders, err := s.Backend.TodayOrders(c.Request.Context(), f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getOrderEvents(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultEventsLimit, maxEventsLimit)
	if !ok {
		return
	}
	events, err := s.Backend.OrderEvents(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) getTradingDay(c *gin.Context) {
	m := market.Market(strings.ToUpper(c.Param("market")))
	switch m {
	case market.MarketUS, market.MarketHK, market.MarketCN, market.MarketSG:
	default:
		badRequest(c, "INVALID_MARKET", "unknown market: "+c.Param("market"))
		return
	}
	cal := calendar.For(m)

	day := s.now().In(cal.Location())
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, cal.Location())
		if err != nil {
			badRequest(c, "INVALID_DATE", "date must be yyyy-mm-dd")
			return
		}
		day = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"market":           string(m),
		"date":             day.Format(dateLayout),
		"trading_day":      cal.IsTradingDay(day),
		"next_trading_day": cal.NextTradingDay(day).Format(dateLayout),
	})
}

func intQuery(c *gin.Context, key string, def, max int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "INVALID_"+strings.ToUpper(key), key+" must be a positive integer")
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}
