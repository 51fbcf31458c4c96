// Package api is the daemon's admin HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"market-gateway/internal/events"
	"market-gateway/internal/gateway"
	"market-gateway/pkg/db"
	"market-gateway/pkg/license"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/market"
	"market-gateway/pkg/quote"
	"market-gateway/pkg/trade"
)

// Backend is what the admin API reads from. *gateway.Manager implements it.
type Backend interface {
	Status() gateway.Status
	Subscriptions() []quote.Subscription
	Subscribe(ctx context.Context, symbols []string, flags market.SubFlags) error
	Unsubscribe(ctx context.Context, symbols []string, flags market.SubFlags) error
	RealtimeQuote(symbols []string) ([]quote.Quote, error)
	RealtimeDepth(symbol string) (quote.Depth, error)
	RealtimeBrokers(symbol string) (quote.Brokers, error)
	RealtimeTrades(symbol string, count int) ([]quote.Trade, error)
	TodayOrders(ctx context.Context, f trade.OrderFilter) ([]trade.Order, error)
	OrderEvents(ctx context.Context, orderID string, limit int) ([]db.OrderEvent, error)
}

// Server wires HTTP endpoints around the gateway.
type Server struct {
	Router  *gin.Engine
	Backend Backend
	Bus     *events.Bus
	Tokens  *license.Manager

	log     *zap.Logger
	limiter *ipLimiter
	now     func() time.Time
}

func NewServer(backend Backend, bus *events.Bus, tokens *license.Manager, log *zap.Logger) *Server {
	log = logger.OrNop(log).Named("admin_api")
	r := gin.New()
	limiter := newIPLimiter(20, 50)

	// order matters
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(limiter, log))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Backend: backend,
		Bus:     bus,
		Tokens:  tokens,
		log:     log,
		limiter: limiter,
		now:     time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.Tokens))
	{
		api.GET("/status", s.getStatus)
		api.GET("/events", s.websocket)

		api.GET("/subscriptions", s.getSubscriptions)
		api.POST("/subscriptions", s.subscribe)
		api.DELETE("/subscriptions", s.unsubscribe)

		rt := api.Group("/realtime/:symbol")
		{
			rt.GET("/quote", s.getRealtimeQuote)
			rt.GET("/depth", s.getRealtimeDepth)
			rt.GET("/brokers", s.getRealtimeBrokers)
			rt.GET("/trades", s.getRealtimeTrades)
		}

		api.GET("/orders/today", s.getTodayOrders)
		api.GET("/orders/events", s.getOrderEvents)
		api.GET("/orders/:id/events", s.getOrderEvents)

		api.GET("/markets/:market/trading-day", s.getTradingDay)
	}
}

func (s *Server) health(c *gin.Context) {
	st := s.Backend.Status()
	code := http.StatusOK
	status := "ok"
	if !st.Ready {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "quote": st.Quote, "trade": st.Trade})
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler { return s.Router }

// Close stops background work owned by the server.
func (s *Server) Close() { s.limiter.stop() }
