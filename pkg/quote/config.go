package quote

import (
	"time"

	"github.com/gorilla/websocket"

	"market-gateway/internal/candles"
	"market-gateway/internal/events"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/config"
	"market-gateway/pkg/httpclient"
	"market-gateway/pkg/i18n"
)

// Config configures a QuoteContext. Zero values take the defaults of the
// underlying components.
type Config struct {
	URL  string
	HTTP *httpclient.Client

	Language        i18n.Language
	EnableOvernight bool
	CandlestickMode candles.Mode

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration

	DispatchShards    int
	DispatchQueueSize int
	TradesRingSize    int

	// Bus receives lifecycle events; may be nil.
	Bus *events.Bus
	// TokenSource overrides HTTP.SocketToken.
	TokenSource wsclient.TokenSource
	Dialer      *websocket.Dialer
}

// ConfigFrom maps the loaded settings onto a quote Config.
func ConfigFrom(c *config.Config, http *httpclient.Client, bus *events.Bus) Config {
	lang, _ := i18n.ParseLanguage(c.Language)
	mode, _ := candles.ParseMode(c.PushCandlestickMode)
	return Config{
		URL:               c.QuoteWSURL,
		HTTP:              http,
		Language:          lang,
		EnableOvernight:   c.EnableOvernight,
		CandlestickMode:   mode,
		RequestTimeout:    c.RequestTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
		BackoffBase:       c.BackoffBase,
		BackoffMax:        c.BackoffMax,
		DispatchShards:    c.DispatchShards,
		DispatchQueueSize: c.DispatchQueueSize,
		TradesRingSize:    c.TradesRingSize,
		Bus:               bus,
	}
}

func (c Config) wsConfig() wsclient.Config {
	return wsclient.Config{
		Name:              contextName,
		URL:               c.URL,
		RequestTimeout:    c.RequestTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
		BackoffBase:       c.BackoffBase,
		BackoffMax:        c.BackoffMax,
		Dialer:            c.Dialer,
	}
}
