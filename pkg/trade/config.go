package trade

import (
	"time"

	"github.com/gorilla/websocket"

	"market-gateway/internal/events"
	"market-gateway/internal/wsclient"
	"market-gateway/pkg/config"
	"market-gateway/pkg/httpclient"
)

// Config configures a TradeContext.
type Config struct {
	URL  string
	HTTP *httpclient.Client

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration

	DispatchShards    int
	DispatchQueueSize int

	// HoldFor bounds how long a push for an unacknowledged order waits.
	HoldFor       time.Duration
	SweepInterval time.Duration

	Bus         *events.Bus
	TokenSource wsclient.TokenSource
	Dialer      *websocket.Dialer
}

func ConfigFrom(c *config.Config, http *httpclient.Client, bus *events.Bus) Config {
	return Config{
		URL:               c.TradeWSURL,
		HTTP:              http,
		RequestTimeout:    c.RequestTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		HeartbeatTimeout:  c.HeartbeatTimeout,
		BackoffBase:       c.BackoffBase,
		BackoffMax:        c.BackoffMax,
		DispatchShards:    c.DispatchShards,
		DispatchQueueSize: c.DispatchQueueSize,
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
